package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/envlytics/analyte-resolver/internal/config"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/pkg/errors"
)

var ErrProducerClosed = errors.New(errors.CodeMessageQueueError, "producer closed")

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = time.Second
	defaultWriteTimeout = 10 * time.Second
)

// Writer abstracts kafka.Writer for testing.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ProducerMetrics counts publish outcomes.
type ProducerMetrics struct {
	Sent      atomic.Int64
	Failed    atomic.Int64
	BytesSent atomic.Int64
}

// Producer publishes resolver events.  Messages are keyed so all events for
// one decision land on the same partition in order.
type Producer struct {
	writer  Writer
	logger  logging.Logger
	closed  atomic.Bool
	metrics ProducerMetrics
}

// NewProducer builds a producer from configuration.  Hash balancing plus the
// decision-id key preserves per-decision ordering across partitions.
func NewProducer(cfg config.KafkaConfig, logger logging.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.InvalidParam("kafka brokers are required")
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	maxAttempts := cfg.ProducerRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		MaxAttempts:  maxAttempts,
		BatchSize:    batchSize,
		BatchTimeout: defaultBatchTimeout,
		WriteTimeout: defaultWriteTimeout,
		RequiredAcks: kafka.RequireAll,
	}
	return &Producer{writer: writer, logger: logger}, nil
}

// NewProducerWithWriter wires a pre-built writer, used by tests.
func NewProducerWithWriter(w Writer, logger logging.Logger) *Producer {
	return &Producer{writer: w, logger: logger}
}

// Publish wraps the payload in an envelope and writes it to the topic.
func (p *Producer) Publish(ctx context.Context, topic, key string, eventType string, payload interface{}) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if topic == "" {
		return errors.InvalidParam("topic is required")
	}

	env, err := NewEnvelope(eventType, payload)
	if err != nil {
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, errors.CodeSerialization, "failed to marshal event envelope")
	}

	msg := kafka.Message{Topic: topic, Key: []byte(key), Value: value}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.Failed.Add(1)
		return errors.Wrap(err, errors.CodeMessageQueueError, "failed to publish "+eventType)
	}

	p.metrics.Sent.Add(1)
	p.metrics.BytesSent.Add(int64(len(value)))
	p.logger.Debug("published event",
		logging.String("topic", topic),
		logging.String("event_type", eventType),
		logging.String("event_id", env.EventID),
	)
	return nil
}

// PublishDecisionRecorded emits a decision.recorded event.
func (p *Producer) PublishDecisionRecorded(ctx context.Context, payload DecisionRecordedPayload) error {
	return p.Publish(ctx, TopicDecisionRecorded, decisionKey(payload.DecisionID), TopicDecisionRecorded, payload)
}

// PublishDecisionValidated emits a decision.validated or decision.corrected
// event depending on the reviewer verdict.
func (p *Producer) PublishDecisionValidated(ctx context.Context, payload DecisionValidatedPayload) error {
	topic := TopicDecisionValidated
	if payload.WasCorrection {
		topic = TopicDecisionCorrected
	}
	return p.Publish(ctx, topic, decisionKey(payload.DecisionID), topic, payload)
}

// PublishSynonymPromoted emits a synonym.promoted event.
func (p *Producer) PublishSynonymPromoted(ctx context.Context, payload SynonymPromotedPayload) error {
	return p.Publish(ctx, TopicSynonymPromoted, string(payload.AnalyteID), TopicSynonymPromoted, payload)
}

// PublishSnapshotActivated emits a corpus.snapshot_activated event.
func (p *Producer) PublishSnapshotActivated(ctx context.Context, payload SnapshotActivatedPayload) error {
	return p.Publish(ctx, TopicSnapshotActivated, payload.Hash, TopicSnapshotActivated, payload)
}

// Metrics exposes publish counters.
func (p *Producer) Metrics() *ProducerMetrics { return &p.metrics }

// Close flushes pending batches and shuts the writer down.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return errors.Wrap(err, errors.CodeMessageQueueError, "failed to close kafka writer")
	}
	p.logger.Info("kafka producer closed",
		logging.Int64("sent", p.metrics.Sent.Load()),
		logging.Int64("failed", p.metrics.Failed.Load()),
	)
	return nil
}

func decisionKey(id int64) string { return strconv.FormatInt(id, 10) }
