package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/envlytics/analyte-resolver/internal/config"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/pkg/errors"
)

// Handler processes one decoded event.  Returning an error leaves the offset
// uncommitted so the message is redelivered.
type Handler func(ctx context.Context, env *EventEnvelope) error

// Reader abstracts kafka.Reader for testing.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer runs a handler over one topic within a consumer group.  The
// review-index worker uses it to mirror decisions into OpenSearch off the
// request path.
type Consumer struct {
	reader  Reader
	topic   string
	handler Handler
	backoff time.Duration
	logger  logging.Logger
}

// NewConsumer builds a group consumer for the topic.
func NewConsumer(cfg config.KafkaConfig, topic string, handler Handler, logger logging.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.InvalidParam("kafka brokers are required")
	}
	if topic == "" {
		return nil, errors.InvalidParam("topic is required")
	}
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "analyte-resolver"
	}

	startOffset := kafka.LastOffset
	if cfg.AutoOffsetReset == "earliest" {
		startOffset = kafka.FirstOffset
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     groupID,
		Topic:       topic,
		StartOffset: startOffset,
		MinBytes:    1,
		MaxBytes:    10 * 1024 * 1024,
	})
	return &Consumer{reader: reader, topic: topic, handler: handler, backoff: time.Second, logger: logger}, nil
}

// NewConsumerWithReader wires a pre-built reader, used by tests.
func NewConsumerWithReader(r Reader, topic string, handler Handler, logger logging.Logger) *Consumer {
	return &Consumer{reader: r, topic: topic, handler: handler, backoff: time.Millisecond, logger: logger}
}

// Run consumes until the context is cancelled.  Handler failures are logged
// and retried via redelivery; undecodable messages are committed and skipped.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started", logging.String("topic", c.topic))
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("fetch failed", logging.String("topic", c.topic), logging.Err(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff):
			}
			continue
		}

		var env EventEnvelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			c.logger.Error("dropping undecodable message",
				logging.String("topic", c.topic),
				logging.Int64("offset", msg.Offset),
				logging.Err(err),
			)
			c.commit(ctx, msg)
			continue
		}

		if err := c.handler(ctx, &env); err != nil {
			c.logger.Warn("handler failed, message will be redelivered",
				logging.String("topic", c.topic),
				logging.String("event_id", env.EventID),
				logging.Err(err),
			)
			continue
		}
		c.commit(ctx, msg)
	}
}

// Close shuts the underlying reader down.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Warn("offset commit failed", logging.String("topic", c.topic), logging.Err(err))
	}
}
