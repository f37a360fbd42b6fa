package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envlytics/analyte-resolver/internal/config"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
)

type captureWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishDecisionRecorded(t *testing.T) {
	w := &captureWriter{}
	p := NewProducerWithWriter(w, logging.NewNopLogger())

	payload := DecisionRecordedPayload{
		DecisionID:       42,
		InputText:        "Benzene (SW846)",
		NormalizedText:   "benzene",
		MatchedAnalyteID: "REG153_001",
		Method:           "EXACT",
		ConfidenceScore:  0.97,
		Band:             "AUTO_ACCEPT",
		Vendor:           "Caduceon",
		CorpusHash:       "abc123",
		DecidedAt:        time.Now().UTC(),
	}
	require.NoError(t, p.PublishDecisionRecorded(context.Background(), payload))

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, TopicDecisionRecorded, msg.Topic)
	assert.Equal(t, "42", string(msg.Key))

	var env EventEnvelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, TopicDecisionRecorded, env.EventType)
	assert.Equal(t, "analyte-resolver", env.Source)
	assert.NotEmpty(t, env.EventID)

	var got DecisionRecordedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, payload.DecisionID, got.DecisionID)
	assert.Equal(t, payload.MatchedAnalyteID, got.MatchedAnalyteID)

	assert.Equal(t, int64(1), p.Metrics().Sent.Load())
}

func TestPublishValidatedRoutesCorrections(t *testing.T) {
	w := &captureWriter{}
	p := NewProducerWithWriter(w, logging.NewNopLogger())

	require.NoError(t, p.PublishDecisionValidated(context.Background(), DecisionValidatedPayload{
		DecisionID: 1, ValidatedAnalyteID: "REG153_001",
	}))
	require.NoError(t, p.PublishDecisionValidated(context.Background(), DecisionValidatedPayload{
		DecisionID: 2, ValidatedAnalyteID: "REG153_004", WasCorrection: true,
	}))

	require.Len(t, w.messages, 2)
	assert.Equal(t, TopicDecisionValidated, w.messages[0].Topic)
	assert.Equal(t, TopicDecisionCorrected, w.messages[1].Topic)
}

func TestPublishAfterClose(t *testing.T) {
	w := &captureWriter{}
	p := NewProducerWithWriter(w, logging.NewNopLogger())

	require.NoError(t, p.Close())
	assert.True(t, w.closed)

	err := p.PublishSynonymPromoted(context.Background(), SynonymPromotedPayload{AnalyteID: "REG153_001"})
	assert.ErrorIs(t, err, ErrProducerClosed)
}

func TestPublishCountsFailures(t *testing.T) {
	w := &captureWriter{err: assert.AnError}
	p := NewProducerWithWriter(w, logging.NewNopLogger())

	err := p.PublishSnapshotActivated(context.Background(), SnapshotActivatedPayload{Hash: "abc"})
	assert.Error(t, err)
	assert.Equal(t, int64(1), p.Metrics().Failed.Load())
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer(config.KafkaConfig{}, logging.NewNopLogger())
	assert.Error(t, err)
}
