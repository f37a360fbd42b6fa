package kafka

import (
	"context"
	"encoding/json"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envlytics/analyte-resolver/internal/config"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
)

type scriptedReader struct {
	messages  []kafkago.Message
	committed []kafkago.Message
	closed    bool
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	if len(r.messages) == 0 {
		// Queue drained.  Block until the test cancels the context.
		<-ctx.Done()
		return kafkago.Message{}, ctx.Err()
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *scriptedReader) Close() error {
	r.closed = true
	return nil
}

func envelopeMessage(t *testing.T, eventType string, payload interface{}) kafkago.Message {
	t.Helper()
	env, err := NewEnvelope(eventType, payload)
	require.NoError(t, err)
	value, err := json.Marshal(env)
	require.NoError(t, err)
	return kafkago.Message{Topic: TopicDecisionRecorded, Value: value}
}

func TestConsumerHandlesAndCommits(t *testing.T) {
	reader := &scriptedReader{messages: []kafkago.Message{
		envelopeMessage(t, TopicDecisionRecorded, DecisionRecordedPayload{DecisionID: 7}),
	}}

	var seen []string
	ctx, cancel := context.WithCancel(context.Background())
	c := NewConsumerWithReader(reader, TopicDecisionRecorded, func(_ context.Context, env *EventEnvelope) error {
		seen = append(seen, env.EventType)
		cancel()
		return nil
	}, logging.NewNopLogger())

	err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{TopicDecisionRecorded}, seen)
	assert.Len(t, reader.committed, 1)
}

func TestConsumerSkipsUndecodable(t *testing.T) {
	reader := &scriptedReader{messages: []kafkago.Message{
		{Topic: TopicDecisionRecorded, Value: []byte("not json")},
		envelopeMessage(t, TopicDecisionRecorded, DecisionRecordedPayload{DecisionID: 8}),
	}}

	var handled []int64
	ctx, cancel := context.WithCancel(context.Background())
	c := NewConsumerWithReader(reader, TopicDecisionRecorded, func(_ context.Context, env *EventEnvelope) error {
		var p DecisionRecordedPayload
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		handled = append(handled, p.DecisionID)
		cancel()
		return nil
	}, logging.NewNopLogger())

	_ = c.Run(ctx)
	// The bad message is committed and skipped; only the valid one is handled.
	assert.Equal(t, []int64{8}, handled)
	assert.Len(t, reader.committed, 2)
}

func TestConsumerLeavesFailedUncommitted(t *testing.T) {
	reader := &scriptedReader{messages: []kafkago.Message{
		envelopeMessage(t, TopicDecisionRecorded, DecisionRecordedPayload{DecisionID: 9}),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	c := NewConsumerWithReader(reader, TopicDecisionRecorded, func(context.Context, *EventEnvelope) error {
		cancel()
		return assert.AnError
	}, logging.NewNopLogger())

	_ = c.Run(ctx)
	assert.Empty(t, reader.committed)
}

func TestConsumerClose(t *testing.T) {
	reader := &scriptedReader{}
	c := NewConsumerWithReader(reader, TopicDecisionRecorded, nil, logging.NewNopLogger())
	require.NoError(t, c.Close())
	assert.True(t, reader.closed)
}

func TestNewConsumerValidation(t *testing.T) {
	_, err := NewConsumer(config.KafkaConfig{}, TopicDecisionRecorded, nil, logging.NewNopLogger())
	assert.Error(t, err)

	_, err = NewConsumer(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, "", nil, logging.NewNopLogger())
	assert.Error(t, err)
}
