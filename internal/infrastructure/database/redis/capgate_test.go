package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
)

func TestDailyCapGateAcquire(t *testing.T) {
	client, mock := newTestClient(t)
	gate := NewDailyCapGate(client, logging.NewNopLogger(), 20)

	day := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	key := "test:synonym_cap:2026-03-14"

	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpire(key, 48*time.Hour).SetVal(true)

	ok, err := gate.TryAcquire(context.Background(), day)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyCapGateExhausted(t *testing.T) {
	client, mock := newTestClient(t)
	gate := NewDailyCapGate(client, logging.NewNopLogger(), 20)

	day := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	key := "test:synonym_cap:2026-03-14"

	mock.ExpectIncr(key).SetVal(21)
	mock.ExpectDecr(key).SetVal(20)

	ok, err := gate.TryAcquire(context.Background(), day)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyCapGateDisabled(t *testing.T) {
	client, _ := newTestClient(t)
	gate := NewDailyCapGate(client, logging.NewNopLogger(), 0)

	ok, err := gate.TryAcquire(context.Background(), time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDailyCapGateRemaining(t *testing.T) {
	client, mock := newTestClient(t)
	gate := NewDailyCapGate(client, logging.NewNopLogger(), 20)

	day := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	mock.ExpectGet("test:synonym_cap:2026-03-15").SetVal("7")

	left, err := gate.Remaining(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 13, left)
}
