package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
)

func TestMutexTryLock(t *testing.T) {
	client, mock := newTestClient(t)
	m := NewMutex(client, logging.NewNopLogger(), "rebuild", time.Minute)

	mock.ExpectSetNX("test:lock:rebuild", m.value, time.Minute).SetVal(true)

	ok, err := m.TryLock(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMutexTryLockHeldElsewhere(t *testing.T) {
	client, mock := newTestClient(t)
	m := NewMutex(client, logging.NewNopLogger(), "rebuild", time.Minute)

	mock.ExpectSetNX("test:lock:rebuild", m.value, time.Minute).SetVal(false)

	ok, err := m.TryLock(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMutexDefaultTTL(t *testing.T) {
	client, _ := newTestClient(t)
	m := NewMutex(client, logging.NewNopLogger(), "rebuild", 0)
	assert.Equal(t, 5*time.Minute, m.ttl)
}
