package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger() (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewLoggerFromCore(core), logs
}

func TestNewLoggerJSON(t *testing.T) {
	l, err := NewLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestNewLoggerConsole(t *testing.T) {
	l, err := NewLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestNewLoggerBadOutputPath(t *testing.T) {
	_, err := NewLogger(LogConfig{OutputPaths: []string{"unknown-scheme://x"}})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("WARN"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	// unknown levels keep the application operational at info
	assert.Equal(t, zapcore.InfoLevel, parseLevel("chatty"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
}

func TestLevelsAndFields(t *testing.T) {
	l, logs := newObservedLogger()

	l.Debug("d")
	l.Info("i", String("k", "v"))
	l.Warn("w", Int("n", 3))
	l.Error("e", Err(errors.New("boom")))

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "v", entries[1].ContextMap()["k"])
	assert.Equal(t, int64(3), entries[2].ContextMap()["n"])
	assert.Equal(t, "boom", entries[3].ContextMap()["error"])
}

func TestTypedFieldConversion(t *testing.T) {
	l, logs := newObservedLogger()

	l.Info("typed",
		Int64("i64", 9),
		Float64("f", 0.5),
		Bool("b", true),
		Duration("d", time.Second),
		Any("any", []string{"x"}),
	)

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, int64(9), fields["i64"])
	assert.Equal(t, 0.5, fields["f"])
	assert.Equal(t, true, fields["b"])
	assert.Equal(t, time.Second, fields["d"])
}

func TestErrNil(t *testing.T) {
	f := Err(nil)
	assert.Equal(t, "error", f.Key)
	assert.Equal(t, "<nil>", f.Value)
}

func TestWithAddsPersistentFields(t *testing.T) {
	l, logs := newObservedLogger()

	child := l.With(String("component", "corpus"))
	child.Info("one")
	child.Info("two")
	l.Info("parent untouched")

	entries := logs.All()
	assert.Equal(t, "corpus", entries[0].ContextMap()["component"])
	assert.Equal(t, "corpus", entries[1].ContextMap()["component"])
	assert.NotContains(t, entries[2].ContextMap(), "component")
}

func TestNamed(t *testing.T) {
	l, logs := newObservedLogger()

	l.Named("app").Named("http").Info("msg")

	require.Len(t, logs.All(), 1)
	assert.Equal(t, "app.http", logs.All()[0].LoggerName)
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()

	// must not panic and must keep returning itself
	l.Debug("msg")
	l.Info("msg")
	l.Warn("msg")
	l.Error("msg")
	assert.Equal(t, l, l.With(String("k", "v")))
	assert.Equal(t, l, l.Named("x"))
}

func TestDefaultLoggerSwap(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	l := NewNopLogger()
	SetDefault(l)
	assert.Equal(t, l, Default())
}
