package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerWritesStructuredFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewLoggerFromZap(zap.New(core)).Named("latch").With(ComponentID("c-1"))

	log.Warn("instantiation failed",
		Capability("pkg.Greeter"),
		Implementation("pkg.English"),
		Error(errors.New("boom")),
	)

	entries := logs.All()
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "latch", entry.LoggerName)

	ctx := entry.ContextMap()
	assert.Equal(t, "c-1", ctx["component_id"])
	assert.Equal(t, "pkg.Greeter", ctx["capability"])
	assert.Equal(t, "pkg.English", ctx["implementation"])
	assert.Equal(t, "boom", ctx["error"])
}

func TestLazyFieldEvaluatedOnWrite(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewLoggerFromZap(zap.New(core))

	calls := 0
	log.Info("state", Lazy("count", func() interface{} {
		calls++
		return 3
	}))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, 1, calls)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel(""))
}

func TestNoopLogger(t *testing.T) {
	log := NewNoopLogger()
	log.Info("ignored", String("k", "v"))
	assert.Same(t, log, log.Named("x"))
	assert.NoError(t, log.Sync())
}

func TestFieldsToZapSkipsNil(t *testing.T) {
	fields := FieldsToZap([]Field{String("a", "b"), nil, Int("n", 1)})
	assert.Len(t, fields, 2)
}
