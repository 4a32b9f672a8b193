package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		" WARN ":  LevelWarn,
		"Error":   LevelError,
		"verbose": LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestStdLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLogger(LevelInfo, &buf)
	ctx := context.Background()

	l.Debug(ctx, "hidden")
	assert.Empty(t, buf.String())

	l.Info(ctx, "Trade opened", map[string]interface{}{"symbol": "BTCUSDT", "id": "trade_1"})
	assert.Contains(t, buf.String(), "[INFO] Trade opened | id=trade_1 symbol=BTCUSDT")

	buf.Reset()
	l.Error(ctx, errors.New("boom"), "Sweep failed")
	assert.Contains(t, buf.String(), "[ERROR] Sweep failed | error: boom")
}

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapLogger(zap.New(core))
	ctx := context.Background()

	l.Info(ctx, "Trading bot started", map[string]interface{}{"interval": "1m0s"}, map[string]interface{}{"streams": 3})
	l.Error(ctx, errors.New("rate limited"), "Signal evaluation failed")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "Trading bot started", entries[0].Message)
	assert.Equal(t, map[string]interface{}{"interval": "1m0s", "streams": int64(3)}, entries[0].ContextMap())
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "rate limited", entries[1].ContextMap()["error"])
}

func TestNew(t *testing.T) {
	l, sync, err := New("debug", "plain")
	require.NoError(t, err)
	assert.IsType(t, &StdLogger{}, l)
	sync()

	l, _, err = New("info", "json")
	require.NoError(t, err)
	assert.IsType(t, &ZapLogger{}, l)

	_, _, err = New("info", "xml")
	assert.Error(t, err)
}
