package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TestParseLogLevel verifies mapping from strings to zapcore.Level and handling of unknown values.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"WARNING": zapcore.WarnLevel,
		" error ": zapcore.ErrorLevel,
		"panic":   zapcore.PanicLevel,
		"fatal":   zapcore.FatalLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok, s)
		require.Equal(t, lvl, got)
	}

	_, ok := ParseLogLevel("unknown")
	require.False(t, ok)
}

// TestContextHelpers checks that scoped loggers travel through the context.
func TestContextHelpers(t *testing.T) {
	t.Parallel()

	require.Same(t, Logger(), FromContext(context.Background()))

	var buf bytes.Buffer

	l := NewWithWriter(&buf, zap.NewAtomicLevelAt(zap.DebugLevel))
	ctx := ToContext(context.Background(), l)
	ctx = WithName(ctx, "tripwire")
	ctx = WithKV(ctx, "source", "network")
	ctx = WithFields(ctx, zap.Int("port", 45370))

	InfoKV(ctx, "armed", "modes", "net")

	out := buf.String()
	require.Contains(t, out, "tripwire")
	require.Contains(t, out, "armed")
	require.Contains(t, out, "network")
	require.Contains(t, out, "45370")
}
