package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	for _, tc := range []struct {
		format, level string
		enabled       zapcore.Level
		disabled      zapcore.Level
	}{
		{"json", "debug", zapcore.DebugLevel, zapcore.InvalidLevel},
		{"json", "info", zapcore.InfoLevel, zapcore.DebugLevel},
		{"text", "warn", zapcore.WarnLevel, zapcore.InfoLevel},
		{"text", "error", zapcore.ErrorLevel, zapcore.WarnLevel},
	} {
		t.Run(tc.format+"/"+tc.level, func(t *testing.T) {
			l, err := New(tc.format, tc.level)
			require.NoError(t, err)
			require.True(t, l.Core().Enabled(tc.enabled))
			if tc.disabled != zapcore.InvalidLevel {
				require.False(t, l.Core().Enabled(tc.disabled))
			}
		})
	}
}

func TestNewNone(t *testing.T) {
	l, err := New("json", "none")
	require.NoError(t, err)
	require.False(t, l.Core().Enabled(zapcore.ErrorLevel))
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	_, err := New("json", "loud")
	require.ErrorContains(t, err, "unknown log level")
	_, err = New("xml", "info")
	require.ErrorContains(t, err, "unknown log format")
}
