package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewHonoursLevel(t *testing.T) {
	logger := New("warn", "json")
	require.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	require.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	fallback := New("loud", "console")
	require.True(t, fallback.Core().Enabled(zapcore.InfoLevel))
	require.False(t, fallback.Core().Enabled(zapcore.DebugLevel))
}

func TestOrNop(t *testing.T) {
	require.NotNil(t, OrNop(nil))
	l := New("info", "json")
	require.Same(t, l, OrNop(l))
}
