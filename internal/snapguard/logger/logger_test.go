package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestInitLogger_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapguard.log")
	require.NoError(t, InitLogger(LogConfig{Level: "debug", OutputFile: path}))
	t.Cleanup(func() { Set(zap.NewNop().Sugar()) })

	L().Infow("logger.test: hello", "k", "v")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "logger.test: hello")
}

func TestSet_ReplacesGlobal(t *testing.T) {
	nop := zap.NewNop().Sugar()
	Set(nop)
	assert.Same(t, nop, L())
}
