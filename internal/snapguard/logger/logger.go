package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger *zap.SugaredLogger
)

// LogConfig selects level, encoder and destination of the global logger.
type LogConfig struct {
	Level       string // debug, info, warn, error
	Development bool   // console encoder, caller and stack traces on warn
	OutputFile  string // optional file appended to in addition to stderr
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitLogger initializes the global sugared logger.
func InitLogger(c LogConfig) error {
	cfg := zap.NewProductionConfig()
	if c.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(c.Level))
	if c.OutputFile != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, c.OutputFile)
	}

	z, err := cfg.Build()
	if err != nil {
		return err
	}

	Set(z.Sugar())
	return nil
}

// Set replaces the global logger; tests use it with zap.NewNop().
func Set(l *zap.SugaredLogger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

// L returns the global sugared logger.
// If InitLogger has not been called, it initializes at info level.
func L() *zap.SugaredLogger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}
	if err := InitLogger(LogConfig{Level: "info"}); err != nil {
		Set(zap.NewNop().Sugar())
	}
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Sync flushes buffered entries; errors from syncing stderr are ignored.
func Sync() {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		_ = l.Sync()
	}
}
