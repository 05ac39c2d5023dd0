// Package log is the process-wide structured logger. It wraps a zap
// SugaredLogger so every package logs through the same sink and level.
//
// Until Init is called the logger discards everything, which keeps tests and
// library callers quiet without any setup.
package log

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.RWMutex
	sugar = zap.NewNop().Sugar()
)

// Init builds the global logger.
// level is a zap level name ("debug", "info", ...), format is "json" or
// "console", and outputDir, when non-empty, adds {outputDir}/fileflow.log
// next to stdout.
func Init(level, format, outputDir string) error {
	logLevel := zap.NewAtomicLevel()
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		logLevel.SetLevel(zap.InfoLevel)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "json"
	}
	cfg.Level = logLevel
	cfg.OutputPaths = []string{"stdout"}
	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return err
		}
		cfg.OutputPaths = append(cfg.OutputPaths, filepath.Join(outputDir, "fileflow.log"))
	}

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	sugar = logger.Sugar()
	mu.Unlock()
	return nil
}

// Set replaces the global logger. Tests use it with zaptest/observer cores.
func Set(logger *zap.Logger) {
	mu.Lock()
	sugar = logger.Sugar()
	mu.Unlock()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func Debugw(msg string, keysAndValues ...interface{}) { current().Debugw(msg, keysAndValues...) }

// Infow logs a message with structured key/value context.
func Infow(msg string, keysAndValues ...interface{}) { current().Infow(msg, keysAndValues...) }

func Warnw(msg string, keysAndValues ...interface{}) { current().Warnw(msg, keysAndValues...) }

// Error logs msg at error level with err attached under the "error" key.
func Error(msg string, err error, keysAndValues ...interface{}) {
	current().Errorw(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

// Sync flushes buffered entries. Call before exit.
func Sync() {
	_ = current().Sync()
}
