// Package log provides the process-wide structured logger.
// The logger is initialized once at startup; all other packages obtain it
// via Logger(). Business logic must never depend on logging succeeding.
package log

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.Mutex
	logger *zap.Logger
)

// Options controls logger initialization.
type Options struct {
	// Dir is where the rotating log file lives. Empty disables file output.
	Dir string

	// Debug lowers the level to Debug and adds caller annotations.
	Debug bool
}

// Init builds the process logger. Safe to call once; later calls replace
// the logger (used by tests).
func Init(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.AddSync(os.Stderr),
			level,
		),
	}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return err
		}
		fileSyncer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, "pptgirl.log"),
			MaxSize:    50, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			fileSyncer,
			level,
		))
	}

	var zapOpts []zap.Option
	if opts.Debug {
		zapOpts = append(zapOpts, zap.AddCaller())
	}

	logger = zap.New(zapcore.NewTee(cores...), zapOpts...)
	logger.Info("logging started")
	return nil
}

// Logger returns the process logger, or a no-op logger before Init.
func Logger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// Sync flushes buffered entries.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	if logger != nil {
		return logger.Sync()
	}
	return nil
}
