package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Log is the global logger
	Log *zap.SugaredLogger

	// logger is the underlying zap logger
	logger *zap.Logger
)

// Options configures the logger
type Options struct {
	Level  string
	Format string

	// File enables an additional JSON sink rotated by lumberjack
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Init initializes the logger with the given level and format
func Init(level, format string) error {
	return InitWithOptions(Options{Level: level, Format: format})
}

// InitWithOptions initializes the logger, optionally teeing into a rotated log file
func InitWithOptions(opts Options) error {
	built, err := build(opts)
	if err != nil {
		return err
	}

	logger = built
	Log = logger.Sugar()
	return nil
}

func build(opts Options) (*zap.Logger, error) {
	var config zap.Config

	// Set base config based on format
	if opts.Format == "json" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.Encoding = "console"
	}

	// Set log level
	zapLevel, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.LevelKey = "level"
	config.EncoderConfig.MessageKey = "msg"
	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	var buildOpts []zap.Option
	if opts.File != "" {
		fileCore := newFileCore(opts, config.EncoderConfig, config.Level)
		buildOpts = append(buildOpts, zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}

	built, err := config.Build(buildOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return built, nil
}

func newFileCore(opts Options, encCfg zapcore.EncoderConfig, level zap.AtomicLevel) zapcore.Core {
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}

	writer := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
	}

	// File output is always JSON regardless of console format
	encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	return zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(writer), level)
}

// parseLevel converts string log level to zapcore.Level
func parseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// Sync flushes any buffered log entries
func Sync() error {
	if logger != nil {
		return logger.Sync()
	}
	return nil
}

// GetZapLogger returns the underlying zap.Logger, or a no-op logger before Init
func GetZapLogger() *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// WithFields returns a logger with additional fields
func WithFields(fields map[string]interface{}) *zap.SugaredLogger {
	if Log == nil {
		return nil
	}

	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}

	return Log.With(args...)
}
