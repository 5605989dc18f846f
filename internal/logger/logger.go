// Package logger builds the process-wide *zap.Logger. It is constructed
// once by cmd/vidcrawl and threaded explicitly into every component
// (§9: "module-level singletons... replaced with an explicit context
// value"); nothing in this module calls zap.L() or otherwise reaches for
// a package-level logger.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a new logger instance based on configuration.
func New(serviceName, environment, logLevel, logFormat string) (*zap.Logger, error) {
	var config zap.Config

	if environment == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}

	// Set log level
	if logLevel != "" {
		level, err := zapcore.ParseLevel(logLevel)
		if err != nil {
			return nil, err
		}
		config.Level = zap.NewAtomicLevelAt(level)
	}

	// Set encoding
	if logFormat == "json" {
		config.Encoding = "json"
	} else {
		config.Encoding = "console"
	}

	// Add service name to all logs
	config.InitialFields = map[string]interface{}{
		"service": serviceName,
		"env":     environment,
	}

	// Configure output paths
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	// Add caller info
	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.StacktraceKey = "stacktrace"

	// Use ISO8601 time format
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	// Build logger
	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	// Add hostname if available
	if hostname, err := os.Hostname(); err == nil {
		logger = logger.With(zap.String("hostname", hostname))
	}

	return logger, nil
}

// NewNop returns a logger that discards everything, used by tests that
// don't want log noise or a real sink.
func NewNop() *zap.Logger {
	return zap.NewNop()
}

// ForItem returns a child logger carrying item_id, satisfying §7's
// requirement that every per-item log record carry the ItemID.
func ForItem(log *zap.Logger, itemID string) *zap.Logger {
	return log.With(zap.String("item_id", itemID))
}

// ForKeyword returns a child logger carrying keyword, for per-keyword
// search log records.
func ForKeyword(log *zap.Logger, keyword string) *zap.Logger {
	return log.With(zap.String("keyword", keyword))
}
