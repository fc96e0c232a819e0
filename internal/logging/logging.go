package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type options struct {
	level   string
	console bool
}

// Option configures the logger built by New.
type Option func(*options)

// WithLevel sets the minimum enabled level. An empty string keeps "info".
func WithLevel(level string) Option {
	return func(o *options) {
		if level != "" {
			o.level = level
		}
	}
}

// WithConsole switches to the human readable console encoder on stderr,
// used by command line tools whose stdout carries results.
func WithConsole() Option {
	return func(o *options) {
		o.console = true
	}
}

// New creates a production-ready structured logger configured for JSON output.
func New(opts ...Option) (*zap.Logger, error) {
	o := options{level: "info"}
	for _, opt := range opts {
		opt(&o)
	}

	level, err := zap.ParseAtomicLevel(o.level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	cfg.DisableStacktrace = false

	if o.console {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.DisableStacktrace = true
		cfg.OutputPaths = []string{"stderr"}
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
