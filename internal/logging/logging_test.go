package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	logger, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger == nil {
		t.Fatalf("expected logger instance")
	}
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected debug to be disabled by default")
	}
	_ = logger.Sync()
}

func TestNewWithLevel(t *testing.T) {
	logger, err := New(WithLevel("debug"), WithConsole())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected debug to be enabled")
	}

	logger, err = New(WithLevel(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("expected empty level to keep info")
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(WithLevel("chatty")); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
