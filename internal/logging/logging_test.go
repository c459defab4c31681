package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/aegis/hedge-engine/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", in, err)
		}
		if got != want {
			t.Errorf("%q: expected %v, got %v", in, want, got)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNew_OverrideAndFormat(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "error", Format: "console"}, "debug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("override should enable debug logging")
	}

	if _, err := New(config.LoggingConfig{Format: "xml"}, ""); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestNew_OutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "hedge.log")
	logger, err := New(config.LoggingConfig{Level: "info", Format: "json", OutputFile: path}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("hedge solved")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "hedge solved") {
		t.Errorf("log file missing entry: %s", data)
	}
}
