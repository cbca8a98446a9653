package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"unknown", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input)
			if got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestInitJSONFormat(t *testing.T) {
	defer func() { _ = Close() }()

	var buf bytes.Buffer
	if err := Init(LogConfig{Level: "info", Format: "json", Out: &buf}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	Debug().Msg("hidden")
	Info().Str("conv", "c1").Msg("builder: chunked")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "builder: chunked" || entry["conv"] != "c1" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestInitConsoleFormat(t *testing.T) {
	defer func() { _ = Close() }()

	var buf bytes.Buffer
	if err := Init(LogConfig{Level: "debug", Format: "console", Out: &buf}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	Debug().Msg("console line")

	if !strings.Contains(buf.String(), "console line") {
		t.Errorf("console output missing message: %q", buf.String())
	}
}

func TestInitWithFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	defer func() { _ = Close() }()

	var buf bytes.Buffer
	if err := Init(LogConfig{Level: "debug", Format: "json", File: logPath, Out: &buf}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	Info().Str("test", "value").Msg("test message")

	if err := Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Read log file failed: %v", err)
	}
	if !strings.Contains(string(content), "test message") {
		t.Errorf("Log file doesn't contain expected message, got: %s", string(content))
	}
	if !strings.Contains(buf.String(), "test message") {
		t.Errorf("primary sink doesn't contain expected message, got: %s", buf.String())
	}
}

func TestInitWithInvalidFile(t *testing.T) {
	defer func() { _ = Close() }()

	err := Init(LogConfig{
		Level:  "info",
		Format: "json",
		File:   "/nonexistent/directory/test.log",
	})
	if err == nil {
		t.Error("Expected error for invalid file path")
	}
}

func TestComponent(t *testing.T) {
	defer func() { _ = Close() }()

	var buf bytes.Buffer
	if err := Init(LogConfig{Level: "info", Format: "json", Out: &buf}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	l := Component("watcher")
	l.Info().Msg("watcher: reloaded")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("parse entry: %v", err)
	}
	if entry["component"] != "watcher" {
		t.Errorf("component = %v, want watcher", entry["component"])
	}
}

func TestLevelFiltering(t *testing.T) {
	defer func() { _ = Close() }()

	var buf bytes.Buffer
	if err := Init(LogConfig{Level: "warn", Format: "json", Out: &buf}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	Info().Msg("info message")
	if buf.Len() > 0 {
		t.Error("Info message should be filtered")
	}

	Warn().Msg("warn message")
	Error().Msg("error message")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}
}

func TestGetWithoutInit(t *testing.T) {
	mu.Lock()
	initialized = false
	mu.Unlock()

	logger := Get()
	if logger == nil {
		t.Fatal("Get() should return a default logger when not initialized")
	}
}
