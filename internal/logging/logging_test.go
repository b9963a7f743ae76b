package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}

	for _, tc := range testCases {
		if got := ParseLevel(tc.input); got != tc.expected {
			t.Errorf("ParseLevel(%q): expected %v, got %v", tc.input, tc.expected, got)
		}
	}
}

func TestNewWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: "info", Format: "text"}, &buf)

	logger.Info("run started", "docs", 3)

	out := buf.String()
	if !strings.Contains(out, "run started") || !strings.Contains(out, "docs=3") {
		t.Errorf("Expected text log line, got %q", out)
	}
}

func TestNewWithWriter_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: "info", Format: "json"}, &buf)

	logger.Info("run started", "docs", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected a JSON log line, got %q", buf.String())
	}
	if entry["msg"] != "run started" {
		t.Errorf("Expected msg in JSON entry, got %v", entry["msg"])
	}
}

func TestNewWithWriter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: "warn", Format: "text"}, &buf)

	logger.Info("too quiet")
	logger.Warn("loud enough")

	out := buf.String()
	if strings.Contains(out, "too quiet") {
		t.Error("Expected info suppressed below warn level")
	}
	if !strings.Contains(out, "loud enough") {
		t.Error("Expected warn emitted")
	}
}

func TestNewWithWriter_RedactsSensitiveAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: "info", Format: "text"}, &buf)

	logger.Info("engine configured", "api_key", "sk-live-12345", "endpoint", "https://shield.local")

	out := buf.String()
	if strings.Contains(out, "sk-live-12345") {
		t.Errorf("Expected the credential redacted, got %q", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Errorf("Expected a redaction marker, got %q", out)
	}
	if !strings.Contains(out, "https://shield.local") {
		t.Errorf("Expected non-sensitive attrs kept, got %q", out)
	}
}
