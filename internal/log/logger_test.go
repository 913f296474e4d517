package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	logger.Info("tool registered", ToolKey, "alpha.search", ServerKey, "alpha")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry["msg"] != "tool registered" {
		t.Errorf("msg = %v, want 'tool registered'", entry["msg"])
	}
	if entry[ToolKey] != "alpha.search" {
		t.Errorf("%s = %v, want alpha.search", ToolKey, entry[ToolKey])
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "debug", Format: FormatText, Output: &buf})

	logger.Debug("connecting", ServerKey, "beta")

	out := buf.String()
	if !strings.Contains(out, "connecting") || !strings.Contains(out, "server=beta") {
		t.Errorf("unexpected text output: %s", out)
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "warn", Format: FormatJSON, Output: &buf})

	logger.Info("should be dropped")
	if buf.Len() != 0 {
		t.Errorf("info log should be filtered at warn level, got: %s", buf.String())
	}

	logger.Warn("should appear")
	if buf.Len() == 0 {
		t.Error("warn log should not be filtered")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("MODELGATE_DEBUG", "")
	t.Setenv("MODELGATE_LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("LOG_SOURCE", "1")

	cfg := FromEnv()
	if cfg.Level != "warn" {
		t.Errorf("Level = %q, want warn", cfg.Level)
	}
	if cfg.Format != FormatText {
		t.Errorf("Format = %q, want text", cfg.Format)
	}
	if !cfg.AddSource {
		t.Error("LOG_SOURCE=1 should enable AddSource")
	}
}

func TestFromEnv_DebugOverrides(t *testing.T) {
	t.Setenv("MODELGATE_DEBUG", "1")
	t.Setenv("MODELGATE_LOG_LEVEL", "error")

	cfg := FromEnv()
	if cfg.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Level)
	}
	if !cfg.AddSource {
		t.Error("MODELGATE_DEBUG should enable AddSource")
	}
}

func TestTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "trace", Format: FormatJSON, Output: &buf})

	Trace(logger, "raw payload", slog.String(ToolKey, "jq"))
	if !strings.Contains(buf.String(), "raw payload") {
		t.Errorf("trace log should appear at trace level, got: %s", buf.String())
	}

	buf.Reset()
	logger = New(&Config{Level: "debug", Format: FormatJSON, Output: &buf})
	Trace(logger, "raw payload")
	if buf.Len() != 0 {
		t.Errorf("trace log should be filtered at debug level, got: %s", buf.String())
	}
}

func TestWithHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	WithCall(WithServer(WithComponent(logger, "tools"), "alpha"), "alpha.search", "call-1").Info("executed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry["component"] != "tools" {
		t.Errorf("component = %v, want tools", entry["component"])
	}
	if entry[ServerKey] != "alpha" {
		t.Errorf("%s = %v, want alpha", ServerKey, entry[ServerKey])
	}
	if entry[ToolKey] != "alpha.search" {
		t.Errorf("%s = %v, want alpha.search", ToolKey, entry[ToolKey])
	}
	if entry[CallIDKey] != "call-1" {
		t.Errorf("%s = %v, want call-1", CallIDKey, entry[CallIDKey])
	}
}

func TestSanitizeHeader(t *testing.T) {
	if got := SanitizeHeader("abc"); got != "[REDACTED]" {
		t.Errorf("short value should be fully redacted, got %q", got)
	}
	if got := SanitizeHeader("Bearer sk-12345678"); got != "...5678" {
		t.Errorf("SanitizeHeader = %q, want ...5678", got)
	}
}
