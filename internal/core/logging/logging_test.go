package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("info", "json", &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Debug("hidden")
	logger.Info("rule checked", "key", "r1", "errors", 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["msg"] != "rule checked" || entry["key"] != "r1" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("DEBUG", "text", &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Debug("loaded", "path", "rules.yaml")
	if !strings.Contains(buf.String(), "path=rules.yaml") {
		t.Errorf("text output missing attr: %q", buf.String())
	}
}

func TestNew_Invalid(t *testing.T) {
	if _, err := New("loud", "json", nil); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New("info", "xml", nil); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q) error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestContext(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Error("FromContext without logger should return slog.Default")
	}
	l := Discard()
	ctx := WithLogger(context.Background(), l)
	if FromContext(ctx) != l {
		t.Error("FromContext did not return attached logger")
	}
}
