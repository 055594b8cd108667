package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriterTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo})

	logger.Info("indexing started", "chunks", 42)

	out := buf.String()
	if !strings.Contains(out, "indexing started") {
		t.Errorf("output missing message: %s", out)
	}
	if !strings.Contains(out, "chunks=42") {
		t.Errorf("output missing attribute: %s", out)
	}
}

func TestNewWithWriterJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo, JSON: true})

	logger.Info("query served", "top_k", 6)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v; raw: %s", err, buf.String())
	}
	if entry["msg"] != "query served" {
		t.Errorf("msg = %v, want %q", entry["msg"], "query served")
	}
	if entry["top_k"] != float64(6) {
		t.Errorf("top_k = %v, want 6", entry["top_k"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelWarn})

	logger.Debug("hidden")
	logger.Info("also hidden")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("below-level entries leaked: %s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("warn entry missing: %s", out)
	}
}

func TestNewNopDiscardsOutput(t *testing.T) {
	logger := NewNop()
	// Must not panic and must accept any level
	logger.Debug("d")
	logger.Info("i")
	logger.Error("e", "key", "value")
}
