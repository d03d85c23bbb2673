package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info("hidden")
	log.Warn("shown", "chat_id", 7)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "chat_id=7") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestJSONFormatterWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", JSON: true, Output: &buf}).With("update_id", 42)

	log.Debug("relay started")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, buf.String())
	}
	if line["msg"] != "relay started" {
		t.Fatalf("unexpected msg: %v", line["msg"])
	}
	if line["update_id"] != float64(42) {
		t.Fatalf("missing update_id: %v", line)
	}
}

func TestSetDefaultIgnoresNil(t *testing.T) {
	prev := Default()
	SetDefault(nil)
	if Default() != prev {
		t.Fatalf("nil logger replaced default")
	}
}
