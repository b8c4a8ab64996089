package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestInitWithWriter_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json")
	defer InitWithWriter(new(bytes.Buffer), "INFO", "text")

	Info("factory started", KeyFactory, "MEMORY", KeyState, "RUNNING")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v (output %q)", err, buf.String())
	}
	if entry[KeyFactory] != "MEMORY" {
		t.Errorf("factory field = %v, want MEMORY", entry[KeyFactory])
	}
	if entry["msg"] != "factory started" {
		t.Errorf("msg field = %v, want %q", entry["msg"], "factory started")
	}
}

func TestInitWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text")
	defer InitWithWriter(new(bytes.Buffer), "INFO", "text")

	Debug("dropped")
	Info("dropped too")
	Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("sub-WARN messages leaked through: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("WARN message missing from output: %q", out)
	}
}

func TestWith_CarriesFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")
	defer InitWithWriter(new(bytes.Buffer), "INFO", "text")

	log := With(KeyFactory, "FILE")
	log.Info("opened", KeyPath, "/tmp/demo.rrd")

	out := buf.String()
	if !strings.Contains(out, "factory=FILE") || !strings.Contains(out, "path=/tmp/demo.rrd") {
		t.Errorf("bound fields missing from output: %q", out)
	}
}
