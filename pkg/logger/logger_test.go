package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func captureJSON(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := GetLevel()
	SetJSONOutput(&buf)
	t.Cleanup(func() {
		SetLevel(prev)
		SetOutput(os.Stderr)
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := captureJSON(t)
	SetLevel(WARN)

	InfoC("core", "hidden")
	WarnC("core", "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line written at WARN level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn line missing: %s", out)
	}
}

func TestFieldsAndComponent(t *testing.T) {
	buf := captureJSON(t)
	SetLevel(DEBUG)

	InfoCF("router", "delivered", map[string]any{"target_id": "g1", "segments": 3})

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("unmarshal log line: %v (%s)", err, buf.String())
	}
	if line["component"] != "router" {
		t.Errorf("component = %v, want router", line["component"])
	}
	if line["target_id"] != "g1" {
		t.Errorf("target_id = %v, want g1", line["target_id"])
	}
	if line["message"] != "delivered" {
		t.Errorf("message = %v, want delivered", line["message"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"error":   ERROR,
		"fatal":   FATAL,
		"bogus":   INFO,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
