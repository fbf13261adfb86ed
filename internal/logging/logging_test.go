package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithOutput(&buf, "debug", "json")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	log.WithField("subject", "math").Debug("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json output, got %q", buf.String())
	}
	if entry["subject"] != "math" || entry["msg"] != "hello" || entry["level"] != "debug" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewDefaults(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithOutput(&buf, "", "")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if log.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level, got %s", log.GetLevel())
	}
	log.Debug("hidden")
	log.Info("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New("loud", "text"); err == nil {
		t.Fatalf("expected bad level error")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Fatalf("expected bad format error")
	}
}
