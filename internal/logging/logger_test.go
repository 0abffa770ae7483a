package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewTagsServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(newWithWriter(&buf, "debug", "billpay"), "payments")
	logger.Info("hello", "reference", "ref-1")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if record["service"] != "billpay" || record["component"] != "payments" {
		t.Fatalf("missing tags: %v", record)
	}
	if record["reference"] != "ref-1" {
		t.Fatalf("missing attribute: %v", record)
	}
}

func TestNewInvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, "loud", "")
	logger.Debug("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected debug to be filtered, got %q", buf.String())
	}
	logger.Info("kept")
	if buf.Len() == 0 {
		t.Fatal("expected info line")
	}
}
