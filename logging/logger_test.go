package logging

import (
	"bytes"
	"context"
	"encoding/json"
	goerrors "errors"
	"strings"
	"testing"

	"github.com/medistock/syncengine/errors"
)

func TestNewLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLoggerTo(&buf, Config{Level: "info", Format: "json", Environment: "prod"})

	logger.Info("hello", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "hello" {
		t.Errorf("expected msg=hello, got %v", entry["msg"])
	}
	if entry["key"] != "value" {
		t.Errorf("expected key=value, got %v", entry["key"])
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newLoggerTo(&buf, Config{Level: "warn", Format: "json", Environment: "prod"})

	logger.Info("should be dropped")
	if buf.Len() != 0 {
		t.Errorf("info line should have been filtered, got %q", buf.String())
	}

	logger.Warn("should appear")
	if buf.Len() == 0 {
		t.Error("warn line should have been written")
	}
}

func TestLogError_SyncError(t *testing.T) {
	var buf bytes.Buffer
	logger := newLoggerTo(&buf, Config{Level: "error", Format: "json", Environment: "prod"})

	syncErr := errors.NewNetworkError(errors.OpPush, goerrors.New("refused"))
	logger.LogError(context.Background(), syncErr, "push failed")

	out := buf.String()
	for _, want := range []string{"sync_error", "NETWORK_FAILURE", "refused", "push failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got %q", want, out)
		}
	}
}

func TestLogOperation_ReturnsError(t *testing.T) {
	var buf bytes.Buffer
	logger := newLoggerTo(&buf, Config{Level: "debug", Format: "text", Environment: "dev"})

	wantErr := goerrors.New("nope")
	err := logger.LogOperation(context.Background(), Operation("process"), Component("processor"), func() error {
		return wantErr
	})
	if !goerrors.Is(err, wantErr) {
		t.Errorf("expected error to pass through, got %v", err)
	}
	if !strings.Contains(buf.String(), "operation failed") {
		t.Errorf("expected failure line, got %q", buf.String())
	}
}
