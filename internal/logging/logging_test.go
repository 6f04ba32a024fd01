package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"surveydesk/internal/config"
	"surveydesk/internal/logging"
)

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "surveydesk.log")
	cfg := config.Default().Log
	cfg.File = path
	cfg.Level = "warn"
	log, err := logging.New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.Info("hidden")
	log.Warn("fallback used")
	_ = log.Sync()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), "fallback used") || strings.Contains(string(b), "hidden") {
		t.Fatalf("unexpected log file content %q", b)
	}
}

func TestJSONFormat(t *testing.T) {
	cfg := config.Default().Log
	cfg.Format = "json"
	log, err := logging.New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !log.Core().Enabled(0) {
		t.Fatalf("info should be enabled")
	}
}
