package config_test

import (
	"os"
	"strings"
	"testing"
	"time"

	"surveydesk/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Storage.Prefix != "survey_app_" || cfg.Storage.Flat != config.FlatFile || !cfg.Storage.Structured {
		t.Fatalf("unexpected storage defaults %+v", cfg.Storage)
	}
	if cfg.Storage.WaitTimeout != 5*time.Second {
		t.Fatalf("wait timeout %v", cfg.Storage.WaitTimeout)
	}
	if !cfg.Seed.SampleData || cfg.Server.BasePath != "/v0" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestFromYAMLKeepsDefaults(t *testing.T) {
	cfg, err := config.FromYAML([]byte("log:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" || cfg.Storage.Prefix != "survey_app_" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"flat":   "storage:\n  flat: floppy\n",
		"redis":  "storage:\n  flat: redis\n",
		"level":  "log:\n  level: loud\n",
		"format": "log:\n  format: xml\n",
		"prefix": "storage:\n  prefix: \"\"\n",
		"base":   "server:\n  base_path: v0\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := config.FromYAML([]byte(doc)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(config.Path(dir), []byte("storage:\n  flat: memory\nlog:\n  format: json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SURVEYDESK_LOG_LEVEL", "warn")
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Flat != config.FlatMemory || cfg.Log.Format != "json" || cfg.Log.Level != "warn" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Storage.Prefix != "survey_app_" {
		t.Fatalf("defaults lost: %+v", cfg.Storage)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Flat != config.FlatFile {
		t.Fatalf("unexpected config %+v", cfg.Storage)
	}
	if !strings.Contains(config.GenerateDefault(), "prefix: survey_app_") {
		t.Fatalf("template missing prefix")
	}
}
