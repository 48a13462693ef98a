package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8080" || cfg.StoreEngine != "sqlite" || cfg.Locale != "ja" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.CaptureTimeout != 10*time.Second || cfg.Feeds.Timeout != 10*time.Second {
		t.Fatalf("unexpected timeouts: capture=%s feeds=%s", cfg.CaptureTimeout, cfg.Feeds.Timeout)
	}
	if cfg.COS.Region != "ap-hongkong" || cfg.COS.Prefix != "birddex" {
		t.Fatalf("unexpected cos defaults: %+v", cfg.COS)
	}
	if cfg.DataPath() != "data/birddex.db" {
		t.Fatalf("expected sqlite data path, got %s", cfg.DataPath())
	}
}

func TestLoadDotenvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "BIRDDEX_PORT=9090\nBIRDDEX_LOCALE=en\nBIRDDEX_AR_TARGET_ORIGIN=https://ar.example\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	t.Setenv("BIRDDEX_LOCALE", "ja")
	// Registered for restore, then cleared so the file can set them.
	for _, key := range []string{"BIRDDEX_PORT", "BIRDDEX_AR_TARGET_ORIGIN"} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("expected port from file, got %d", cfg.Port)
	}
	if cfg.Locale != "ja" {
		t.Fatalf("expected environment to win, got locale=%s", cfg.Locale)
	}
	if got := cfg.BridgeConfig().TargetOrigin; got != "https://ar.example" {
		t.Fatalf("expected target origin from file, got %s", got)
	}
}

func TestParseEnvNestedAndLists(t *testing.T) {
	t.Setenv("BIRDDEX_STORE", "json")
	t.Setenv("BIRDDEX_ALLOWED_SPECIES", "sparrow,owl")
	t.Setenv("BIRDDEX_FEEDS_EBIRD_API_KEY", "token")
	t.Setenv("BIRDDEX_COS_BUCKET_NAME", "dex-1250000000")
	t.Setenv("BIRDDEX_OTEL_ENABLED", "false")

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("ParseEnv() error = %v", err)
	}
	if len(cfg.AllowedSpecies) != 2 || cfg.AllowedSpecies[1] != "owl" {
		t.Fatalf("unexpected species: %v", cfg.AllowedSpecies)
	}
	if cfg.FeedsConfig().EBirdAPIKey != "token" {
		t.Fatalf("expected ebird key, got %+v", cfg.FeedsConfig())
	}
	if cfg.BackupConfig().Bucket != "dex-1250000000" {
		t.Fatalf("expected bucket, got %+v", cfg.BackupConfig())
	}
	if cfg.Otel.Enabled {
		t.Fatalf("expected tracing disabled")
	}
	if cfg.DataPath() != "data/birddex.json" {
		t.Fatalf("expected json data path, got %s", cfg.DataPath())
	}
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("BIRDDEX_PORT", "not-an-int")

	var cfg Config
	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
