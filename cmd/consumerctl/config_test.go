package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/rdmsession/internal/config"
	"github.com/rs/zerolog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadRuntimeConfigFromTemplate(t *testing.T) {
	tmpl, err := config.Template("consumer")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	cfg, err := loadRuntimeConfig(writeConfig(t, tmpl))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Node.User != "rdm-user" {
		t.Fatalf("unexpected user: %q", cfg.Node.User)
	}
	if len(cfg.Node.Items) != 2 {
		t.Fatalf("unexpected items: %+v", cfg.Node.Items)
	}
	if cfg.LogLevel == nil || *cfg.LogLevel != zerolog.InfoLevel {
		t.Fatalf("unexpected log level: %v", cfg.LogLevel)
	}
}

func TestLoadRuntimeConfigWithoutLogLevel(t *testing.T) {
	cfg, err := loadRuntimeConfig(writeConfig(t, "user = \"alice\"\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.LogLevel != nil {
		t.Fatalf("expected no log level, got %v", *cfg.LogLevel)
	}
	if cfg.Node.Address != "127.0.0.1:14002" {
		t.Fatalf("default address not kept: %q", cfg.Node.Address)
	}
}

func TestLoadRuntimeConfigRejectsBadLogLevel(t *testing.T) {
	if _, err := loadRuntimeConfig(writeConfig(t, "user = \"alice\"\nlog_level = \"loud\"\n")); err == nil {
		t.Fatalf("expected log_level error")
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := config.DefaultConsumerConfig()
	cfg.User = "alice"
	if err := applyFlags(&cfg, " 10.0.0.2:14002 ", "", splitList("IBM.N, ,TRI.N")); err != nil {
		t.Fatalf("apply flags: %v", err)
	}
	if cfg.Address != "10.0.0.2:14002" || cfg.User != "alice" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if len(cfg.Items) != 2 || cfg.Items[1] != "TRI.N" {
		t.Fatalf("unexpected items: %+v", cfg.Items)
	}
	if err := applyFlags(&cfg, "no-port", "", nil); err == nil {
		t.Fatalf("expected address validation error")
	}
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := loadRuntimeConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load example: %v", err)
	}
	if cfg.Node.SymbolList != "0#.DJI" || !cfg.Node.DownloadDictionary {
		t.Fatalf("unexpected example config: %+v", cfg.Node)
	}
}
