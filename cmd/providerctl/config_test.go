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
	tmpl, err := config.Template("provider")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	cfg, err := loadRuntimeConfig(writeConfig(t, "redirect_to = \"10.0.0.9:14002\"\n"+tmpl))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.Node.Items) != 2 || len(cfg.Node.SymbolLists) != 1 {
		t.Fatalf("unexpected catalogue: %+v", cfg.Node)
	}
	if cfg.LogLevel == nil || *cfg.LogLevel != zerolog.InfoLevel {
		t.Fatalf("unexpected log level: %v", cfg.LogLevel)
	}
	if cfg.RedirectTo != "10.0.0.9:14002" {
		t.Fatalf("unexpected redirect: %q", cfg.RedirectTo)
	}
}

func TestLoadRuntimeConfigRejectsBadLogLevel(t *testing.T) {
	if _, err := loadRuntimeConfig(writeConfig(t, "log_level = \"\"\n")); err == nil {
		t.Fatalf("expected log_level error")
	}
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := loadRuntimeConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load example: %v", err)
	}
	if cfg.Node.ServiceName != "DIRECT_FEED" || cfg.RedirectTo != "" {
		t.Fatalf("unexpected example config: %+v", cfg)
	}
}
