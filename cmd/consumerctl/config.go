package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/rdmsession/internal/config"
	"github.com/danmuck/rdmsession/internal/logging"
	"github.com/rs/zerolog"
)

type runtimeConfig struct {
	Node     config.ConsumerConfig
	LogLevel *zerolog.Level
}

// fileConfig holds the process-level keys internal/config does not own.
type fileConfig struct {
	LogLevel string `toml:"log_level"`
}

func loadRuntimeConfig(path string) (runtimeConfig, error) {
	node, err := config.LoadConsumerConfig(path)
	if err != nil {
		return runtimeConfig{}, err
	}
	out := runtimeConfig{Node: node}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runtimeConfig{}, fmt.Errorf("load consumerctl config: %w", err)
	}
	if meta.IsDefined("log_level") {
		level, ok := logging.ParseLevel(raw.LogLevel)
		if !ok {
			return runtimeConfig{}, fmt.Errorf("parse log_level: unknown level %q", strings.TrimSpace(raw.LogLevel))
		}
		out.LogLevel = &level
	}
	return out, nil
}

// applyFlags overrides file values with the flags that were set.
func applyFlags(cfg *config.ConsumerConfig, addr, user string, items []string) error {
	if addr = strings.TrimSpace(addr); addr != "" {
		cfg.Address = addr
	}
	if user = strings.TrimSpace(user); user != "" {
		cfg.User = user
	}
	if len(items) > 0 {
		cfg.Items = items
	}
	return config.ValidateConsumerConfig(*cfg)
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
