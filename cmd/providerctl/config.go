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
	Node       config.ProviderConfig
	LogLevel   *zerolog.Level
	RedirectTo string
}

type fileConfig struct {
	LogLevel   string `toml:"log_level"`
	RedirectTo string `toml:"redirect_to"`
}

func loadRuntimeConfig(path string) (runtimeConfig, error) {
	node, err := config.LoadProviderConfig(path)
	if err != nil {
		return runtimeConfig{}, err
	}
	out := runtimeConfig{Node: node}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runtimeConfig{}, fmt.Errorf("load providerctl config: %w", err)
	}
	if meta.IsDefined("log_level") {
		level, ok := logging.ParseLevel(raw.LogLevel)
		if !ok {
			return runtimeConfig{}, fmt.Errorf("parse log_level: unknown level %q", strings.TrimSpace(raw.LogLevel))
		}
		out.LogLevel = &level
	}
	if meta.IsDefined("redirect_to") {
		out.RedirectTo = strings.TrimSpace(raw.RedirectTo)
	}
	return out, nil
}
