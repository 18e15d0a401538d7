package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/rdmsession/internal/logging"
	"github.com/danmuck/rdmsession/internal/node"
	"github.com/rs/zerolog"
)

func main() {
	path := flag.String("config", "cmd/consumerctl/config.toml", "consumer config path")
	addr := flag.String("addr", "", "provider address, overrides the config")
	user := flag.String("user", "", "login user name, overrides the config")
	items := flag.String("items", "", "comma-separated item names, overrides the config")
	flag.Parse()

	logging.ConfigureRuntime()
	if err := run(*path, *addr, *user, splitList(*items)); err != nil {
		fmt.Fprintf(os.Stderr, "consumerctl: %v\n", err)
		os.Exit(1)
	}
}

func run(path, addr, user string, items []string) error {
	cfg, err := loadRuntimeConfig(path)
	if err != nil {
		return err
	}
	if cfg.LogLevel != nil {
		zerolog.SetGlobalLevel(*cfg.LogLevel)
	}
	if err := applyFlags(&cfg.Node, addr, user, items); err != nil {
		return err
	}

	n, err := node.NewConsumer(cfg.Node)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return node.Run(ctx, n, n.Admin())
}
