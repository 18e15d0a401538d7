package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/rdmsession/internal/config"
	"github.com/danmuck/rdmsession/internal/logging"
	"github.com/danmuck/rdmsession/internal/node"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	path := flag.String("config", "cmd/providerctl/config.toml", "provider config path")
	listen := flag.String("listen", "", "listen address, overrides the config")
	flag.Parse()

	logging.ConfigureRuntime()
	if err := run(*path, *listen); err != nil {
		fmt.Fprintf(os.Stderr, "providerctl: %v\n", err)
		os.Exit(1)
	}
}

func run(path, listen string) error {
	cfg, err := loadRuntimeConfig(path)
	if err != nil {
		return err
	}
	if cfg.LogLevel != nil {
		zerolog.SetGlobalLevel(*cfg.LogLevel)
	}
	if listen = strings.TrimSpace(listen); listen != "" {
		cfg.Node.Listen = listen
		if err := config.ValidateProviderConfig(cfg.Node); err != nil {
			return err
		}
	}

	n, err := node.NewProvider(cfg.Node)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log.Info().Str("addr", n.Addr()).Msg("providerctl.run")

	if cfg.RedirectTo == "" {
		return node.Run(ctx, n, n.Admin())
	}
	r := &redirectingNode{ProviderNode: n, to: cfg.RedirectTo, sig: make(chan os.Signal, 1)}
	signal.Notify(r.sig, syscall.SIGUSR1)
	defer signal.Stop(r.sig)
	return node.Run(ctx, r, n.Admin())
}

// redirectingNode moves every connected consumer to another provider on
// SIGUSR1.
type redirectingNode struct {
	*node.ProviderNode
	to  string
	sig chan os.Signal
}

func (r *redirectingNode) Tick(timeout time.Duration) error {
	select {
	case <-r.sig:
		if err := r.Redirect(r.to); err != nil {
			log.Warn().Err(err).Str("to", r.to).Msg("providerctl.redirect")
		}
	default:
	}
	return r.ProviderNode.Tick(timeout)
}
