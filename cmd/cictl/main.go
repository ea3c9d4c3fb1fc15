package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	logs "github.com/danmuck/smplog"

	"github.com/danmuck/cictl/internal/admin"
	"github.com/danmuck/cictl/internal/observability"
	"github.com/danmuck/cictl/internal/rank"
	"github.com/danmuck/cictl/internal/transport"
	"github.com/danmuck/cictl/internal/transport/remote"
	"github.com/danmuck/cictl/internal/transport/sim"
)

func main() {
	path := flag.String("config", "cmd/cictl/config.toml", "runtime config path")
	flag.Parse()

	observability.InitLogger("cictl")
	cfg, err := loadRuntimeConfig(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cictl: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "cictl: %v\n", err)
		os.Exit(1)
	}
}

func newRegistry() (*transport.Registry, error) {
	reg := transport.NewRegistry()
	if err := reg.Register(sim.NewBackend()); err != nil {
		return nil, err
	}
	if err := reg.Register(remote.NewBackend()); err != nil {
		return nil, err
	}
	return reg, nil
}

func run(cfg runtimeConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, err := newRegistry()
	if err != nil {
		return err
	}
	r, err := rank.Open(reg, cfg.Rank, cfg.Transport)
	if err != nil {
		return err
	}
	defer r.Close()

	srv := admin.New("cictl", cfg.AdminAddr, r, cfg.CorsOrigins)
	if cfg.Bringup {
		if err := r.Bringup(); err != nil {
			return fmt.Errorf("rank %s: %w", r.ID(), err)
		}
		srv.SetReady(true)
	}
	logs.Infof("cictl.run serving rank=%s transport=%s admin=%s", r.ID(), cfg.Transport.Kind, cfg.AdminAddr)

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
