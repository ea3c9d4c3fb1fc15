package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	logs "github.com/danmuck/smplog"

	"github.com/danmuck/cictl/internal/config"
	"github.com/danmuck/cictl/internal/observability"
	"github.com/danmuck/cictl/internal/transport/remote"
	"github.com/danmuck/cictl/internal/transport/sim"
)

func main() {
	path := flag.String("config", "", "lanesim config path (defaults apply when empty)")
	addr := flag.String("addr", "", "listen address override")
	flag.Parse()

	observability.InitLogger("lanesim")
	cfg := config.DefaultSimConfig()
	if *path != "" {
		loaded, err := config.LoadSimConfig(*path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "lanesim: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "lanesim: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.SimConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := sim.New(cfg.Options())
	if err != nil {
		return err
	}
	defer s.Close()

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	srv := remote.NewServer(s, s.Topology()).WithIdleTimeout(cfg.IdleTimeoutDuration())
	err = srv.Serve(ctx, ln)
	st := s.Stats()
	logs.Infof("lanesim.run stopped commits=%d updates=%d violations=%d", st.Commits, st.Updates, st.Violations)
	return err
}
