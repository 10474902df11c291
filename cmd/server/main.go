package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"rmr/internal/app"
	"rmr/internal/platform/config"
	"rmr/internal/platform/httpserver"
	"rmr/internal/platform/logger"
)

// main wires dependencies, runs background loops next to the HTTP server and
// shuts everything down on SIGINT or SIGTERM.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "rmr: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	g, ctx := errgroup.WithContext(ctx)
	for _, worker := range a.Workers() {
		g.Go(func() error {
			if err := worker(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		srv := httpserver.New(cfg.Server.Addr, a.Router())
		return httpserver.Serve(ctx, srv, cfg.Server.ShutdownTimeout, log)
	})

	log.Info("rmr started",
		"addr", cfg.Server.Addr,
		"postgres", cfg.Database.URL != "",
		"redis", cfg.Redis.URL != "",
		"kafka", len(cfg.Kafka.Brokers) > 0,
	)
	return g.Wait()
}
