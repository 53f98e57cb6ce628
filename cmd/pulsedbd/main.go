// Package main runs the datastore as a standalone process: it opens the
// pool, starts the single-writer worker, and blocks until an operator
// signal requests a graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulsedb/pulsedb/internal/config"
	"github.com/pulsedb/pulsedb/internal/datastore"
)

const (
	name             = "pulsedbd"
	shutdownDeadline = 30 * time.Second
)

func main() {
	showVersion := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s\n", name)
		os.Exit(0)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	logger.Info("starting datastore",
		slog.String("service", name),
		slog.String("database_url", cfg.MaskDatabaseURL()),
		slog.Duration("commit_interval", cfg.CommitInterval),
		slog.Int("commit_event_threshold", cfg.CommitEventThresh),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ds, conn, err := datastore.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start datastore", slog.String("error", err.Error()))
		os.Exit(1)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	sig := <-stop
	logger.Info("received shutdown signal", slog.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer shutdownCancel()

	if err := ds.Close(shutdownCtx); err != nil {
		logger.Error("datastore shutdown failed", slog.String("error", err.Error()))
	}

	if err := conn.Close(); err != nil {
		logger.Error("connection close failed", slog.String("error", err.Error()))
	}

	logger.Info("datastore stopped")
}
