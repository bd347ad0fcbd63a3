// podhub-mcp is a standalone MCP server for podhub. It opens the podhub
// catalog database directly and serves podcast tools over stdio.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matthewjhunter/podhub"
	"github.com/matthewjhunter/podhub/internal/config"
)

func main() {
	configPath := flag.String("config", "./config/config.yaml", "config file path (.yaml or .toml)")
	dbPath := flag.String("db", "", "path to SQLite database (overrides config)")
	poll := flag.Duration("poll", 0, "refresh every podcast on this interval in the background (0 disables)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "podhub-mcp: %v\n", err)
		os.Exit(1)
	}
	// stdout carries the protocol; logs go to stderr.
	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "podhub-mcp: %v\n", err)
		os.Exit(1)
	}
	log := logger.WithField("component", "mcp")

	engine, err := podhub.NewEngine(podhub.EngineConfig{
		DBPath: *dbPath,
		Config: cfg,
		Logger: logger,
	})
	if err != nil {
		log.WithError(err).Fatal("open engine")
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := newServer(engine, log)
	if *poll > 0 {
		srv.poller = newPoller(engine, clampInterval(*poll), logger.WithField("component", "poller"))
		srv.poller.start(ctx)
		defer srv.poller.stop()
	}

	if err := srv.run(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("server error")
	}
}

// clampInterval keeps background polling from hammering feed hosts.
func clampInterval(d time.Duration) time.Duration {
	if d < time.Minute {
		return time.Minute
	}
	return d
}
