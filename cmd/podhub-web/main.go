package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
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
	addr := flag.String("addr", "", "listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "podhub-web: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "podhub-web: %v\n", err)
		os.Exit(1)
	}
	log := logger.WithField("component", "web")

	engine, err := podhub.NewEngine(podhub.EngineConfig{
		DBPath: *dbPath,
		Config: cfg,
		Logger: logger,
	})
	if err != nil {
		log.WithError(err).Fatal("open engine")
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      requestID(logging(log, recovery(log, newRouter(engine, log)))),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.HTTP.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("serve")
		}
	}()

	<-done
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("shutdown")
		return
	}
	log.Info("stopped")
}
