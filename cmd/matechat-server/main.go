// Package main provides the entry point for the matechat HTTP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mlundqvist/matechat-go/internal/aiclient"
	"github.com/mlundqvist/matechat-go/internal/config"
	"github.com/mlundqvist/matechat-go/internal/metrics"
	"github.com/mlundqvist/matechat-go/internal/server"
	"github.com/mlundqvist/matechat-go/internal/store"
)

const version = "0.1.0"

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()

	logger.Info("matechat-server starting",
		"version", version,
		"provider", cfg.Provider,
		"data_file", cfg.DataFile,
		"port", cfg.ServerPort,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	stats := metrics.NewCollector()

	st, err := store.Open(store.Options{
		Path:    cfg.DataFile,
		Logger:  logger,
		Metrics: stats,
	})
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer func() {
		logger.Info("closing store")
		if err := st.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	client, err := aiclient.New(cfg, logger)
	if err != nil {
		logger.Error("failed to init AI client", "error", err)
		os.Exit(1)
	}

	srv := server.New(st, client, stats, logger)

	logger.Info("server ready", "addr", cfg.ServerPort)

	// Run server (blocks until context cancelled)
	if err := srv.Run(ctx, cfg.ServerPort); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
