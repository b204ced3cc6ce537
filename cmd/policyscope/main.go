// Package main is the entry point for the policyscope server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"policyscope/internal/config"
	"policyscope/internal/domain"
	"policyscope/internal/engine"
	httpserver "policyscope/internal/http"
	"policyscope/internal/storage"
	"policyscope/internal/storage/postgres"
	"policyscope/internal/telemetry"
	"policyscope/internal/vector"
)

func main() {
	configPath := flag.String("config", "config.toml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	telemetry.SetupLogging(cfg.Telemetry.LogLevel, cfg.Telemetry.LogFormat)
	metrics := telemetry.NewMetrics(nil)

	slog.Info("Starting policyscope",
		"http_port", cfg.Server.HTTPPort,
		"storage", cfg.Database.Driver,
	)

	var store domain.Store
	var index vector.Index

	switch cfg.Database.Driver {
	case "postgres":
		pgStore, err := postgres.NewStore(&cfg.Database)
		if err != nil {
			slog.Error("Failed to initialize PostgreSQL storage", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		store = pgStore
		index = pgStore.Index()
	case "memory":
		slog.Warn("Using in-memory storage; all data is lost on restart")
		store = storage.NewMemoryStore()
		index = vector.NewMemoryIndex()
	default:
		slog.Error("Unknown storage driver", "driver", cfg.Database.Driver)
		os.Exit(1)
	}

	eng, err := engine.New(store, index, engine.Options{
		SimilarityFloor:         cfg.Engine.SimilarityFloor,
		DuplicateThreshold:      cfg.Engine.DuplicateThreshold,
		RoleSimilarityThreshold: cfg.Engine.RoleSimilarityThreshold,
		Metrics:                 metrics,
	})
	if err != nil {
		slog.Error("Failed to initialize engine", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("Received shutdown signal", "signal", sig)
		cancel()
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.HTTPPort)
	server := httpserver.NewServer(cfg, eng, store)

	slog.Info("policyscope ready",
		"api_endpoint", fmt.Sprintf("http://localhost:%d/v1", cfg.Server.HTTPPort),
	)
	if err := server.Start(ctx, addr); err != nil && err != http.ErrServerClosed {
		slog.Error("HTTP server error", "error", err)
		os.Exit(1)
	}

	slog.Info("policyscope stopped")
}
