package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"filedrop/internal/api"
	"filedrop/internal/blob"
	"filedrop/internal/config"
	"filedrop/internal/github"
	"filedrop/internal/kinds"
	"filedrop/internal/store"
)

func main() {
	_ = godotenv.Load()

	logger := log.Default()
	logger.SetTimeFormat("2006-01-02 15:04:05")

	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", "err", err)
	}

	registry := kinds.Default()
	if cfg.KindsPath != "" {
		registry, err = kinds.Load(cfg.KindsPath)
		if err != nil {
			logger.Fatal("failed to load file kinds", "err", err)
		}
	}

	db, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", "err", err)
	}
	defer db.Close()

	var blobs blob.Store
	switch cfg.BlobBackend {
	case config.BackendGitHub:
		blobs = github.NewBlobStore(cfg.GitHubToken, cfg.GitHubOwner, cfg.GitHubRepo)
	default:
		blobs, err = blob.NewLocalStore(cfg.BlobDir)
		if err != nil {
			logger.Fatal("failed to initialize blob store", "err", err)
		}
	}

	handler := api.NewHandler(cfg, registry, db, blobs, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Router(),
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("files service listening", "addr", server.Addr, "backend", cfg.BlobBackend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", "err", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down files service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
}
