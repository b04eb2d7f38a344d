package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandroruanova/rowloader/internal/app"
	"github.com/alejandroruanova/rowloader/internal/infrastructure/queue"
	"github.com/alejandroruanova/rowloader/internal/infrastructure/storage"
	"github.com/alejandroruanova/rowloader/internal/pkg/config"
	"github.com/alejandroruanova/rowloader/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", logger.Err(err))
		os.Exit(1)
	}
	log := logger.Initialize(cfg.Environment, cfg.LogLevel)
	cfg.LogConfig(log)

	a, err := app.New(cfg, log, app.Options{})
	if err != nil {
		log.Error("failed to initialize", logger.Err(err))
		os.Exit(1)
	}
	defer a.Close()

	var results queue.ResultStore
	if a.Cache != nil {
		results = a.Cache
	}
	handler := queue.NewIngestHandler(a.Service, results,
		time.Duration(cfg.Ingest.ResultTTL)*time.Second, log)

	server, err := queue.NewAsynqServer(&cfg.Queue, log)
	if err != nil {
		log.Error("failed to create worker", logger.Err(err))
		os.Exit(1)
	}
	server.Use(queue.LoggingMiddleware(log))
	server.Handle(queue.TaskTypeIngestRun, handler)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if local, ok := a.Storage.(*storage.LocalStorage); ok && cfg.Ingest.UploadRetention > 0 {
		go cleanupUploads(ctx, local, time.Duration(cfg.Ingest.UploadRetention)*time.Hour, log)
	}

	// Run blocks until SIGINT/SIGTERM and drains in-flight tasks
	if err := server.Start(); err != nil {
		log.Error("worker stopped", logger.Err(err))
		os.Exit(1)
	}
}

func cleanupUploads(ctx context.Context, files *storage.LocalStorage, retention time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		if _, err := files.CleanupOldFiles(ctx, retention); err != nil {
			log.Warn("upload cleanup failed", logger.Err(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
