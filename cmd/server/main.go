package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandroruanova/rowloader/internal/api"
	"github.com/alejandroruanova/rowloader/internal/app"
	"github.com/alejandroruanova/rowloader/internal/infrastructure/queue"
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

	opts := api.Options{
		Runner:         a.Service,
		Storage:        a.Storage,
		Health:         a.HealthChecks(),
		MaxRetries:     cfg.Queue.MaxRetries,
		MaxUploadBytes: cfg.MaxFileSizeBytes(),
		Logger:         log,
	}

	// Queued runs and result polling both need the worker's Redis
	if a.Cache != nil {
		client, err := queue.NewAsynqClient(&cfg.Queue, log)
		if err != nil {
			log.Error("failed to create queue client", logger.Err(err))
			os.Exit(1)
		}
		defer client.Close()
		opts.Queue = client
		opts.Results = a.Cache
	}

	server := api.NewServer(opts)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error("shutdown error", logger.Err(err))
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	if err := server.Start(addr); err != nil {
		log.Error("server stopped", logger.Err(err))
		os.Exit(1)
	}
}
