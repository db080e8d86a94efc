package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"contentflow/internal/activities"
	"contentflow/internal/config"
	"contentflow/internal/fetch"
	"contentflow/internal/objectstore"
	"contentflow/internal/storage"
	"contentflow/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg, err := config.Load()
	if err != nil {
		fatal(logger, "load config", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := storage.Bootstrap(ctx, cfg.PostgresURL, cfg.EmbedDim); err != nil {
		fatal(logger, "bootstrap database", err)
	}
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		fatal(logger, "connect database", err)
	}
	defer db.Close()

	var objects fetch.ObjectReader
	if cfg.S3Bucket != "" {
		store, err := objectstore.NewS3Store(ctx, cfg)
		if err != nil {
			fatal(logger, "object storage", err)
		}
		objects = store
	}

	a, err := activities.New(ctx, cfg, db, objects, logger)
	if err != nil {
		fatal(logger, "build activities", err)
	}
	defer a.Close()

	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    tlog.NewStructuredLogger(logger),
	})
	if err != nil {
		fatal(logger, "dial temporal", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	activities.Register(w, a)

	logger.Info("contentflow worker starting",
		"temporal", cfg.TemporalAddress,
		"queue", cfg.TemporalTaskQueue,
		"embed_providers", cfg.EmbedProviders,
		"uploads", objects != nil,
	)
	if err := w.Run(worker.InterruptCh()); err != nil {
		fatal(logger, "worker stopped", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
