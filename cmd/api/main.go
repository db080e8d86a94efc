package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"contentflow/internal/api"
	"contentflow/internal/config"
	"contentflow/internal/embedding"
	"contentflow/internal/objectstore"
	"contentflow/internal/providers"
	"contentflow/internal/retry"
	"contentflow/internal/search"
	"contentflow/internal/storage"
	"contentflow/internal/vector"

	"github.com/joho/godotenv"
	tclient "go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
)

func main() {
	_ = godotenv.Load(".env")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg, err := config.Load()
	if err != nil {
		fatal(logger, "load config", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := storage.NewDB(startCtx, cfg.PostgresURL)
	if err != nil {
		fatal(logger, "connect database", err)
	}
	defer db.Close()

	pm, err := providers.NewManager(ctx, cfg)
	if err != nil {
		fatal(logger, "embedding providers", err)
	}
	defer pm.Close()
	gen := embedding.NewGenerator(pm, retry.FromConfig(cfg.Retry.Embedding), logger)
	engine, err := search.NewEngine(vector.NewSearcher(db.Pool), gen, cfg.Ranking)
	if err != nil {
		fatal(logger, "search engine", err)
	}

	tc, err := tclient.Dial(tclient.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    tlog.NewStructuredLogger(logger),
	})
	if err != nil {
		fatal(logger, "dial temporal", err)
	}
	defer tc.Close()

	deps := api.Deps{
		Workflows: api.NewTemporalWorkflows(tc, cfg.TemporalTaskQueue),
		Documents: storage.NewDocumentRepo(db),
		Chunks:    storage.NewChunkRepo(db),
		Search:    engine,
		DB:        db,
		Logger:    logger,
	}
	if cfg.S3Bucket != "" {
		store, err := objectstore.NewS3Store(startCtx, cfg)
		if err != nil {
			fatal(logger, "object storage", err)
		}
		deps.Objects = store
	}

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           api.NewServer(cfg, deps).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("contentflow api listening", "addr", cfg.APIAddr, "embed_providers", pm.EmbedProviderRefs(), "uploads", deps.Objects != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal(logger, "serve", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
