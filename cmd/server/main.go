// Package main runs the lexichat backend: chunked document uploads,
// indexing into Qdrant and the chat query endpoint.
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

	"github.com/lexichat/backend/internal/answer"
	"github.com/lexichat/backend/internal/api"
	"github.com/lexichat/backend/internal/config"
	"github.com/lexichat/backend/internal/embedding"
	"github.com/lexichat/backend/internal/ingest"
	"github.com/lexichat/backend/internal/retrieval"
	"github.com/lexichat/backend/internal/segment"
	"github.com/lexichat/backend/internal/upload"
	"github.com/lexichat/backend/internal/vectorstore"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	store := vectorstore.NewGateway(cfg.QdrantHost, cfg.QdrantPort, logger)
	defer store.Close()

	embedClient, err := embedding.NewClient(cfg.OpenAIAPIKey)
	if err != nil {
		return err
	}

	batcher := embedding.NewBatcher(embedClient, logger)
	pipeline := ingest.NewPipeline(segment.NewSplitter(), batcher, store, logger)

	governor := retrieval.NewMemoryGovernor(cfg.MemoryThresholdMB)
	selector := retrieval.NewSelector(batcher, store, governor, logger)

	generator := answer.NewGenerator(embedClient.OpenAI(), logger).
		WithModels(cfg.PrimaryModel, cfg.FallbackModel)

	uploads := upload.NewManager(cfg.UploadDir, cfg.MaxFileSize, cfg.UploadRetention, logger)

	budget := retrieval.Budget{
		MaxContextTokens:  cfg.MaxContextTokens,
		MaxSegmentCount:   cfg.MaxSegmentCount,
		MemoryThresholdMB: cfg.MemoryThresholdMB,
	}
	handler := api.NewHandler(uploads, pipeline, selector, generator, store, budget, cfg.UploadRetention, logger)

	server := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: api.NewRouter(handler, logger),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", cfg.ServerAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}
