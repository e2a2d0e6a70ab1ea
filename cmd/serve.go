package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursemate/coursemate/db"
	"github.com/coursemate/coursemate/internal/ai"
	"github.com/coursemate/coursemate/internal/api"
	"github.com/coursemate/coursemate/internal/config"
	"github.com/coursemate/coursemate/internal/conversation"
	"github.com/coursemate/coursemate/internal/course"
	"github.com/coursemate/coursemate/internal/knowledge"
	"github.com/coursemate/coursemate/internal/observability"
	"github.com/coursemate/coursemate/internal/rag"
	"github.com/coursemate/coursemate/internal/watch"
)

const (
	// apiRateLimit is the sustained request rate the API accepts; the burst
	// is configurable via rate_burst.
	apiRateLimit = 20

	shutdownTimeout = 30 * time.Second
	tracesFlush     = 5 * time.Second
)

// runServe wires the full recommendation pipeline and serves the HTTP API:
// config, postgres pool, migrations, OpenAI client, knowledge store,
// conversation store, recommender, catalog watcher, HTTP server.
func runServe() error {
	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting API service", "version", Version, "addr", cfg.APIAddr)

	if cfg.Tracing.Enabled {
		shutdown, err := observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.Tracing.ServiceName,
			Environment: cfg.Tracing.Environment,
		}, logger)
		if err != nil {
			return fmt.Errorf("setting up tracing: %w", err)
		}
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), tracesFlush)
			defer flushCancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Warn("flushing traces", "error", err)
			}
		}()
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("creating connection pool: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	aiClient := ai.New(ai.Config{
		APIKey:             os.Getenv("OPENAI_API_KEY"),
		ChatModel:          cfg.ModelName,
		EmbeddingModel:     cfg.EmbeddingModel,
		EmbeddingDims:      knowledge.VectorDimension,
		DefaultTemperature: cfg.Temperature,
		DefaultMaxTokens:   cfg.MaxTokens,
	}, logger.With("component", "ai"))

	processor := course.NewProcessor(cfg.CourseDataPath, logger.With("component", "course"))
	store := knowledge.New(pool, aiClient, knowledge.Options{
		TopK:      cfg.RetrievalK,
		Threshold: cfg.SimilarityThreshold,
	}, logger.With("component", "knowledge"))
	sessions := conversation.NewStore(pool, logger.With("component", "conversation"))

	recommender := rag.New(processor, store, aiClient, rag.Config{
		RetrievalK:     cfg.RetrievalK,
		ChatModel:      cfg.ModelName,
		EmbeddingModel: cfg.EmbeddingModel,
	}, logger.With("component", "rag"))

	if err := recommender.Initialize(ctx, false); err != nil {
		return fmt.Errorf("initializing knowledge base: %w", err)
	}

	// Rebuild the knowledge base when the catalog file changes on disk.
	watcher := watch.New(watch.Config{Path: cfg.CourseDataPath}, logger.With("component", "watch"))
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		if err := watcher.Run(ctx, recommender.Rebuild); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("catalog watcher stopped", "error", err)
		}
	}()

	apiServer := api.New(ctx, recommender, sessions, api.Options{
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   apiRateLimit,
		RateBurst:   cfg.RateBurst,
		DB:          pool,
	}, logger.With("component", "api"))

	srv := apiServer.NewHTTPServer(cfg.APIAddr)

	logger.Info("API service ready", "addr", cfg.APIAddr, "health", "/health")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down API service")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		<-watchDone
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
