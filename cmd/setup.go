package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursemate/coursemate/db"
	"github.com/coursemate/coursemate/internal/ai"
	"github.com/coursemate/coursemate/internal/config"
	"github.com/coursemate/coursemate/internal/course"
	"github.com/coursemate/coursemate/internal/knowledge"
	"github.com/coursemate/coursemate/internal/rag"
)

// runSetup prepares a fresh deployment: it runs the database migrations,
// loads the course catalog and builds the vector knowledge base. With
// --force an already-populated knowledge base is rebuilt from scratch.
func runSetup(args []string) error {
	logger := initLogger()

	force := false
	for _, arg := range args {
		switch arg {
		case "--force", "-f":
			force = true
		default:
			return fmt.Errorf("unknown setup flag %q", arg)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("creating connection pool: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
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

	recommender := rag.New(processor, store, aiClient, rag.Config{
		RetrievalK:     cfg.RetrievalK,
		ChatModel:      cfg.ModelName,
		EmbeddingModel: cfg.EmbeddingModel,
	}, logger.With("component", "rag"))

	if err := recommender.Initialize(ctx, force); err != nil {
		return fmt.Errorf("building knowledge base: %w", err)
	}

	stats, err := recommender.Stats(ctx)
	if err != nil {
		return fmt.Errorf("reading knowledge base stats: %w", err)
	}
	logger.Info("setup complete",
		"courses", stats.TotalCourses,
		"categories", stats.TotalCategories,
	)
	return nil
}
