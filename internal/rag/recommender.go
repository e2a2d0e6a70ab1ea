// Package rag glues retrieval and generation together: it keeps the
// course knowledge base in sync with the catalog file and turns user
// queries into grounded recommendations.
package rag

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/coursemate/coursemate/internal/ai"
	"github.com/coursemate/coursemate/internal/course"
	"github.com/coursemate/coursemate/internal/knowledge"
	"github.com/coursemate/coursemate/internal/log"
)

// noResultsMessage is returned when retrieval finds nothing usable.
const noResultsMessage = "抱歉，我找不到符合您需求的課程。請嘗試用不同的關鍵字搜尋，" +
	"例如：「有氧運動」、「瑜珈」、「游泳」、「球類運動」等。"

// recommendationMaxTokens bounds the generated recommendation length.
const recommendationMaxTokens = 1500

// Knowledge is the slice of the knowledge store the recommender uses.
type Knowledge interface {
	Rebuild(ctx context.Context, docs []course.Document) error
	Search(ctx context.Context, query string, k int) ([]knowledge.Result, error)
	ByCategory(ctx context.Context, category string, limit int) ([]knowledge.Entry, error)
	Categories(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int64, error)
	GetStats(ctx context.Context) (knowledge.Stats, error)
}

// Config carries the recommender's tunables.
type Config struct {
	// RetrievalK is the default number of courses to retrieve.
	RetrievalK int
	// ChatModel and EmbeddingModel are reported in stats.
	ChatModel      string
	EmbeddingModel string
}

// Recommendation is the full result of one recommendation round.
type Recommendation struct {
	Query          string             `json:"query"`
	Courses        []knowledge.Result `json:"retrieved_courses"`
	Recommendation string             `json:"recommendation"`
	Success        bool               `json:"success"`
}

// SystemStats describes the whole pipeline for the stats endpoint.
type SystemStats struct {
	TotalCourses    int64     `json:"total_courses"`
	TotalCategories int       `json:"total_categories"`
	Categories      []string  `json:"categories"`
	ChatModel       string    `json:"model_name"`
	EmbeddingModel  string    `json:"embedding_model"`
	LastUpdated     time.Time `json:"last_updated,omitzero"`
}

// UpdateStatus reports whether the catalog file has newer data than the
// knowledge base.
type UpdateStatus struct {
	NeedsUpdate       bool      `json:"needs_update"`
	FileModifiedAt    time.Time `json:"file_modified_at"`
	KnowledgeBuiltAt  time.Time `json:"knowledge_built_at"`
	FileCourseCount   int       `json:"file_course_count"`
	StoredCourseCount int64     `json:"stored_course_count"`
}

// Recommender runs the retrieve-then-generate pipeline.
type Recommender struct {
	processor *course.Processor
	store     Knowledge
	completer ai.Completer
	cfg       Config
	logger    log.Logger
}

// New creates a Recommender. logger may be nil.
func New(processor *course.Processor, store Knowledge, completer ai.Completer, cfg Config, logger log.Logger) *Recommender {
	if logger == nil {
		logger = log.NewNop()
	}
	if cfg.RetrievalK <= 0 {
		cfg.RetrievalK = 5
	}
	return &Recommender{
		processor: processor,
		store:     store,
		completer: completer,
		cfg:       cfg,
		logger:    logger,
	}
}

// Initialize makes sure the knowledge base is populated. With force it
// rebuilds unconditionally; otherwise an already-populated base is left
// alone.
func (r *Recommender) Initialize(ctx context.Context, force bool) error {
	if !force {
		count, err := r.store.Count(ctx)
		if err != nil {
			return fmt.Errorf("checking knowledge base: %w", err)
		}
		if count > 0 {
			r.logger.Info("knowledge base already populated", "courses", count)
			return nil
		}
	}

	docs, err := r.processor.Documents()
	if err != nil {
		return fmt.Errorf("preparing course documents: %w", err)
	}
	if err := r.store.Rebuild(ctx, docs); err != nil {
		return fmt.Errorf("building knowledge base: %w", err)
	}

	r.logger.Info("knowledge base ready", "courses", len(docs))
	return nil
}

// Retrieve returns the k most relevant courses for the query.
func (r *Recommender) Retrieve(ctx context.Context, query string, k int) ([]knowledge.Result, error) {
	if k <= 0 {
		k = r.cfg.RetrievalK
	}
	results, err := r.store.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("retrieving courses: %w", err)
	}
	r.logger.Debug("retrieved courses", "query", query, "hits", len(results))
	return results, nil
}

// Recommend runs the full pipeline: retrieve, then generate a grounded
// recommendation. An empty retrieval produces a polite no-results answer
// with Success false rather than an error.
func (r *Recommender) Recommend(ctx context.Context, query string, k int) (Recommendation, error) {
	retrieved, err := r.Retrieve(ctx, query, k)
	if err != nil {
		return Recommendation{}, err
	}

	if len(retrieved) == 0 {
		return Recommendation{
			Query:          query,
			Courses:        []knowledge.Result{},
			Recommendation: noResultsMessage,
			Success:        false,
		}, nil
	}

	answer, err := r.completer.Complete(ctx, ai.CompletionRequest{
		System: systemPrompt,
		Messages: []ai.Message{
			{Role: ai.RoleUser, Content: buildUserPrompt(query, retrieved)},
		},
		MaxTokens: recommendationMaxTokens,
	})
	if err != nil {
		return Recommendation{}, fmt.Errorf("generating recommendation: %w", err)
	}

	return Recommendation{
		Query:          query,
		Courses:        retrieved,
		Recommendation: answer,
		Success:        true,
	}, nil
}

// CoursesByCategory lists the stored courses for one category.
func (r *Recommender) CoursesByCategory(ctx context.Context, category string) ([]knowledge.Entry, error) {
	return r.store.ByCategory(ctx, category, 0)
}

// Categories lists the categories known to the catalog file.
func (r *Recommender) Categories(ctx context.Context) ([]string, error) {
	categories, err := r.processor.Categories()
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return categories, nil
}

// Stats reports pipeline-wide statistics.
func (r *Recommender) Stats(ctx context.Context) (SystemStats, error) {
	kbStats, err := r.store.GetStats(ctx)
	if err != nil {
		return SystemStats{}, err
	}
	categories, err := r.Categories(ctx)
	if err != nil {
		return SystemStats{}, err
	}
	return SystemStats{
		TotalCourses:    kbStats.TotalCourses,
		TotalCategories: len(categories),
		Categories:      categories,
		ChatModel:       r.cfg.ChatModel,
		EmbeddingModel:  r.cfg.EmbeddingModel,
		LastUpdated:     kbStats.LastUpdated,
	}, nil
}

// CheckForUpdates compares the catalog file against the knowledge base:
// an update is needed when the file is newer than the last build or the
// course counts diverge.
func (r *Recommender) CheckForUpdates(ctx context.Context) (UpdateStatus, error) {
	info, err := os.Stat(r.processor.Path())
	if err != nil {
		return UpdateStatus{}, fmt.Errorf("checking course file: %w", err)
	}

	if err := r.processor.Reload(); err != nil {
		return UpdateStatus{}, err
	}
	courses, err := r.processor.Courses()
	if err != nil {
		return UpdateStatus{}, err
	}

	kbStats, err := r.store.GetStats(ctx)
	if err != nil {
		return UpdateStatus{}, err
	}

	status := UpdateStatus{
		FileModifiedAt:    info.ModTime(),
		KnowledgeBuiltAt:  kbStats.LastUpdated,
		FileCourseCount:   len(courses),
		StoredCourseCount: kbStats.TotalCourses,
	}
	status.NeedsUpdate = info.ModTime().After(kbStats.LastUpdated) ||
		int64(len(courses)) != kbStats.TotalCourses
	return status, nil
}

// Rebuild forces a full knowledge base rebuild from the current catalog
// file contents.
func (r *Recommender) Rebuild(ctx context.Context) error {
	if err := r.processor.Reload(); err != nil {
		return err
	}
	return r.Initialize(ctx, true)
}
