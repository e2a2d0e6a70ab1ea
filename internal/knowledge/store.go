// Package knowledge stores the course catalog in PostgreSQL with pgvector
// embeddings and retrieves it with a hybrid strategy: vector similarity
// first, keyword matching as a fallback when the vector results look thin
// or off-category.
package knowledge

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/coursemate/coursemate/internal/ai"
	"github.com/coursemate/coursemate/internal/course"
	"github.com/coursemate/coursemate/internal/log"
)

// Querier is the database surface Store needs. *pgxpool.Pool satisfies it;
// tests substitute a mock. Interfaces belong to the consumer.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Options tunes retrieval behavior.
type Options struct {
	// TopK is the default result count when the caller passes k <= 0.
	TopK int
	// Threshold is the minimum cosine similarity for vector hits.
	Threshold float64
	// QueryTimeout bounds each search; zero means 10s.
	QueryTimeout time.Duration
}

// Store manages the course knowledge base. Safe for concurrent use.
type Store struct {
	db       Querier
	embedder ai.Embedder
	opts     Options
	logger   log.Logger
}

// New creates a Store. logger may be nil.
func New(db Querier, embedder ai.Embedder, opts Options, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 10 * time.Second
	}
	return &Store{db: db, embedder: embedder, opts: opts, logger: logger}
}

const entryColumns = `id, course_id, name, description, category,
	instructor, schedule, location, price, content, created_at, updated_at`

// Rebuild replaces the entire knowledge base with the given documents:
// embeds every document, deletes the existing rows and inserts the new
// set in one batch.
func (s *Store) Rebuild(ctx context.Context, docs []course.Document) error {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}

	s.logger.Info("embedding course documents", "count", len(docs))
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding courses: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedding courses: got %d vectors for %d documents", len(vectors), len(docs))
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM courses`)
	for i, d := range docs {
		batch.Queue(`
			INSERT INTO courses (course_id, name, description, category,
				instructor, schedule, location, price, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (course_id) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				category = EXCLUDED.category,
				instructor = EXCLUDED.instructor,
				schedule = EXCLUDED.schedule,
				location = EXCLUDED.location,
				price = EXCLUDED.price,
				content = EXCLUDED.content,
				embedding = EXCLUDED.embedding,
				updated_at = now()`,
			d.CourseID, d.Title, d.Description, d.Category,
			d.Course.Instructor, d.Course.Schedule, d.Course.Room,
			d.Course.Price, d.Content, pgvector.NewVector(vectors[i]))
	}

	results := s.db.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("rebuilding knowledge base (statement %d): %w", i, err)
		}
	}

	s.logger.Info("knowledge base rebuilt", "courses", len(docs))
	return nil
}

// Search retrieves the k most relevant courses for query. Vector search
// runs first; when it returns too few hits, or the query names a category
// the hits don't cover, a keyword pass supplements it and keyword hits
// take precedence in the merged result.
func (s *Store) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		k = s.opts.TopK
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	vectorHits, err := s.vectorSearch(ctx, query, k)
	if err != nil {
		return nil, err
	}

	if !shouldUseKeywordFallback(query, vectorHits) {
		s.logger.Debug("vector search", "query", query, "hits", len(vectorHits))
		return vectorHits, nil
	}

	s.logger.Info("vector results thin, adding keyword search", "query", query, "vector_hits", len(vectorHits))
	keywordHits, err := s.keywordSearch(ctx, query, k)
	if err != nil {
		return nil, err
	}

	merged := mergeResults(keywordHits, vectorHits, k)
	if len(merged) == 0 {
		return vectorHits, nil
	}
	return merged, nil
}

func (s *Store) vectorSearch(ctx context.Context, query string, k int) ([]Result, error) {
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding query: no vector returned")
	}

	// Over-fetch so the threshold filter still leaves k results.
	fetch := min(k*3, 20)
	rows, err := s.db.Query(ctx, `
		SELECT `+entryColumns+`, 1 - (embedding <=> $1) AS score
		FROM courses
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2`,
		pgvector.NewVector(vectors[0]), fetch)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := scanResult(rows, &r); err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
		r.SearchType = SearchTypeVector
		if r.Score >= s.opts.Threshold {
			results = append(results, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// keywordSearch scores every course against the query's expanded keywords.
// The catalog is small (hundreds of rows) so scanning it in memory is
// cheaper than maintaining a text index for this corpus.
func (s *Store) keywordSearch(ctx context.Context, query string, k int) ([]Result, error) {
	keywords := ExpandKeywords(query)
	if len(keywords) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(ctx, `SELECT `+entryColumns+` FROM courses`)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := scanEntry(rows, &r.Entry); err != nil {
			return nil, fmt.Errorf("keyword search: %w", err)
		}
		score := keywordMatchScore(keywords, r.Entry)
		if score > keywordMinScore {
			r.Score = score
			r.SearchType = SearchTypeKeyword
			results = append(results, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	s.logger.Debug("keyword search", "query", query, "hits", len(results))
	return results, nil
}

// mergeResults deduplicates by course ID, primary hits first.
func mergeResults(primary, secondary []Result, k int) []Result {
	seen := make(map[string]struct{}, k)
	merged := make([]Result, 0, k)
	for _, r := range append(append([]Result{}, primary...), secondary...) {
		if _, ok := seen[r.CourseID]; ok {
			continue
		}
		seen[r.CourseID] = struct{}{}
		merged = append(merged, r)
		if len(merged) >= k {
			break
		}
	}
	return merged
}

// ByCategory returns courses in the given category, name-ordered.
// limit <= 0 means no limit.
func (s *Store) ByCategory(ctx context.Context, category string, limit int) ([]Entry, error) {
	sql := `SELECT ` + entryColumns + ` FROM courses WHERE category = $1 ORDER BY name`
	args := []any{category}
	if limit > 0 {
		sql += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing courses by category: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := scanEntry(rows, &e); err != nil {
			return nil, fmt.Errorf("listing courses by category: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing courses by category: %w", err)
	}
	return entries, nil
}

// Categories returns the distinct categories present in the store, sorted.
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT category FROM courses
		WHERE category <> '' ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("listing categories: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return categories, nil
}

// Count returns the number of courses in the store.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM courses`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting courses: %w", err)
	}
	return count, nil
}

// GetStats returns summary statistics for the knowledge base.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.db.QueryRow(ctx, `
		SELECT count(*),
		       count(DISTINCT category) FILTER (WHERE category <> ''),
		       coalesce(max(updated_at), 'epoch'::timestamptz)
		FROM courses`).Scan(&stats.TotalCourses, &stats.Categories, &stats.LastUpdated)
	if err != nil {
		return Stats{}, fmt.Errorf("reading knowledge base stats: %w", err)
	}
	return stats, nil
}

func scanEntry(rows pgx.Rows, e *Entry) error {
	return rows.Scan(&e.ID, &e.CourseID, &e.Name, &e.Description, &e.Category,
		&e.Instructor, &e.Schedule, &e.Location, &e.Price, &e.Content,
		&e.CreatedAt, &e.UpdatedAt)
}

func scanResult(rows pgx.Rows, r *Result) error {
	return rows.Scan(&r.ID, &r.CourseID, &r.Name, &r.Description, &r.Category,
		&r.Instructor, &r.Schedule, &r.Location, &r.Price, &r.Content,
		&r.CreatedAt, &r.UpdatedAt, &r.Score)
}
