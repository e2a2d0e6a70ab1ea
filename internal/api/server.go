// Package api exposes the recommendation pipeline over HTTP. It is the
// backend the supervisor starts first and the web process proxies to.
package api

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/coursemate/coursemate/internal/ai"
	"github.com/coursemate/coursemate/internal/conversation"
	"github.com/coursemate/coursemate/internal/knowledge"
	"github.com/coursemate/coursemate/internal/log"
	"github.com/coursemate/coursemate/internal/rag"
)

// Pipeline is the recommendation surface the server exposes.
type Pipeline interface {
	Recommend(ctx context.Context, query string, k int) (rag.Recommendation, error)
	Retrieve(ctx context.Context, query string, k int) ([]knowledge.Result, error)
	Categories(ctx context.Context) ([]string, error)
	CoursesByCategory(ctx context.Context, category string) ([]knowledge.Entry, error)
	Stats(ctx context.Context) (rag.SystemStats, error)
	CheckForUpdates(ctx context.Context) (rag.UpdateStatus, error)
	Rebuild(ctx context.Context) error
}

// Sessions is the conversation surface the server exposes.
type Sessions interface {
	Create(ctx context.Context) (uuid.UUID, error)
	AddMessage(ctx context.Context, sessionID uuid.UUID, role ai.Role, content string) error
	AddFeedback(ctx context.Context, sessionID uuid.UUID, kind, detail string, rejectedCourses, reasons []string) error
	Context(ctx context.Context, sessionID uuid.UUID) (conversation.Context, error)
	ShouldAskFollowup(ctx context.Context, sessionID uuid.UUID) (bool, error)
	SessionStats(ctx context.Context, sessionID uuid.UUID) (conversation.Stats, error)
	Delete(ctx context.Context, sessionID uuid.UUID) error
}

// Pinger reports database connectivity; *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes the HTTP surface.
type Options struct {
	// CORSOrigins lists allowed origins; empty disables CORS headers.
	CORSOrigins []string
	// RateLimit is requests per second across all clients; zero disables
	// limiting. Burst defaults to 2x the limit.
	RateLimit float64
	RateBurst int
	// DB backs the GET /ready database ping; nil skips the ping.
	DB Pinger
}

// Server carries the handler dependencies. Construct with New, serve via
// Handler().
type Server struct {
	pipeline   Pipeline
	sessions   Sessions
	db         Pinger
	logger     log.Logger
	limiter    *rate.Limiter
	opts       Options
	rebuilding atomic.Bool

	// baseCtx outlives individual requests; background rebuilds run on it.
	baseCtx context.Context
}

// New creates the API server. logger may be nil.
func New(ctx context.Context, pipeline Pipeline, sessions Sessions, opts Options, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = int(2 * opts.RateLimit)
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Server{
		pipeline: pipeline,
		sessions: sessions,
		db:       opts.DB,
		logger:   logger,
		limiter:  limiter,
		opts:     opts,
		baseCtx:  ctx,
	}
}

// Handler builds the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("POST /recommend", s.handleRecommend)
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("GET /categories", s.handleCategories)
	mux.HandleFunc("GET /categories/{category}/courses", s.handleCoursesByCategory)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("POST /check-updates", s.handleCheckUpdates)
	mux.HandleFunc("POST /rebuild-knowledge-base", s.handleRebuild)

	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions/{id}", s.handleSessionContext)
	mux.HandleFunc("GET /sessions/{id}/stats", s.handleSessionStats)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /sessions/{id}/feedback", s.handleFeedback)

	var handler http.Handler = mux
	handler = s.rateLimit(handler)
	handler = s.cors(handler)
	handler = s.logging(handler)
	handler = s.recovery(handler)
	return handler
}

// NewHTTPServer wraps the handler in an http.Server with sane timeouts.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Recommendation generation can take a while.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}
}
