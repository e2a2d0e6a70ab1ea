// Package web serves the chat frontend: a small embedded single-page app
// plus a reverse proxy that forwards /api/* to the backend so the browser
// only ever talks to one origin.
package web

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/coursemate/coursemate/internal/log"
)

//go:embed assets
var assetsFS embed.FS

// Server is the frontend process's HTTP surface.
type Server struct {
	proxy  *httputil.ReverseProxy
	logger log.Logger
}

// New creates a web server proxying API calls to apiBaseURL.
func New(apiBaseURL string, logger log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	base, err := url.Parse(apiBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing API base URL: %w", err)
	}

	s := &Server{logger: logger}

	s.proxy = &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(base)
			// Strip the /api prefix the frontend uses.
			r.Out.URL.Path = strings.TrimPrefix(r.In.URL.Path, "/api")
			if r.Out.URL.Path == "" {
				r.Out.URL.Path = "/"
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.logger.Error("proxying to API", "path", r.URL.Path, "error", err)
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"error":"後端服務暫時無法使用"}`)
		},
	}

	return s, nil
}

// Handler builds the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	static, err := fs.Sub(assetsFS, "assets")
	if err != nil {
		// embed guarantees the directory exists.
		panic(err)
	}

	// The asset handler stays method-less: a "GET /" pattern would
	// conflict with the method-less "/api/" proxy pattern and make mux
	// registration panic.
	mux.Handle("/", http.FileServerFS(static))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("/api/", s.proxy)

	return s.logging(mux)
}

// handleHealth answers the supervisor's readiness probe. The frontend is
// healthy as soon as it serves; backend health is reported through the
// proxied /api/health instead, so a slow dependency doesn't flap this
// probe.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	fmt.Fprintf(w, `{"status":"healthy","timestamp":%q}`, time.Now().Format(time.RFC3339))
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// NewHTTPServer wraps the handler in an http.Server with timeouts.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
}
