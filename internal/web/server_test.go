package web

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandler_ServesIndex(t *testing.T) {
	srv, err := New("http://127.0.0.1:8000", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "AI 課程推薦助手") {
		t.Error("index page missing app title")
	}
}

func TestHandler_Health(t *testing.T) {
	srv, err := New("http://127.0.0.1:8000", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"healthy"`) {
		t.Errorf("health body = %s", body)
	}
}

func TestHandler_ProxiesAPI(t *testing.T) {
	var gotPath string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"categories":["C　瑜珈系列"],"total":1}`))
	}))
	defer backend.Close()

	srv, err := New(backend.URL, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/categories")
	if err != nil {
		t.Fatalf("GET /api/categories: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	// The /api prefix is stripped before forwarding.
	if gotPath != "/categories" {
		t.Errorf("backend path = %q, want /categories", gotPath)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "瑜珈") {
		t.Errorf("proxied body = %s", body)
	}
}

// Route registration must not panic: the method-less "/" asset pattern and
// the method-less "/api/" proxy pattern coexist, and non-GET methods reach
// the proxy.
func TestHandler_RoutesAllMethodsToProxy(t *testing.T) {
	var gotMethod, gotPath string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusCreated)
	}))
	defer backend.Close()

	srv, err := New(backend.URL, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/sessions", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST /api/sessions: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if gotMethod != http.MethodPost || gotPath != "/sessions" {
		t.Errorf("backend saw %s %s, want POST /sessions", gotMethod, gotPath)
	}
}

func TestHandler_ProxyBackendDown(t *testing.T) {
	// A port nothing listens on.
	srv, err := New("http://127.0.0.1:1", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatalf("GET /api/stats: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502 when backend is down", resp.StatusCode)
	}
}

func TestNew_BadURL(t *testing.T) {
	if _, err := New("://not-a-url", nil); err == nil {
		t.Fatal("New() error = nil for malformed URL")
	}
}
