package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/coursemate/coursemate/internal/ai"
	"github.com/coursemate/coursemate/internal/conversation"
	"github.com/coursemate/coursemate/internal/knowledge"
	"github.com/coursemate/coursemate/internal/rag"
)

// stubPipeline returns canned values and records calls.
type stubPipeline struct {
	recommendation rag.Recommendation
	retrieveHits   []knowledge.Result
	statsErr       error
	rebuildStarted chan struct{}
	lastQuery      string
}

func (p *stubPipeline) Recommend(_ context.Context, query string, _ int) (rag.Recommendation, error) {
	p.lastQuery = query
	return p.recommendation, nil
}

func (p *stubPipeline) Retrieve(_ context.Context, query string, _ int) ([]knowledge.Result, error) {
	p.lastQuery = query
	return p.retrieveHits, nil
}

func (p *stubPipeline) Categories(context.Context) ([]string, error) {
	return []string{"A　有氧系列", "C　瑜珈系列"}, nil
}

func (p *stubPipeline) CoursesByCategory(_ context.Context, category string) ([]knowledge.Entry, error) {
	return []knowledge.Entry{
		{CourseID: "1", Name: "哈達瑜珈", Category: category},
		{CourseID: "2", Name: "流瑜珈", Category: category},
	}, nil
}

func (p *stubPipeline) Stats(context.Context) (rag.SystemStats, error) {
	if p.statsErr != nil {
		return rag.SystemStats{}, p.statsErr
	}
	return rag.SystemStats{TotalCourses: 2, TotalCategories: 2, ChatModel: "gpt-4.1-mini"}, nil
}

func (p *stubPipeline) CheckForUpdates(context.Context) (rag.UpdateStatus, error) {
	return rag.UpdateStatus{NeedsUpdate: true, FileCourseCount: 3, StoredCourseCount: 2}, nil
}

func (p *stubPipeline) Rebuild(context.Context) error {
	if p.rebuildStarted != nil {
		close(p.rebuildStarted)
	}
	return nil
}

// stubSessions is an in-memory Sessions implementation.
type stubSessions struct {
	contexts map[uuid.UUID]conversation.Context
	messages []string
	feedback []string
	followup bool
}

func newStubSessions() *stubSessions {
	return &stubSessions{contexts: make(map[uuid.UUID]conversation.Context)}
}

func (s *stubSessions) Create(context.Context) (uuid.UUID, error) {
	id := uuid.New()
	s.contexts[id] = conversation.Context{}
	return id, nil
}

func (s *stubSessions) AddMessage(_ context.Context, id uuid.UUID, role ai.Role, content string) error {
	s.messages = append(s.messages, fmt.Sprintf("%s:%s", role, content))
	return nil
}

func (s *stubSessions) AddFeedback(_ context.Context, id uuid.UUID, kind, detail string, _, _ []string) error {
	if _, ok := s.contexts[id]; !ok {
		return conversation.ErrSessionNotFound
	}
	if kind != conversation.FeedbackDissatisfied &&
		kind != conversation.FeedbackPartiallySatisfied &&
		kind != conversation.FeedbackSatisfied {
		return conversation.ErrInvalidFeedbackKind
	}
	s.feedback = append(s.feedback, kind)
	return nil
}

func (s *stubSessions) Context(_ context.Context, id uuid.UUID) (conversation.Context, error) {
	sctx, ok := s.contexts[id]
	if !ok {
		return conversation.Context{}, conversation.ErrSessionNotFound
	}
	return sctx, nil
}

func (s *stubSessions) ShouldAskFollowup(context.Context, uuid.UUID) (bool, error) {
	return s.followup, nil
}

func (s *stubSessions) SessionStats(_ context.Context, id uuid.UUID) (conversation.Stats, error) {
	if _, ok := s.contexts[id]; !ok {
		return conversation.Stats{}, conversation.ErrSessionNotFound
	}
	return conversation.Stats{TotalMessages: 2}, nil
}

func (s *stubSessions) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := s.contexts[id]; !ok {
		return conversation.ErrSessionNotFound
	}
	delete(s.contexts, id)
	return nil
}

func newTestServer(t *testing.T, pipeline *stubPipeline, sessions *stubSessions) *httptest.Server {
	t.Helper()
	srv := New(context.Background(), pipeline, sessions, Options{}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t, &stubPipeline{}, newStubSessions())

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var health struct {
		Status      string            `json:"status"`
		SystemReady bool              `json:"system_ready"`
		Services    map[string]string `json:"services"`
	}
	decodeBody(t, resp, &health)
	if health.Status != "healthy" || !health.SystemReady {
		t.Errorf("health = %+v, want healthy/ready", health)
	}
	if len(health.Services) != 3 {
		t.Errorf("services = %v, want 3 entries", health.Services)
	}
}

func TestHandleHealth_Degraded(t *testing.T) {
	ts := newTestServer(t, &stubPipeline{statsErr: errors.New("db down")}, newStubSessions())

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 when the knowledge base is down", resp.StatusCode)
	}
}

// stubPinger fakes the database behind GET /ready.
type stubPinger struct {
	err error
}

func (p *stubPinger) Ping(context.Context) error { return p.err }

func TestHandleReady(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		wantStatus int
	}{
		{name: "database reachable", db: &stubPinger{}, wantStatus: http.StatusOK},
		{name: "database down", db: &stubPinger{err: errors.New("connection refused")}, wantStatus: http.StatusServiceUnavailable},
		{name: "no database wired", db: nil, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(context.Background(), &stubPipeline{}, newStubSessions(), Options{DB: tt.db}, nil)
			ts := httptest.NewServer(srv.Handler())
			t.Cleanup(ts.Close)

			resp, err := http.Get(ts.URL + "/ready")
			if err != nil {
				t.Fatalf("GET /ready: %v", err)
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestHandleRecommend(t *testing.T) {
	pipeline := &stubPipeline{recommendation: rag.Recommendation{
		Query:          "我想放鬆",
		Recommendation: "推薦哈達瑜珈",
		Courses:        []knowledge.Result{{Entry: knowledge.Entry{Name: "哈達瑜珈"}, Score: 0.9}},
		Success:        true,
	}}
	ts := newTestServer(t, pipeline, newStubSessions())

	resp := postJSON(t, ts.URL+"/recommend", map[string]any{"query": "我想放鬆", "k": 5})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body recommendResponse
	decodeBody(t, resp, &body)
	if !body.Success || body.Recommendation != "推薦哈達瑜珈" {
		t.Errorf("body = %+v", body)
	}
	if body.TotalFound != 1 {
		t.Errorf("TotalFound = %d, want 1", body.TotalFound)
	}
}

func TestHandleRecommend_Validation(t *testing.T) {
	ts := newTestServer(t, &stubPipeline{}, newStubSessions())

	tests := []struct {
		name string
		body map[string]any
	}{
		{"empty query", map[string]any{"query": ""}},
		{"negative k", map[string]any{"query": "瑜珈", "k": -1}},
		{"k too large", map[string]any{"query": "瑜珈", "k": 21}},
		{"unknown field", map[string]any{"query": "瑜珈", "bogus": true}},
		{"bad session id", map[string]any{"query": "瑜珈", "session_id": "not-a-uuid"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/recommend", tt.body)
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

// k may be omitted or zero to take the server default; the bound error
// tells the caller so.
func TestHandleRecommend_ZeroKUsesDefault(t *testing.T) {
	pipeline := &stubPipeline{recommendation: rag.Recommendation{Success: true, Recommendation: "ok"}}
	ts := newTestServer(t, pipeline, newStubSessions())

	resp := postJSON(t, ts.URL+"/recommend", map[string]any{"query": "瑜珈", "k": 0})
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 for k=0", resp.StatusCode)
	}

	bad := postJSON(t, ts.URL+"/recommend", map[string]any{"query": "瑜珈", "k": -1})
	defer func() { _ = bad.Body.Close() }()
	var body errorResponse
	decodeBody(t, bad, &body)
	if !strings.Contains(body.Error, "預設值") {
		t.Errorf("error = %q, want it to mention the default fallback", body.Error)
	}
}

func TestHandleRecommend_WithSession(t *testing.T) {
	pipeline := &stubPipeline{recommendation: rag.Recommendation{Success: true, Recommendation: "ok"}}
	sessions := newStubSessions()
	id := uuid.New()
	sessions.contexts[id] = conversation.Context{
		Preferences: conversation.Preferences{PriceSensitive: true},
	}
	ts := newTestServer(t, pipeline, sessions)

	resp := postJSON(t, ts.URL+"/recommend", map[string]any{
		"query": "瑜珈課", "session_id": id.String(),
	})
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	// Session preferences refined the retrieval query.
	if pipeline.lastQuery != "瑜珈課 經濟實惠" {
		t.Errorf("pipeline query = %q, want refined query", pipeline.lastQuery)
	}
	// Both turns were recorded.
	if len(sessions.messages) != 2 {
		t.Errorf("recorded messages = %v, want user + assistant", sessions.messages)
	}
}

func TestHandleSearch(t *testing.T) {
	pipeline := &stubPipeline{retrieveHits: []knowledge.Result{
		{Entry: knowledge.Entry{Name: "燃脂有氧"}, Score: 0.8, SearchType: knowledge.SearchTypeVector},
	}}
	ts := newTestServer(t, pipeline, newStubSessions())

	resp := postJSON(t, ts.URL+"/search", map[string]any{"query": "有氧"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body searchResponse
	decodeBody(t, resp, &body)
	if body.TotalFound != 1 || body.Courses[0].Name != "燃脂有氧" {
		t.Errorf("body = %+v", body)
	}
}

func TestHandleCoursesByCategory(t *testing.T) {
	ts := newTestServer(t, &stubPipeline{}, newStubSessions())

	resp, err := http.Get(ts.URL + "/categories/C%E3%80%80%E7%91%9C%E7%8F%88%E7%B3%BB%E5%88%97/courses?limit=1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Courses    []knowledge.Entry `json:"courses"`
		TotalFound int               `json:"total_found"`
		Returned   int               `json:"returned"`
	}
	decodeBody(t, resp, &body)
	if body.TotalFound != 2 || body.Returned != 1 || len(body.Courses) != 1 {
		t.Errorf("body = %+v, want 2 found, 1 returned", body)
	}
}

func TestHandleRebuild(t *testing.T) {
	pipeline := &stubPipeline{rebuildStarted: make(chan struct{})}
	ts := newTestServer(t, pipeline, newStubSessions())

	resp := postJSON(t, ts.URL+"/rebuild-knowledge-base", nil)
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	select {
	case <-pipeline.rebuildStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("background rebuild never started")
	}
}

func TestHandleFeedback(t *testing.T) {
	sessions := newStubSessions()
	sessions.followup = true
	id, _ := sessions.Create(context.Background())
	ts := newTestServer(t, &stubPipeline{}, sessions)

	resp := postJSON(t, ts.URL+"/sessions/"+id.String()+"/feedback", map[string]any{
		"feedback_type": "dissatisfied",
		"content":       "時間不適合",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Status            string   `json:"status"`
		FollowupQuestions []string `json:"followup_questions"`
	}
	decodeBody(t, resp, &body)
	if body.Status != "recorded" {
		t.Errorf("status = %q, want recorded", body.Status)
	}
	if len(body.FollowupQuestions) == 0 {
		t.Error("no followup questions despite dissatisfied feedback")
	}
}

func TestHandleFeedback_Errors(t *testing.T) {
	sessions := newStubSessions()
	id, _ := sessions.Create(context.Background())
	ts := newTestServer(t, &stubPipeline{}, sessions)

	resp := postJSON(t, ts.URL+"/sessions/"+id.String()+"/feedback", map[string]any{
		"feedback_type": "angry",
	})
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid kind: status = %d, want 400", resp.StatusCode)
	}

	resp2 := postJSON(t, ts.URL+"/sessions/"+uuid.NewString()+"/feedback", map[string]any{
		"feedback_type": "satisfied",
	})
	defer func() { _ = resp2.Body.Close() }()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("missing session: status = %d, want 404", resp2.StatusCode)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, &stubPipeline{}, newStubSessions())

	resp := postJSON(t, ts.URL+"/sessions", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var created struct {
		SessionID string `json:"session_id"`
	}
	decodeBody(t, resp, &created)
	if _, err := uuid.Parse(created.SessionID); err != nil {
		t.Fatalf("session_id = %q, not a UUID", created.SessionID)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/"+created.SessionID, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer func() { _ = delResp.Body.Close() }()
	if delResp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", delResp.StatusCode)
	}
}

func TestRateLimit(t *testing.T) {
	srv := New(context.Background(), &stubPipeline{}, newStubSessions(), Options{
		RateLimit: 1, RateBurst: 1,
	}, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	// First request consumes the burst; the immediate second gets limited.
	resp1, err := http.Get(ts.URL + "/categories")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp1.Body.Close()
	resp2, err := http.Get(ts.URL + "/categories")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp2.Body.Close() }()
	if resp2.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", resp2.StatusCode)
	}
}

func TestCORS(t *testing.T) {
	srv := New(context.Background(), &stubPipeline{}, newStubSessions(), Options{
		CORSOrigins: []string{"http://127.0.0.1:8501"},
	}, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/recommend", nil)
	req.Header.Set("Origin", "http://127.0.0.1:8501")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://127.0.0.1:8501" {
		t.Errorf("Allow-Origin = %q", got)
	}

	// Unlisted origins get no CORS headers.
	req2, _ := http.NewRequest(http.MethodGet, ts.URL+"/categories", nil)
	req2.Header.Set("Origin", "http://evil.example")
	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp2.Body.Close() }()
	if got := resp2.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q for unlisted origin, want empty", got)
	}
}
