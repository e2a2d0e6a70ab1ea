package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/coursemate/coursemate/internal/log"
)

// newStubClient points a Client at an httptest server standing in for the
// OpenAI API.
func newStubClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &Client{
		api: openai.NewClient(
			option.WithAPIKey("test-key"),
			option.WithBaseURL(srv.URL+"/v1"),
		),
		cfg: Config{
			ChatModel:          "gpt-4.1-mini",
			EmbeddingModel:     "text-embedding-3-small",
			EmbeddingDims:      3,
			DefaultTemperature: 0.7,
			DefaultMaxTokens:   1024,
		},
		logger: log.NewNop(),
	}
}

func TestClient_Complete(t *testing.T) {
	var gotReq map[string]any
	client := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4.1-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "推薦哈達瑜珈"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	})

	got, err := client.Complete(context.Background(), CompletionRequest{
		System:   "你是課程推薦助手",
		Messages: []Message{{Role: RoleUser, Content: "我想放鬆"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "推薦哈達瑜珈" {
		t.Errorf("Complete() = %q, want 推薦哈達瑜珈", got)
	}

	msgs, ok := gotReq["messages"].([]any)
	if !ok || len(msgs) != 2 {
		t.Fatalf("request messages = %v, want system + user", gotReq["messages"])
	}
	first := msgs[0].(map[string]any)
	if first["role"] != "system" {
		t.Errorf("first message role = %v, want system", first["role"])
	}
	if gotReq["temperature"] != 0.7 {
		t.Errorf("temperature = %v, want default 0.7", gotReq["temperature"])
	}
}

func TestClient_Complete_NoChoices(t *testing.T) {
	client := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "chatcmpl-1", "object": "chat.completion", "choices": []}`))
	})

	_, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("Complete() error = nil, want ErrEmptyCompletion")
	}
}

func TestClient_Embed(t *testing.T) {
	client := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}

		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		data := make([]item, len(req.Input))
		for i := range req.Input {
			data[i] = item{Object: "embedding", Index: i, Embedding: []float64{float64(i), 0.5, -0.5}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "text-embedding-3-small",
			"usage":  map[string]int{"prompt_tokens": 2, "total_tokens": 2},
		})
	})

	vectors, err := client.Embed(context.Background(), []string{"瑜珈", "有氧"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("len(vectors) = %d, want 2", len(vectors))
	}
	if got := vectors[1][0]; got != 1.0 {
		t.Errorf("vectors[1][0] = %v, want 1.0", got)
	}
	if client.Dimensions() != 3 {
		t.Errorf("Dimensions() = %d, want 3", client.Dimensions())
	}
}

func TestClient_Embed_Empty(t *testing.T) {
	client := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected API call for empty input")
	})

	vectors, err := client.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed(nil) error = %v", err)
	}
	if vectors != nil {
		t.Errorf("Embed(nil) = %v, want nil", vectors)
	}
}
