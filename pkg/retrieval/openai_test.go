package retrieval

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIEmbedder_Success(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Fatalf("auth header=%q", got)
		}
		if r.URL.Path != "/embeddings" {
			t.Fatalf("path=%q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer ts.Close()

	embedder := NewOpenAIEmbedder("key", ts.URL, "text-embedding-3-small", ts.Client())
	vector, err := embedder.Embed(context.Background(), "ما هي عاصمة مصر؟")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(vector) != 3 {
		t.Fatalf("len(vector)=%d, want 3", len(vector))
	}
}

func TestOpenAIEmbedder_Non200(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer ts.Close()

	embedder := NewOpenAIEmbedder("key", ts.URL, "text-embedding-3-small", ts.Client())
	if _, err := embedder.Embed(context.Background(), "query"); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenAIEmbedder_EmptyInput(t *testing.T) {
	t.Parallel()

	embedder := NewOpenAIEmbedder("key", "http://127.0.0.1:0", "model", nil)
	if _, err := embedder.Embed(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty input")
	}
}
