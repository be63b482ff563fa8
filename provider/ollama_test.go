package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vantage-run/optigate/provider"
)

func TestOllamaProviderInferReturnsContentAndTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"message":    map[string]string{"role": "assistant", "content": "hello there"},
			"eval_count": 42,
		})
	}))
	defer srv.Close()

	pool := provider.DefaultConnectionPool()
	p := provider.NewOllamaProvider(pool, srv.URL, "llama3.2", 5*time.Second)

	text, tokens, err := p.Infer(context.Background(), []provider.Message{{Role: "user", Content: "hi"}}, "")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello there" {
		t.Fatalf("expected content 'hello there', got %q", text)
	}
	if tokens != 42 {
		t.Fatalf("expected 42 tokens, got %d", tokens)
	}
}

func TestOllamaProviderInferFoldsNon200IntoBracketedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	pool := provider.DefaultConnectionPool()
	p := provider.NewOllamaProvider(pool, srv.URL, "llama3.2", 5*time.Second)

	text, tokens, err := p.Infer(context.Background(), []provider.Message{{Role: "user", Content: "hi"}}, "")

	if err != nil {
		t.Fatalf("expected Infer to never return an error across the boundary, got %v", err)
	}
	if !strings.HasPrefix(text, "[Error]") {
		t.Fatalf("expected a bracketed error string, got %q", text)
	}
	if tokens != 0 {
		t.Fatalf("expected 0 tokens on failure, got %d", tokens)
	}
}

func TestOllamaProviderIsAvailableProbesTags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	pool := provider.DefaultConnectionPool()
	p := provider.NewOllamaProvider(pool, srv.URL, "llama3.2", 5*time.Second)

	if !p.IsAvailable(context.Background()) {
		t.Fatal("expected provider to report available when /api/tags returns 200")
	}
}

func TestOllamaProviderNameAndModelID(t *testing.T) {
	pool := provider.DefaultConnectionPool()
	p := provider.NewOllamaProvider(pool, "http://localhost:11434", "llama3.2", 0)

	if p.Name() != "local" {
		t.Fatalf("expected name 'local', got %s", p.Name())
	}
	if p.ModelID() != "llama3.2" {
		t.Fatalf("expected model 'llama3.2', got %s", p.ModelID())
	}
}
