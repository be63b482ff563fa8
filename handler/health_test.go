package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vantage-run/optigate/datahaven"
	"github.com/vantage-run/optigate/handler"
	"github.com/vantage-run/optigate/memory"
	"github.com/vantage-run/optigate/provider"
)

func TestHealthReturnsOKWithCounts(t *testing.T) {
	memStore := memory.NewRecencyStore(10)
	memStore.Store(context.Background(), "a snippet", "d1", nil)

	registry := provider.NewRegistry()
	dhClient := datahaven.New("http://127.0.0.1:1", 50*time.Millisecond, zerolog.New(io.Discard))

	h := handler.NewHealthHandler(memStore, registry, dhClient)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rw := httptest.NewRecorder()
	h.Health(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rw.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
	if body["memory_entries"].(float64) != 1 {
		t.Fatalf("expected memory_entries=1, got %v", body["memory_entries"])
	}
	if body["datahaven_available"] != false {
		t.Fatalf("expected datahaven_available=false for unreachable service, got %v", body["datahaven_available"])
	}
}
