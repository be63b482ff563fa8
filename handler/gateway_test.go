package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vantage-run/optigate/background"
	"github.com/vantage-run/optigate/datahaven"
	"github.com/vantage-run/optigate/handler"
	"github.com/vantage-run/optigate/memory"
	"github.com/vantage-run/optigate/orchestrator"
	"github.com/vantage-run/optigate/pii"
	"github.com/vantage-run/optigate/policyengine"
	"github.com/vantage-run/optigate/provider"
)

func newTestGatewayHandler() *handler.GatewayHandler {
	log := zerolog.New(io.Discard)
	registry := provider.NewRegistry()
	memStore := memory.NewRecencyStore(50)
	piiGuard := pii.New(nil, log)
	dhClient := datahaven.New("http://127.0.0.1:1", 50*time.Millisecond, log)
	policyEng := policyengine.New(dhClient, "llama3.2", map[string]string{"GROQ": "llama-3.3-70b"}, 500)
	bgQueue := background.New(10, 1, log)

	orch := orchestrator.New(policyEng, piiGuard, memStore, registry, dhClient, bgQueue, log, orchestrator.Config{
		MemoryTopK:      3,
		CostPer1kInput:  0.0005,
		CostPer1kOutput: 0.0015,
	})

	return handler.NewGatewayHandler(orch, log)
}

func TestGatewayRejectsInvalidJSON(t *testing.T) {
	h := newTestGatewayHandler()

	req := httptest.NewRequest(http.MethodPost, "/gateway", strings.NewReader("not json"))
	rw := httptest.NewRecorder()
	h.Gateway(rw, req)

	if rw.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for invalid JSON, got %d", rw.Code)
	}
}

func TestGatewayRejectsEmptyPrompt(t *testing.T) {
	h := newTestGatewayHandler()

	body, _ := json.Marshal(map[string]string{"prompt": ""})
	req := httptest.NewRequest(http.MethodPost, "/gateway", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	h.Gateway(rw, req)

	if rw.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty prompt, got %d", rw.Code)
	}
}

func TestGatewayDefaultsModeAndCloudProvider(t *testing.T) {
	h := newTestGatewayHandler()

	body, _ := json.Marshal(map[string]string{"prompt": "tell me something interesting"})
	req := httptest.NewRequest(http.MethodPost, "/gateway", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	h.Gateway(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}

	var resp orchestrator.GatewayResponse
	if err := json.NewDecoder(rw.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RequestID == "" {
		t.Fatal("expected a non-empty request id")
	}
}

func TestMCPGatewaySurfacesAuditTrailAndPolicy(t *testing.T) {
	h := newTestGatewayHandler()

	body, _ := json.Marshal(map[string]string{"prompt": "what is the capital of Peru?"})
	req := httptest.NewRequest(http.MethodPost, "/mcp/gateway", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	h.MCPGateway(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}

	var resp orchestrator.MCPResponse
	if err := json.NewDecoder(rw.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.AuditTrail) == 0 {
		t.Fatal("expected a non-empty audit trail")
	}
	if resp.PolicyApplied.Mode == "" {
		t.Fatal("expected the applied policy to be surfaced")
	}
}
