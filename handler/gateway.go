// Package handler exposes the orchestrator pipeline over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vantage-run/optigate/orchestrator"
)

const (
	maxPromptLen = 10000
	minPromptLen = 1
)

type gatewayRequest struct {
	Prompt        string `json:"prompt"`
	Mode          string `json:"mode"`
	CloudProvider string `json:"cloud_provider"`
}

// GatewayHandler serves POST /gateway and POST /mcp/gateway.
type GatewayHandler struct {
	orch   *orchestrator.Orchestrator
	logger zerolog.Logger
}

func NewGatewayHandler(orch *orchestrator.Orchestrator, logger zerolog.Logger) *GatewayHandler {
	return &GatewayHandler{orch: orch, logger: logger}
}

func (h *GatewayHandler) parseRequest(w http.ResponseWriter, r *http.Request) (*gatewayRequest, bool) {
	var body gatewayRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body")
		return nil, false
	}

	if len(body.Prompt) < minPromptLen || len(body.Prompt) > maxPromptLen {
		writeError(w, http.StatusUnprocessableEntity, "prompt must be between 1 and 10000 characters")
		return nil, false
	}

	if body.Mode == "" {
		body.Mode = "BALANCED"
	}
	if body.CloudProvider == "" {
		body.CloudProvider = "GROQ"
	}

	return &body, true
}

// Gateway serves the human-facing POST /gateway endpoint.
func (h *GatewayHandler) Gateway(w http.ResponseWriter, r *http.Request) {
	body, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	requestID := uuid.NewString()
	userID := r.Header.Get("X-User-ID")

	ctx, cancel := context.WithTimeout(r.Context(), 150*time.Second)
	defer cancel()

	resp := h.orch.Run(ctx, requestID, userID, body.Mode, body.CloudProvider, body.Prompt)

	writeJSON(w, http.StatusOK, resp.GatewayResponse)
}

// MCPGateway serves the machine-facing POST /mcp/gateway endpoint, which
// additionally surfaces the full audit trail and applied policy.
func (h *GatewayHandler) MCPGateway(w http.ResponseWriter, r *http.Request) {
	body, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	requestID := uuid.NewString()
	userID := r.Header.Get("X-User-ID")

	ctx, cancel := context.WithTimeout(r.Context(), 150*time.Second)
	defer cancel()

	resp := h.orch.Run(ctx, requestID, userID, body.Mode, body.CloudProvider, body.Prompt)

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
