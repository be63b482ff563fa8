package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaProvider implements Provider against a local Ollama server.
type OllamaProvider struct {
	name    string
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaProvider creates the "local" provider connector. inferTimeout
// is the per-call budget for local inference; the availability check
// is separately bounded to 5 seconds inside IsAvailable.
func NewOllamaProvider(pool *ConnectionPool, baseURL, model string, inferTimeout time.Duration) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if inferTimeout == 0 {
		inferTimeout = 120 * time.Second
	}
	return &OllamaProvider{
		name:    "local",
		baseURL: baseURL,
		model:   model,
		client:  pool.GetClient("local", inferTimeout),
	}
}

func (p *OllamaProvider) Name() string    { return p.name }
func (p *OllamaProvider) ModelID() string { return p.model }

// IsAvailable probes /api/tags with a short bounded timeout regardless
// of the caller's context deadline, so a stuck daemon can't stall startup.
func (p *OllamaProvider) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message   ollamaChatMessage `json:"message"`
	EvalCount int               `json:"eval_count"`
}

// Infer never returns a non-nil error: transport and decode failures are
// folded into a bracketed "[Error] ..." response string with tokens=0,
// per the inference error-handling contract in the Provider interface.
func (p *OllamaProvider) Infer(ctx context.Context, messages []Message, model string) (string, int, error) {
	text, tokens, err := p.doInfer(ctx, messages, model)
	if err != nil {
		return fmt.Sprintf("[Error] %s", err.Error()), 0, nil
	}
	return text, tokens, nil
}

func (p *OllamaProvider) doInfer(ctx context.Context, messages []Message, model string) (string, int, error) {
	if model == "" {
		model = p.model
	}
	wireMessages := make([]ollamaChatMessage, len(messages))
	for i, m := range messages {
		wireMessages[i] = ollamaChatMessage{Role: m.Role, Content: m.Content}
	}

	body, err := json.Marshal(ollamaChatRequest{Model: model, Messages: wireMessages, Stream: false})
	if err != nil {
		return "", 0, fmt.Errorf("local: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("local: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", 0, fmt.Errorf("local: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("local: status %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", 0, fmt.Errorf("local: decode response: %w", err)
	}
	return chatResp.Message.Content, chatResp.EvalCount, nil
}
