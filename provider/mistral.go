package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MistralProvider implements Provider for the Mistral chat completions API.
type MistralProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewMistralProvider(pool *ConnectionPool, baseURL, apiKey, model string, timeout time.Duration) *MistralProvider {
	if baseURL == "" {
		baseURL = "https://api.mistral.ai/v1"
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &MistralProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  pool.GetClient("mistral", timeout),
	}
}

func (p *MistralProvider) Name() string    { return "mistral" }
func (p *MistralProvider) ModelID() string { return p.model }

func (p *MistralProvider) IsAvailable(ctx context.Context) bool {
	return p.apiKey != ""
}

type mistralRequest struct {
	Model    string                 `json:"model"`
	Messages []openAICompatMessage  `json:"messages"`
}

// mistralContentBlock covers Mistral's structured content shape,
// `[{"type":"text","text":"..."}]`.
type mistralContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type mistralToolCall struct {
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type mistralMessage struct {
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	ToolCalls []mistralToolCall `json:"tool_calls,omitempty"`
}

type mistralResponse struct {
	Choices []struct {
		Message mistralMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// normalizeMistralContent collapses Mistral's content shapes (plain
// string, list of text blocks, or absent-with-tool_calls) to one string.
func normalizeMistralContent(msg mistralMessage) string {
	if len(msg.Content) > 0 {
		var asString string
		if err := json.Unmarshal(msg.Content, &asString); err == nil {
			return asString
		}
		var blocks []mistralContentBlock
		if err := json.Unmarshal(msg.Content, &blocks); err == nil {
			parts := make([]string, 0, len(blocks))
			for _, b := range blocks {
				if b.Text != "" {
					parts = append(parts, b.Text)
				}
			}
			return strings.Join(parts, "")
		}
	}
	if len(msg.ToolCalls) > 0 {
		encoded, err := json.Marshal(msg.ToolCalls)
		if err == nil {
			return string(encoded)
		}
	}
	return ""
}

// Infer never returns a non-nil error: transport and decode failures are
// folded into a bracketed "[Error] ..." response string with tokens=0,
// per the inference error-handling contract in the Provider interface.
func (p *MistralProvider) Infer(ctx context.Context, messages []Message, model string) (string, int, error) {
	text, tokens, err := p.doInfer(ctx, messages, model)
	if err != nil {
		return fmt.Sprintf("[Error] %s", err.Error()), 0, nil
	}
	return text, tokens, nil
}

func (p *MistralProvider) doInfer(ctx context.Context, messages []Message, model string) (string, int, error) {
	if model == "" {
		model = p.model
	}
	wireMessages := make([]openAICompatMessage, len(messages))
	for i, m := range messages {
		wireMessages[i] = openAICompatMessage{Role: m.Role, Content: m.Content}
	}

	body, err := json.Marshal(mistralRequest{Model: model, Messages: wireMessages})
	if err != nil {
		return "", 0, fmt.Errorf("mistral: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("mistral: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", 0, fmt.Errorf("mistral: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("mistral: status %d: %s", resp.StatusCode, string(respBody))
	}

	var result mistralResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", 0, fmt.Errorf("mistral: decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", 0, fmt.Errorf("mistral: empty choices")
	}
	return normalizeMistralContent(result.Choices[0].Message), result.Usage.TotalTokens, nil
}
