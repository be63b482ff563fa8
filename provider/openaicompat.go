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

type openAICompatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAICompatRequest struct {
	Model    string                 `json:"model"`
	Messages []openAICompatMessage  `json:"messages"`
}

type openAICompatResponse struct {
	Choices []struct {
		Message openAICompatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// OpenAICompatProvider implements Provider for any backend speaking the
// `/chat/completions` OpenAI wire format: Groq, OpenAI itself, and
// OpenRouter.
type OpenAICompatProvider struct {
	name        string
	baseURL     string
	apiKey      string
	model       string
	client      *http.Client
	extraHeader map[string]string
}

// NewGroqProvider builds the "groq" connector.
func NewGroqProvider(pool *ConnectionPool, apiKey, model string, timeout time.Duration) *OpenAICompatProvider {
	return newOpenAICompatProvider(pool, "groq", "https://api.groq.com/openai/v1", apiKey, model, timeout, nil)
}

// NewOpenAIProvider builds the "openai" connector, talking to the real
// OpenAI API — deliberately not rebranded to any other backend.
func NewOpenAIProvider(pool *ConnectionPool, apiKey, model string, timeout time.Duration) *OpenAICompatProvider {
	return newOpenAICompatProvider(pool, "openai", "https://api.openai.com/v1", apiKey, model, timeout, nil)
}

// NewOpenRouterProvider builds the "openrouter" connector, with optional
// attribution headers.
func NewOpenRouterProvider(pool *ConnectionPool, apiKey, model, baseURL, siteURL, appName string, timeout time.Duration) *OpenAICompatProvider {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	headers := map[string]string{}
	if siteURL != "" {
		headers["HTTP-Referer"] = siteURL
	}
	if appName != "" {
		headers["X-Title"] = appName
	}
	return newOpenAICompatProvider(pool, "openrouter", baseURL, apiKey, model, timeout, headers)
}

func newOpenAICompatProvider(pool *ConnectionPool, name, baseURL, apiKey, model string, timeout time.Duration, extraHeader map[string]string) *OpenAICompatProvider {
	if timeout == 0 {
		timeout = 60 * time.Second // cloud inference default
	}
	return &OpenAICompatProvider{
		name:        name,
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       model,
		client:      pool.GetClient(name, timeout),
		extraHeader: extraHeader,
	}
}

func (p *OpenAICompatProvider) Name() string    { return p.name }
func (p *OpenAICompatProvider) ModelID() string { return p.model }

// IsAvailable reports whether an API key is configured
// §4.8: "for cloud providers, presence of an API key."
func (p *OpenAICompatProvider) IsAvailable(ctx context.Context) bool {
	return p.apiKey != ""
}

// Infer never returns a non-nil error: transport and decode failures are
// folded into a bracketed "[Error] ..." response string with tokens=0,
// per the inference error-handling contract in the Provider interface.
func (p *OpenAICompatProvider) Infer(ctx context.Context, messages []Message, model string) (string, int, error) {
	text, tokens, err := p.doInfer(ctx, messages, model)
	if err != nil {
		return fmt.Sprintf("[Error] %s", err.Error()), 0, nil
	}
	return text, tokens, nil
}

func (p *OpenAICompatProvider) doInfer(ctx context.Context, messages []Message, model string) (string, int, error) {
	if model == "" {
		model = p.model
	}
	wireMessages := make([]openAICompatMessage, len(messages))
	for i, m := range messages {
		wireMessages[i] = openAICompatMessage{Role: m.Role, Content: m.Content}
	}

	body, err := json.Marshal(openAICompatRequest{Model: model, Messages: wireMessages})
	if err != nil {
		return "", 0, fmt.Errorf("%s: marshal request: %w", p.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("%s: create request: %w", p.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	for k, v := range p.extraHeader {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", 0, fmt.Errorf("%s: request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("%s: status %d: %s", p.name, resp.StatusCode, string(respBody))
	}

	var result openAICompatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", 0, fmt.Errorf("%s: decode response: %w", p.name, err)
	}
	if len(result.Choices) == 0 {
		return "", 0, fmt.Errorf("%s: empty choices", p.name)
	}
	return result.Choices[0].Message.Content, result.Usage.TotalTokens, nil
}
