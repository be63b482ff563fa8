// Package datahaven is a thin HTTP client for the external policy/audit
// collaborator service. It never transmits raw prompts or PII — only
// metadata crosses this boundary.
package datahaven

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PolicyMode mirrors the three routing postures a policy can select.
type PolicyMode string

const (
	ModeStrict      PolicyMode = "STRICT"
	ModeBalanced    PolicyMode = "BALANCED"
	ModePerformance PolicyMode = "PERFORMANCE"
)

// Policy is the enterprise policy object fetched from DataHaven.
type Policy struct {
	Mode                 PolicyMode `json:"mode"`
	AllowCloud           bool       `json:"allow_cloud"`
	MaxTokens            int        `json:"max_tokens"`
	RequirePIIMasking    bool       `json:"require_pii_masking"`
	CompressionEnabled   bool       `json:"compression_enabled"`
	WhitelistedProviders []string   `json:"whitelisted_providers"`
}

// DefaultPolicy is returned whenever DataHaven is unreachable or
// misbehaves — the pipeline must never block on it.
func DefaultPolicy() Policy {
	return Policy{
		Mode:                 ModeBalanced,
		AllowCloud:           true,
		MaxTokens:            4096,
		RequirePIIMasking:    true,
		CompressionEnabled:   true,
		WhitelistedProviders: []string{"local", "groq", "openai", "mistral", "openrouter"},
	}
}

// AllowsProvider reports whether a provider name is whitelisted.
func (p Policy) AllowsProvider(provider string) bool {
	for _, w := range p.WhitelistedProviders {
		if strings.EqualFold(w, provider) {
			return true
		}
	}
	return false
}

// AuditLogEntry is the metadata-only payload posted to DataHaven's /log
// endpoint — one per completed request.
type AuditLogEntry struct {
	RequestID    string  `json:"request_id"`
	UserID       string  `json:"user_id"`
	Route        string  `json:"route"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	TokenCount   int     `json:"token_count"`
	LatencyMs    float64 `json:"latency_ms"`
	PrivacyLevel string  `json:"privacy_level"`
	CostEstimate float64 `json:"cost_estimate"`
	PolicyMode   string  `json:"policy_mode"`
}

// Proof is an optional tamper-evident verification receipt DataHaven may
// return for an audit submission. Absent when the service doesn't support
// it or returns a bare 200 with no receipt body.
type Proof struct {
	Verified    bool   `json:"verified"`
	LogID       string `json:"log_id"`
	ContentHash string `json:"content_hash"`
	MerkleLeaf  string `json:"merkle_leaf"`
	MerkleRoot  string `json:"merkle_root"`
	Signature   string `json:"signature"`
	Algorithm   string `json:"algorithm"`
	Chain       string `json:"chain"`
	Timestamp   string `json:"timestamp"`
	Status      string `json:"status"`
}

// Client talks to the DataHaven microservice over HTTP, degrading to
// safe defaults whenever the service is unreachable.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger

	mu        sync.Mutex
	available *bool
}

func New(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// IsAvailable probes the service's /health endpoint once and caches the
// result for the life of the client.
func (c *Client) IsAvailable(ctx context.Context) bool {
	c.mu.Lock()
	if c.available != nil {
		avail := *c.available
		c.mu.Unlock()
		return avail
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return c.setAvailable(false)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return c.setAvailable(false)
	}
	defer resp.Body.Close()
	return c.setAvailable(resp.StatusCode == http.StatusOK)
}

func (c *Client) setAvailable(v bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available = &v
	return v
}

type policyResponse struct {
	Success bool `json:"success"`
	Policy  *struct {
		Mode                 string   `json:"mode"`
		AllowCloud           bool     `json:"allow_cloud"`
		MaxTokens            int      `json:"max_tokens"`
		RequirePIIMasking    bool     `json:"require_pii_masking"`
		CompressionEnabled   bool     `json:"compression_enabled"`
		WhitelistedProviders []string `json:"whitelisted_providers"`
	} `json:"policy"`
}

// FetchPolicy retrieves a user's policy, falling back to DefaultPolicy on
// any failure — network error, non-200, or malformed body.
func (c *Client) FetchPolicy(ctx context.Context, userID string) Policy {
	if userID == "" {
		userID = "default"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/policy/"+userID, nil)
	if err != nil {
		return DefaultPolicy()
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("datahaven policy fetch failed, using default policy")
		return DefaultPolicy()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Msg("datahaven policy fetch returned non-200")
		return DefaultPolicy()
	}

	var parsed policyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || !parsed.Success || parsed.Policy == nil {
		return DefaultPolicy()
	}

	p := DefaultPolicy()
	pol := parsed.Policy
	if pol.Mode != "" {
		p.Mode = PolicyMode(pol.Mode)
	}
	p.AllowCloud = pol.AllowCloud
	if pol.MaxTokens > 0 {
		p.MaxTokens = pol.MaxTokens
	}
	p.RequirePIIMasking = pol.RequirePIIMasking
	p.CompressionEnabled = pol.CompressionEnabled
	if len(pol.WhitelistedProviders) > 0 {
		p.WhitelistedProviders = pol.WhitelistedProviders
	}
	return p
}

// Audit posts a single metadata-only log entry. Transport, encoding and
// non-200 failures are returned as errors for the caller to handle; a
// 200 without a receipt body yields (nil, nil).
func (c *Client) Audit(ctx context.Context, entry AuditLogEntry) (*Proof, error) {
	body, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/log", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Msg("datahaven service not reachable for audit log")
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("datahaven log returned status %d", resp.StatusCode)
	}

	var proof Proof
	if err := json.NewDecoder(resp.Body).Decode(&proof); err != nil {
		return nil, nil
	}
	if proof.Signature == "" && proof.LogID == "" {
		return nil, nil
	}
	return &proof, nil
}
