package orchestrator

import (
	"github.com/vantage-run/optigate/audit"
	"github.com/vantage-run/optigate/datahaven"
	"github.com/vantage-run/optigate/promptbuilder"
)

// TokenStats tracks a request's token count through compression and
// inference.
type TokenStats struct {
	Original          int     `json:"original"`
	AfterCompression  int     `json:"after_compression"`
	InferenceUsed     int     `json:"inference_used"`
	Saved             int     `json:"saved"`
	CompressionRatio  float64 `json:"compression_ratio"`
}

// LatencyStats reports wall-clock milliseconds spent per stage.
type LatencyStats struct {
	PerStage map[string]float64 `json:"per_stage"`
	TotalMs  float64            `json:"total_ms"`
}

// Redaction summarizes the PII masking applied to a request.
type Redaction struct {
	Count int            `json:"count"`
	Types map[string]int `json:"types"`
}

// Guardrails summarizes both guardrail passes for a request.
type Guardrails struct {
	InputBlocked  bool     `json:"input_blocked"`
	OutputFiltered bool    `json:"output_filtered"`
	Reasons       []string `json:"reasons,omitempty"`
}

// Req is the value threaded through every orchestrator stage. It is
// owned by a single request's goroutine for its whole lifetime.
type Req struct {
	RequestID string
	UserID    string
	Mode      string
	CloudPref string

	RawPrompt    string
	MaskedPrompt string

	ContextSnippets []string
	Messages        []promptbuilder.Message
	CompressedMessages []promptbuilder.Message

	Route    string
	Provider string
	Model    string

	TokenStats TokenStats

	PIIInfo Redaction

	AuditTrail *audit.Trail
}

// GatewayResponse is the human-facing shape returned by POST /gateway.
type GatewayResponse struct {
	RequestID      string          `json:"request_id"`
	Response       string          `json:"response"`
	Route          string          `json:"route"`
	ModelUsed      string          `json:"model_used"`
	TokenStats     TokenStats      `json:"token_stats"`
	Latency        LatencyStats    `json:"latency"`
	EstimatedCost  float64         `json:"estimated_cost"`
	Redaction      Redaction       `json:"redaction"`
	PrivacyLevel   string          `json:"privacy_level"`
	Guardrails     Guardrails      `json:"guardrails"`
	DataHavenProof *datahaven.Proof `json:"datahaven_proof,omitempty"`
}

// MCPResponse extends GatewayResponse with the full audit trail and the
// policy actually applied, for machine-consumer callers.
type MCPResponse struct {
	GatewayResponse
	AuditTrail    []audit.Entry     `json:"audit_trail"`
	PolicyApplied datahaven.Policy  `json:"policy_applied"`
}
