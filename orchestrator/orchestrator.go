// Package orchestrator implements the nine-stage request pipeline that
// turns a raw prompt into a routed, screened, audited response.
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vantage-run/optigate/audit"
	"github.com/vantage-run/optigate/background"
	"github.com/vantage-run/optigate/datahaven"
	"github.com/vantage-run/optigate/guardrails"
	"github.com/vantage-run/optigate/memory"
	"github.com/vantage-run/optigate/pii"
	"github.com/vantage-run/optigate/policyengine"
	"github.com/vantage-run/optigate/postprocess"
	"github.com/vantage-run/optigate/promptbuilder"
	"github.com/vantage-run/optigate/provider"
	"github.com/vantage-run/optigate/shrinker"
)

// Config carries the tunables the orchestrator needs beyond its
// component handles.
type Config struct {
	MemoryTopK      int
	CostPer1kInput  float64
	CostPer1kOutput float64
}

// Orchestrator wires every component together and drives one request
// through S0-S9, scheduling S10/S11 as background work.
type Orchestrator struct {
	policy      *policyengine.Engine
	piiGuard    *pii.Guard
	memoryStore memory.Store
	registry    *provider.Registry
	datahaven   *datahaven.Client
	background  *background.Queue
	logger      zerolog.Logger
	cfg         Config
}

func New(
	policy *policyengine.Engine,
	piiGuard *pii.Guard,
	memoryStore memory.Store,
	registry *provider.Registry,
	dh *datahaven.Client,
	bg *background.Queue,
	logger zerolog.Logger,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		policy:      policy,
		piiGuard:    piiGuard,
		memoryStore: memoryStore,
		registry:    registry,
		datahaven:   dh,
		background:  bg,
		logger:      logger.With().Str("component", "orchestrator").Logger(),
		cfg:         cfg,
	}
}

type stageTiming struct {
	stages map[string]float64
	order  []string
}

func newStageTiming() *stageTiming {
	return &stageTiming{stages: make(map[string]float64)}
}

func (s *stageTiming) record(stage string, d time.Duration) {
	if _, ok := s.stages[stage]; !ok {
		s.order = append(s.order, stage)
	}
	s.stages[stage] = float64(d.Microseconds()) / 1000.0
}

func (s *stageTiming) total() float64 {
	var total float64
	for _, v := range s.stages {
		total += v
	}
	return total
}

// Run executes the full pipeline for one request. ctx should carry the
// client's cancellation; Run still guarantees PII cleanup and correct
// background-task skipping on cancellation.
func (o *Orchestrator) Run(ctx context.Context, requestID, userID, mode, cloudProvider, rawPrompt string) *MCPResponse {
	req := &Req{
		RequestID:  requestID,
		UserID:     userID,
		Mode:       mode,
		CloudPref:  cloudProvider,
		RawPrompt:  rawPrompt,
		AuditTrail: &audit.Trail{},
	}
	timing := newStageTiming()

	// S0: policy_fetch
	policy := o.stagePolicyFetch(ctx, req, timing)

	// S1: input_guardrails
	if blocked, resp := o.stageInputGuardrails(req, timing); blocked {
		resp.Latency = LatencyStats{PerStage: timing.stages, TotalMs: timing.total()}
		return &MCPResponse{
			GatewayResponse: *resp,
			AuditTrail:      req.AuditTrail.Entries(),
			PolicyApplied:   policy,
		}
	}
	defer o.piiGuard.Clear(req.RequestID)

	// S2: pii_guard (mask)
	o.stagePIIMask(req, timing)

	// S3: memory_retrieval
	contextSnippets := o.stageMemoryRetrieve(ctx, req, timing)
	req.ContextSnippets = contextSnippets

	// S4: prompt_build
	o.stagePromptBuild(req, timing)

	// S5: prompt_compress
	o.stagePromptCompress(req, timing, policy)

	// S6: routing
	route := o.stageRouting(req, timing, policy)

	// S7: inference
	rawResponse := o.stageInference(ctx, req, timing, policy, route)

	// S8: output_guardrails
	passedOutput, outputText, outputMeta := o.stageOutputGuardrails(req, timing, rawResponse)

	// S9: post_process (includes unmask)
	finalText := o.piiGuard.Unmask(outputText, req.RequestID)

	cost := postprocess.EstimateCost(
		postprocess.TokenStats{
			Original:   req.TokenStats.Original,
			Compressed: req.TokenStats.AfterCompression,
			Usage:      req.TokenStats.InferenceUsed,
		},
		req.TokenStats.InferenceUsed,
		req.Route,
		o.cfg.CostPer1kInput,
		o.cfg.CostPer1kOutput,
	)
	privacy := postprocess.DeterminePrivacyLevel(req.Route, req.PIIInfo.Count)

	postStart := time.Now()
	timing.record(audit.StagePostProcess, time.Since(postStart))
	o.appendAudit(req, audit.StagePostProcess, postStart, map[string]any{
		"estimated_cost": cost,
		"privacy_level":  privacy,
	})

	resp := &GatewayResponse{
		RequestID:     req.RequestID,
		Response:      finalText,
		Route:         req.Route,
		ModelUsed:     req.Model,
		TokenStats:    req.TokenStats,
		Latency:       LatencyStats{PerStage: timing.stages, TotalMs: timing.total()},
		EstimatedCost: cost,
		Redaction:     req.PIIInfo,
		PrivacyLevel:  privacy,
		Guardrails: Guardrails{
			InputBlocked:   false,
			OutputFiltered: !passedOutput,
			Reasons:        reasonsFrom(outputMeta),
		},
	}

	// DataHaven verification proof requires a synchronous audit POST
	// before the response goes out, so it must happen here rather than
	// in the backgrounded S11 task below. Only attempted when the
	// collaborator reports available; that check probes /health on its
	// first call and is cached afterwards, so a down DataHaven costs at
	// most that one probe.
	if ctx.Err() == nil && o.datahaven.IsAvailable(ctx) {
		resp.DataHavenProof = o.synchronousAuditProof(ctx, req, string(policy.Mode), cost, privacy, resp.Latency.TotalMs)
	}

	// S10/S11: background memory store + remote audit log, only if the
	// client is still with us. The remote audit log is always attempted
	// here (fire-and-forget) independent of the synchronous proof POST
	// above — availability can flip between the two, and S11 must never
	// gate on or affect the response already built.
	if ctx.Err() == nil {
		o.scheduleBackground(req, outputText, string(policy.Mode), cost, privacy, resp.Latency.TotalMs)
	}

	return &MCPResponse{
		GatewayResponse: *resp,
		AuditTrail:      req.AuditTrail.Entries(),
		PolicyApplied:   policy,
	}
}

func reasonsFrom(meta guardrails.OutputResult) []string {
	var reasons []string
	if meta.LeakDetected {
		reasons = append(reasons, "output contains possible AI self-disclosure")
	}
	if meta.HarmfulDetected {
		reasons = append(reasons, "output blocked for harmful content")
	}
	return reasons
}

func (o *Orchestrator) appendAudit(req *Req, stage string, start time.Time, meta map[string]any) {
	t := audit.Start(req.AuditTrail, stage)
	t.Metas(meta)
	t.Stop()
}

func (o *Orchestrator) stagePolicyFetch(ctx context.Context, req *Req, timing *stageTiming) datahaven.Policy {
	start := time.Now()
	t := audit.Start(req.AuditTrail, audit.StagePolicyFetch)

	policy := o.policy.FetchPolicy(ctx, req.UserID)

	t.SetStatus("ok")
	t.Stop()
	timing.record(audit.StagePolicyFetch, time.Since(start))
	return policy
}

func (o *Orchestrator) stageInputGuardrails(req *Req, timing *stageTiming) (bool, *GatewayResponse) {
	start := time.Now()
	t := audit.Start(req.AuditTrail, audit.StageInputGuardrails)

	passed, reason, meta := guardrails.CheckInput(req.RawPrompt)
	timing.record(audit.StageInputGuardrails, time.Since(start))

	if !passed {
		t.SetStatus("blocked")
		t.Metas(map[string]any{"reason": reason})
		t.Stop()

		req.Route = "BLOCKED"
		return true, &GatewayResponse{
			RequestID:    req.RequestID,
			Response:     reason,
			Route:        "BLOCKED",
			ModelUsed:    "",
			TokenStats:   TokenStats{},
			EstimatedCost: 0,
			Redaction:    Redaction{Types: map[string]int{}},
			PrivacyLevel: "BLOCKED",
			Guardrails: Guardrails{
				InputBlocked: true,
				Reasons:      []string{reason},
			},
		}
	}

	t.SetStatus("ok")
	t.Stop()
	_ = meta
	return false, nil
}

func (o *Orchestrator) stagePIIMask(req *Req, timing *stageTiming) {
	start := time.Now()
	t := audit.Start(req.AuditTrail, audit.StagePIIGuard)

	masked, info := o.piiGuard.Mask(req.RawPrompt, req.RequestID)
	req.MaskedPrompt = masked
	req.PIIInfo = Redaction{Count: info.RedactionCount, Types: info.RedactionTypes}

	t.SetStatus("ok")
	t.Metas(map[string]any{"redaction_count": info.RedactionCount})
	t.Stop()
	timing.record(audit.StagePIIGuard, time.Since(start))
}

func (o *Orchestrator) stageMemoryRetrieve(ctx context.Context, req *Req, timing *stageTiming) []string {
	start := time.Now()
	t := audit.Start(req.AuditTrail, audit.StageMemoryRetrieval)

	topK := o.cfg.MemoryTopK
	if topK <= 0 {
		topK = 3
	}

	var snippets []string
	func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Warn().Interface("panic", r).Msg("memory retrieval panicked, using empty context")
				snippets = nil
			}
		}()
		snippets = o.memoryStore.Retrieve(ctx, req.MaskedPrompt, topK)
	}()

	t.SetStatus("ok")
	t.Metas(map[string]any{"snippets": len(snippets)})
	t.Stop()
	timing.record(audit.StageMemoryRetrieval, time.Since(start))
	return snippets
}

func (o *Orchestrator) stagePromptBuild(req *Req, timing *stageTiming) {
	start := time.Now()
	t := audit.Start(req.AuditTrail, audit.StagePromptBuild)

	messages, tokenCount := promptbuilder.Build(req.MaskedPrompt, req.ContextSnippets)
	req.Messages = messages
	req.TokenStats.Original = tokenCount

	t.SetTokens(tokenCount)
	t.SetStatus("ok")
	t.Stop()
	timing.record(audit.StagePromptBuild, time.Since(start))
}

func (o *Orchestrator) stagePromptCompress(req *Req, timing *stageTiming, policy datahaven.Policy) {
	start := time.Now()
	t := audit.Start(req.AuditTrail, audit.StagePromptCompress)

	if !o.policy.ShouldCompress(policy) {
		req.CompressedMessages = req.Messages
		req.TokenStats.AfterCompression = req.TokenStats.Original
		req.TokenStats.Saved = 0
		req.TokenStats.CompressionRatio = 0
		t.SetStatus("skipped")
		t.Stop()
		timing.record(audit.StagePromptCompress, time.Since(start))
		return
	}

	compressed, after, saved := shrinker.Compress(req.Messages, req.TokenStats.Original)
	req.CompressedMessages = compressed
	req.TokenStats.AfterCompression = after
	req.TokenStats.Saved = saved
	if req.TokenStats.Original > 0 {
		req.TokenStats.CompressionRatio = float64(saved) / float64(req.TokenStats.Original)
	}

	t.SetTokens(after)
	t.SetStatus("ok")
	t.Stop()
	timing.record(audit.StagePromptCompress, time.Since(start))
}

func (o *Orchestrator) stageRouting(req *Req, timing *stageTiming, policy datahaven.Policy) policyengine.RouteDecision {
	start := time.Now()
	t := audit.Start(req.AuditTrail, audit.StageRouting)

	decision := o.policy.DecideRoute(policy, req.TokenStats.AfterCompression, req.CloudPref)
	req.Route = decision.Route
	req.Model = decision.Model

	t.SetRoute(decision.Route)
	t.SetStatus("ok")
	t.Stop()
	timing.record(audit.StageRouting, time.Since(start))
	return decision
}

func (o *Orchestrator) stageInference(ctx context.Context, req *Req, timing *stageTiming, policy datahaven.Policy, decision policyengine.RouteDecision) string {
	start := time.Now()
	t := audit.Start(req.AuditTrail, audit.StageInference)

	providerName := decision.Provider
	if providerName == "" {
		providerName = "local"
		if decision.Route == "CLOUD" {
			providerName = strings.ToLower(req.CloudPref)
			if providerName == "" {
				providerName = "groq"
			}
		}
	}

	wireMessages := make([]provider.Message, len(req.CompressedMessages))
	for i, m := range req.CompressedMessages {
		wireMessages[i] = provider.Message{Role: m.Role, Content: m.Content}
	}

	p, ok := o.registry.Get(providerName)
	var text string
	var tokens int
	var err error

	if ok {
		text, tokens, err = p.Infer(ctx, wireMessages, decision.Model)
	} else {
		text = fmt.Sprintf("[Error] provider %s not registered", providerName)
		err = fmt.Errorf("provider %s not registered", providerName)
	}

	if err != nil || strings.HasPrefix(text, "[Error]") {
		if o.policy.CanFallbackToCloud(policy) || providerName == "local" {
			whitelist := make(map[string]bool, len(policy.WhitelistedProviders))
			for _, w := range policy.WhitelistedProviders {
				whitelist[strings.ToLower(w)] = true
			}
			if fallbackProvider, fallbackName := o.registry.NextAvailable(ctx, providerName, whitelist); fallbackProvider != nil {
				// The fallback provider was never the one decision.Model
				// was resolved for (that model id belongs to the
				// provider that just failed) — use the fallback's own
				// configured model instead.
				fbModel := fallbackProvider.ModelID()
				fbText, fbTokens, _ := fallbackProvider.Infer(ctx, wireMessages, fbModel)
				audit.Start(req.AuditTrail, audit.StageFallback).
					Metas(map[string]any{"from": providerName, "to": fallbackName, "reason": text}).
					Stop()

				req.Route = "CLOUD"
				if fallbackName == "local" {
					req.Route = "LOCAL"
				}
				req.Provider = fallbackName
				req.Model = fbModel
				providerName = fallbackName
				text, tokens = fbText, fbTokens
			}
		}
	}

	if req.Provider == "" {
		req.Provider = providerName
	}
	req.TokenStats.InferenceUsed = tokens

	t.SetProvider(req.Provider)
	t.SetTokens(tokens)
	if strings.HasPrefix(text, "[Error]") {
		t.SetStatus("error")
	} else {
		t.SetStatus("ok")
	}
	t.Stop()
	timing.record(audit.StageInference, time.Since(start))
	return text
}

func (o *Orchestrator) stageOutputGuardrails(req *Req, timing *stageTiming, response string) (bool, string, guardrails.OutputResult) {
	start := time.Now()
	t := audit.Start(req.AuditTrail, audit.StageOutputGuardrails)

	passed, text, meta := guardrails.CheckOutput(response)

	t.SetStatus("ok")
	if !passed {
		t.SetStatus("filtered")
	}
	t.Stop()
	timing.record(audit.StageOutputGuardrails, time.Since(start))
	return passed, text, meta
}

// synchronousAuditProof posts the audit log entry to DataHaven before the
// response is sent, bounded by a short context so a slow collaborator
// never stalls the response noticeably beyond spec.md's 5s audit budget.
// Its only product is the optional verification proof; the S11 remote
// audit log is still posted separately by scheduleBackground.
func (o *Orchestrator) synchronousAuditProof(ctx context.Context, req *Req, policyMode string, cost float64, privacy string, latencyMs float64) *datahaven.Proof {
	entry := o.buildAuditEntry(req, policyMode, cost, privacy, latencyMs)

	auditCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	proof, err := o.datahaven.Audit(auditCtx, entry)
	if err != nil {
		o.logger.Debug().Err(err).Str("request_id", req.RequestID).Msg("datahaven audit post failed")
		return nil
	}
	return proof
}

func (o *Orchestrator) buildAuditEntry(req *Req, policyMode string, cost float64, privacy string, latencyMs float64) datahaven.AuditLogEntry {
	userID := req.UserID
	if userID == "" {
		userID = "anonymous"
	}
	return datahaven.AuditLogEntry{
		RequestID:    req.RequestID,
		UserID:       userID,
		Route:        req.Route,
		Provider:     req.Provider,
		Model:        req.Model,
		TokenCount:   req.TokenStats.InferenceUsed,
		LatencyMs:    math.Round(latencyMs*100) / 100,
		PrivacyLevel: privacy,
		CostEstimate: cost,
		PolicyMode:   policyMode,
	}
}

func (o *Orchestrator) scheduleBackground(req *Req, preUnmaskResponse string, policyMode string, cost float64, privacy string, latencyMs float64) {
	// preUnmaskResponse is the output-guardrail result taken before S9's
	// unmask step: the raw (still-masked) model response when output
	// passed, or the fixed safe message when it was filtered. Storing the
	// post-unmask response instead would write real PII into the memory
	// store, which later stages feed back as context into other requests.
	snippet := fmt.Sprintf("Q: %s\nA: %s", req.MaskedPrompt, truncateTo(preUnmaskResponse, 300))

	requestID := req.RequestID
	userID := req.UserID
	entry := o.buildAuditEntry(req, policyMode, cost, privacy, latencyMs)

	o.background.Submit(func(ctx context.Context) {
		o.memoryStore.Store(ctx, snippet, requestID, map[string]string{"user_id": userID})
	})

	o.background.Submit(func(ctx context.Context) {
		if _, err := o.datahaven.Audit(ctx, entry); err != nil {
			o.logger.Debug().Err(err).Str("request_id", requestID).Msg("background datahaven audit post failed")
		}
	})
}

func truncateTo(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
