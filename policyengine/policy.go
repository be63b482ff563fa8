// Package policyengine enforces DataHaven-fetched policy at the routing,
// compression, and provider-selection decision points of the pipeline.
package policyengine

import (
	"context"
	"fmt"
	"strings"

	"github.com/vantage-run/optigate/datahaven"
)

// Engine fetches policy and turns it into concrete routing decisions.
type Engine struct {
	client         *datahaven.Client
	localModel     string
	cloudModels    map[string]string
	tokenThreshold int
}

func New(client *datahaven.Client, localModel string, cloudModels map[string]string, tokenThreshold int) *Engine {
	return &Engine{
		client:         client,
		localModel:     localModel,
		cloudModels:    cloudModels,
		tokenThreshold: tokenThreshold,
	}
}

// FetchPolicy retrieves a user's policy via DataHaven, defaulting
// gracefully on any failure.
func (e *Engine) FetchPolicy(ctx context.Context, userID string) datahaven.Policy {
	return e.client.FetchPolicy(ctx, userID)
}

// ShouldCompress reports whether the policy permits prompt compression.
func (e *Engine) ShouldCompress(policy datahaven.Policy) bool {
	return policy.CompressionEnabled
}

// EnforceTokenLimit checks a token count against the policy's ceiling.
func (e *Engine) EnforceTokenLimit(policy datahaven.Policy, tokenCount int) (bool, string) {
	if tokenCount > policy.MaxTokens {
		return false, fmt.Sprintf(
			"Token count (%d) exceeds policy limit (%d). Please reduce prompt size.",
			tokenCount, policy.MaxTokens,
		)
	}
	return true, ""
}

// RouteDecision is the outcome of routing: which path, which model, and
// which concrete provider the model belongs to — the provider that
// actually resolved the model id, not just the caller's preference.
type RouteDecision struct {
	Route    string // "LOCAL" or "CLOUD"
	Model    string
	Provider string
}

// DecideRoute applies the STRICT/BALANCED/PERFORMANCE routing table.
func (e *Engine) DecideRoute(policy datahaven.Policy, tokenCount int, preferredCloud string) RouteDecision {
	cloudModel := e.cloudModels[strings.ToUpper(preferredCloud)]
	if cloudModel == "" {
		cloudModel = e.cloudModels["GROQ"]
	}

	if policy.Mode == datahaven.ModeStrict {
		return RouteDecision{Route: "LOCAL", Model: e.localModel, Provider: "local"}
	}

	cloudAllowed := policy.AllowCloud && (policy.AllowsProvider("groq") || policy.AllowsProvider("openai"))

	if policy.Mode == datahaven.ModeBalanced {
		isLightweight := tokenCount < e.tokenThreshold
		if isLightweight || !cloudAllowed {
			return RouteDecision{Route: "LOCAL", Model: e.localModel, Provider: "local"}
		}
		provider := e.selectCloudProvider(policy, preferredCloud)
		model := e.cloudModels[provider]
		if model == "" {
			model = cloudModel
		}
		return RouteDecision{Route: "CLOUD", Model: model, Provider: strings.ToLower(provider)}
	}

	// PERFORMANCE
	if cloudAllowed {
		provider := e.selectCloudProvider(policy, preferredCloud)
		model := e.cloudModels[provider]
		if model == "" {
			model = cloudModel
		}
		return RouteDecision{Route: "CLOUD", Model: model, Provider: strings.ToLower(provider)}
	}

	return RouteDecision{Route: "LOCAL", Model: e.localModel, Provider: "local"}
}

func (e *Engine) selectCloudProvider(policy datahaven.Policy, preferred string) string {
	preferredUpper := strings.ToUpper(preferred)
	if policy.AllowsProvider(preferred) {
		return preferredUpper
	}
	for _, provider := range []string{"GROQ", "OPENAI"} {
		if policy.AllowsProvider(provider) {
			return provider
		}
	}
	return preferredUpper
}

// ValidateProvider checks a provider name against the policy whitelist.
func (e *Engine) ValidateProvider(policy datahaven.Policy, provider string) (bool, string) {
	if !policy.AllowsProvider(provider) {
		return false, fmt.Sprintf("Provider '%s' is not in policy whitelist", provider)
	}
	return true, ""
}

// CanFallbackToCloud reports whether policy allows falling back to a
// cloud provider after a local inference failure.
func (e *Engine) CanFallbackToCloud(policy datahaven.Policy) bool {
	return policy.AllowCloud &&
		policy.Mode != datahaven.ModeStrict &&
		(policy.AllowsProvider("groq") || policy.AllowsProvider("openai"))
}
