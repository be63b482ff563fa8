// Package postprocess computes the cost and privacy-classification
// figures attached to every completed gateway response.
package postprocess

import "math"

// TokenStats mirrors the three token-count stages a request passes
// through: original, post-compression, and final usage from the provider.
type TokenStats struct {
	Original   int
	Compressed int
	Usage      int
}

// EstimateCost prices a request. Local inference is always free; cloud
// cost is billed on compressed input tokens and reported usage output
// tokens, each against a per-1k rate.
func EstimateCost(stats TokenStats, usageTokens int, route string, costPer1kInput, costPer1kOutput float64) float64 {
	if route == "LOCAL" {
		return 0.0
	}
	inputCost := (float64(stats.Compressed) / 1000) * costPer1kInput
	outputCost := (float64(usageTokens) / 1000) * costPer1kOutput
	return round6(inputCost + outputCost)
}

// DeterminePrivacyLevel classifies how much of the request stayed
// on-device versus left for a cloud provider.
func DeterminePrivacyLevel(route string, redactionCount int) string {
	if route == "LOCAL" {
		return "HIGH"
	}
	if redactionCount > 0 {
		return "BALANCED"
	}
	return "CLOUD_HEAVY"
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
