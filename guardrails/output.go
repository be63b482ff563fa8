package guardrails

import (
	"regexp"
	"strings"
)

var leakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)as an AI (assistant|language model)`),
	regexp.MustCompile(`(?i)I (am|cannot|can't) (provide|assist|help) with`),
	regexp.MustCompile(`(?i)OpenAI|Anthropic|Claude|GPT[- ]?\d`),
	regexp.MustCompile(`(?i)my (instructions|guidelines|programming) (say|state|require)`),
	regexp.MustCompile(`(?i)according to my (system|training) (prompt|instructions)`),
	regexp.MustCompile(`(?i)I'm (sorry|unable).*(policy|guidelines|safety)`),
}

var outputHarmfulPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)how\s+to\s+(build|make|create)\s+(a\s+)?(bomb|explosive|weapon)`),
	regexp.MustCompile(`(?i)step\s+by\s+step.*(kill|murder|harm)`),
	regexp.MustCompile(`(?i)child\s+(porn|sexual|abuse)`),
	regexp.MustCompile(`(?i)detailed\s+instructions\s+for\s+(violence|self-harm)`),
}

const outputFilteredMessage = "The model's response was filtered for safety. Please try a different prompt."

// OutputResult is the metadata companion to an output guardrail check.
type OutputResult struct {
	LeakDetected     bool
	HarmfulDetected  bool
	Sanitized        bool
}

// CheckOutput screens a model response. If passed=false, `text` carries
// the fixed safe message to show the user instead of the raw response.
func CheckOutput(response string) (passed bool, text string, meta OutputResult) {
	if strings.HasPrefix(strings.TrimSpace(response), "[Error]") {
		return true, response, meta
	}

	for _, pattern := range leakPatterns {
		if pattern.MatchString(response) {
			meta.LeakDetected = true
			break
		}
	}

	for _, pattern := range outputHarmfulPatterns {
		if pattern.MatchString(response) {
			meta.HarmfulDetected = true
			meta.Sanitized = true
			return false, outputFilteredMessage, meta
		}
	}

	return true, response, meta
}
