package shrinker

import (
	"math"
	"regexp"
	"strings"

	"github.com/vantage-run/optigate/promptbuilder"
)

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true, "have": true,
	"has": true, "had": true, "do": true, "does": true, "did": true,
	"will": true, "would": true, "shall": true, "should": true, "may": true,
	"might": true, "must": true, "can": true, "could": true, "am": true,
	"it": true, "its": true, "this": true, "that": true, "these": true,
	"those": true, "i": true, "you": true, "he": true, "she": true,
	"we": true, "they": true, "me": true, "him": true, "her": true,
	"us": true, "them": true, "my": true, "your": true, "his": true,
	"our": true, "their": true, "of": true, "in": true, "to": true,
	"for": true, "with": true, "on": true, "at": true, "from": true,
	"by": true, "as": true, "into": true, "about": true, "between": true,
	"through": true, "during": true, "just": true, "also": true,
	"very": true, "really": true, "quite": true, "rather": true,
	"too": true, "so": true, "then": true,
}

var trimPunct = regexp.MustCompile(`^[.,!?;:]+|[.,!?;:]+$`)
var collapseSpace = regexp.MustCompile(`\s{2,}`)

// lightweightCompress drops stop-words and stops once the kept count
// reaches a ⌈ratio*N⌉ word target, truncating whatever is left. Falls
// back to the first ⌈ratio*N⌉ words, unfiltered, if filtering empties
// the result.
func lightweightCompress(text string, ratio float64) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return text
	}

	targetLen := int(math.Ceil(float64(len(words)) * ratio))
	if targetLen < 1 {
		targetLen = 1
	}

	kept := make([]string, 0, targetLen)
	for _, w := range words {
		bare := strings.ToLower(trimPunct.ReplaceAllString(w, ""))
		if stopWords[bare] && len(kept) < len(words) {
			continue
		}
		kept = append(kept, w)
		if len(kept) >= targetLen {
			break
		}
	}

	if len(kept) == 0 {
		kept = words[:targetLen]
	}

	result := strings.Join(kept, " ")
	result = collapseSpace.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}

// Compress applies lightweightCompress to every non-system message.
func Compress(messages []promptbuilder.Message, originalTokens int) ([]promptbuilder.Message, int, int) {
	compressed := make([]promptbuilder.Message, len(messages))
	for i, m := range messages {
		if m.Role == "system" {
			compressed[i] = m
			continue
		}
		compressed[i] = promptbuilder.Message{Role: m.Role, Content: lightweightCompress(m.Content, 0.6)}
	}

	after := promptbuilder.CountMessageTokens(compressed)
	saved := originalTokens - after
	if saved < 0 {
		saved = 0
	}
	return compressed, after, saved
}
