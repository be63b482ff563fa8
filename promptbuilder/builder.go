package promptbuilder

import "strings"

const SystemPrompt = "You are an AI assistant. Be helpful, accurate, and concise. " +
	"Respect user privacy — never ask for personal information."

// Message mirrors provider.Message; kept as its own type so this
// package has no dependency on the provider package.
type Message struct {
	Role    string
	Content string
}

// Build assembles 1-3 messages and counts their tokens using the same
// accounting convention as the chat completion APIs.
func Build(maskedPrompt string, context []string) ([]Message, int) {
	messages := []Message{{Role: "system", Content: SystemPrompt}}

	if len(context) > 0 {
		contextBlock := strings.Join(context, "\n---\n")
		messages = append(messages, Message{
			Role:    "system",
			Content: "Relevant context:\n" + contextBlock,
		})
	}

	messages = append(messages, Message{Role: "user", Content: maskedPrompt})

	return messages, CountMessageTokens(messages)
}
