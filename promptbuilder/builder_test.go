package promptbuilder_test

import (
	"strings"
	"testing"

	"github.com/vantage-run/optigate/promptbuilder"
)

func TestBuildWithoutContextYieldsSystemAndUser(t *testing.T) {
	messages, tokens := promptbuilder.Build("what's the weather like?", nil)

	if len(messages) != 2 {
		t.Fatalf("expected 2 messages (system, user), got %d", len(messages))
	}
	if messages[0].Role != "system" || messages[0].Content != promptbuilder.SystemPrompt {
		t.Fatalf("expected first message to be the fixed system prompt, got %+v", messages[0])
	}
	if messages[1].Role != "user" || messages[1].Content != "what's the weather like?" {
		t.Fatalf("expected last message to carry the user prompt, got %+v", messages[1])
	}
	if tokens <= 0 {
		t.Fatalf("expected a positive token count, got %d", tokens)
	}
}

func TestBuildWithContextInsertsContextMessage(t *testing.T) {
	context := []string{"Q: favorite color?\nA: blue", "Q: favorite food?\nA: pizza"}
	messages, _ := promptbuilder.Build("what did I say I liked?", context)

	if len(messages) != 3 {
		t.Fatalf("expected 3 messages (system, context, user), got %d", len(messages))
	}
	if messages[1].Role != "system" {
		t.Fatalf("expected context message to have role system, got %s", messages[1].Role)
	}
	if !strings.Contains(messages[1].Content, "blue") || !strings.Contains(messages[1].Content, "pizza") {
		t.Fatalf("expected context message to contain both snippets, got %q", messages[1].Content)
	}
}

func TestBuildTokenCountMatchesCountMessageTokens(t *testing.T) {
	messages, tokens := promptbuilder.Build("hello", []string{"some prior context"})
	recount := promptbuilder.CountMessageTokens(messages)

	if tokens != recount {
		t.Fatalf("expected Build's token count to match CountMessageTokens, got %d vs %d", tokens, recount)
	}
}
