package promptbuilder_test

import (
	"testing"

	"github.com/vantage-run/optigate/promptbuilder"
)

func TestEncodeLenGrowsWithTextLength(t *testing.T) {
	short := promptbuilder.EncodeLen("hi")
	long := promptbuilder.EncodeLen("this is a considerably longer piece of text")

	if long <= short {
		t.Fatalf("expected longer text to encode to more tokens: short=%d long=%d", short, long)
	}
}

func TestCountMessageTokensIncludesPerMessageOverhead(t *testing.T) {
	messages := []promptbuilder.Message{
		{Role: "system", Content: "be concise"},
		{Role: "user", Content: "hello"},
	}

	total := promptbuilder.CountMessageTokens(messages)
	contentOnly := promptbuilder.EncodeLen("be concise") + promptbuilder.EncodeLen("hello")

	if total <= contentOnly {
		t.Fatalf("expected per-message + reply-priming overhead on top of content, total=%d contentOnly=%d", total, contentOnly)
	}
}

func TestCountMessageTokensEmptyMessagesStillCountsPriming(t *testing.T) {
	total := promptbuilder.CountMessageTokens(nil)
	if total <= 0 {
		t.Fatalf("expected a positive baseline token count even with no messages, got %d", total)
	}
}
