package memory_test

import (
	"context"
	"testing"

	"github.com/vantage-run/optigate/memory"
)

func TestRecencyStoreRetrievesByOverlap(t *testing.T) {
	s := memory.NewRecencyStore(10)
	ctx := context.Background()

	s.Store(ctx, "the capital of France is Paris", "d1", nil)
	s.Store(ctx, "bananas are a good source of potassium", "d2", nil)
	s.Store(ctx, "Paris is known for the Eiffel Tower", "d3", nil)

	got := s.Retrieve(ctx, "tell me about Paris", 2)

	if len(got) != 2 {
		t.Fatalf("expected 2 snippets, got %d: %v", len(got), got)
	}
	for _, snippet := range got {
		if snippet == "bananas are a good source of potassium" {
			t.Fatalf("expected unrelated snippet to be excluded, got %v", got)
		}
	}
}

func TestRecencyStoreReturnsNoneWithoutOverlap(t *testing.T) {
	s := memory.NewRecencyStore(10)
	ctx := context.Background()

	s.Store(ctx, "bananas are a good source of potassium", "d1", nil)

	got := s.Retrieve(ctx, "quantum mechanics", 3)
	if len(got) != 0 {
		t.Fatalf("expected no matches, got %v", got)
	}
}

func TestRecencyStoreEvictsOldestBeyondCapacity(t *testing.T) {
	s := memory.NewRecencyStore(2)
	ctx := context.Background()

	s.Store(ctx, "first entry about cats", "d1", nil)
	s.Store(ctx, "second entry about dogs", "d2", nil)
	s.Store(ctx, "third entry about birds", "d3", nil)

	if got := s.Count(ctx); got != 2 {
		t.Fatalf("expected capacity to cap count at 2, got %d", got)
	}

	got := s.Retrieve(ctx, "cats", 1)
	if len(got) != 0 {
		t.Fatalf("expected the oldest (cats) entry to have been evicted, got %v", got)
	}
}

func TestRecencyStoreCountStartsAtZero(t *testing.T) {
	s := memory.NewRecencyStore(10)
	if got := s.Count(context.Background()); got != 0 {
		t.Fatalf("expected empty store to count 0, got %d", got)
	}
}
