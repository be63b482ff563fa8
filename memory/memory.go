package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vantage-run/optigate/redisclient"
)

// Store is the C4 contract: retrieve, store, count. Implementations
// must treat retrieval failures as empty results, never errors that
// propagate to the orchestrator.
type Store interface {
	Retrieve(ctx context.Context, query string, topK int) []string
	Store(ctx context.Context, text, docID string, metadata map[string]string)
	Count(ctx context.Context) int
}

// RecencyStore is a bounded in-memory fallback: retrieval scores
// snippets by word overlap with the query and returns the topK best,
// ties broken by recency.
type RecencyStore struct {
	mu       sync.Mutex
	maxItems int
	items    []string
}

func NewRecencyStore(maxItems int) *RecencyStore {
	if maxItems <= 0 {
		maxItems = 500
	}
	return &RecencyStore{maxItems: maxItems}
}

func (s *RecencyStore) Retrieve(ctx context.Context, query string, topK int) []string {
	s.mu.Lock()
	items := append([]string(nil), s.items...)
	s.mu.Unlock()

	return topKByOverlap(items, query, topK)
}

func (s *RecencyStore) Store(ctx context.Context, text, docID string, metadata map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, text)
	if len(s.items) > s.maxItems {
		s.items = s.items[len(s.items)-s.maxItems:]
	}
}

func (s *RecencyStore) Count(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// RedisStore persists snippets to a Redis list, scoring retrieval the
// same way RecencyStore does. Falls back silently: any Redis error
// during Retrieve yields an empty slice, never an error.
type RedisStore struct {
	client *redisclient.Client
	key    string
	maxLen int64
	logger zerolog.Logger
}

func NewRedisStore(client *redisclient.Client, key string, maxLen int64, logger zerolog.Logger) *RedisStore {
	return &RedisStore{client: client, key: key, maxLen: maxLen, logger: logger}
}

func (s *RedisStore) Retrieve(ctx context.Context, query string, topK int) []string {
	items, err := s.client.All(ctx, s.key)
	if err != nil {
		s.logger.Warn().Err(err).Msg("memory: redis retrieve failed, returning empty context")
		return nil
	}
	return topKByOverlap(items, query, topK)
}

func (s *RedisStore) Store(ctx context.Context, text, docID string, metadata map[string]string) {
	if err := s.client.Push(ctx, s.key, text, s.maxLen); err != nil {
		s.logger.Warn().Err(err).Msg("memory: redis store failed")
	}
}

func (s *RedisStore) Count(ctx context.Context) int {
	n, err := s.client.Len(ctx, s.key)
	if err != nil {
		return 0
	}
	return int(n)
}

// topKByOverlap scores snippets by the fraction of query words they
// contain and returns the best topK, most recent first among ties.
func topKByOverlap(items []string, query string, topK int) []string {
	if topK <= 0 || len(items) == 0 {
		return nil
	}
	queryWords := strings.Fields(strings.ToLower(query))
	if len(queryWords) == 0 {
		return nil
	}

	type scored struct {
		text  string
		score int
		idx   int
	}
	scoredItems := make([]scored, len(items))
	for i, item := range items {
		lower := strings.ToLower(item)
		score := 0
		for _, w := range queryWords {
			if strings.Contains(lower, w) {
				score++
			}
		}
		scoredItems[i] = scored{text: item, score: score, idx: i}
	}

	// simple selection: stable sort by score desc, recency desc
	for i := 0; i < len(scoredItems); i++ {
		best := i
		for j := i + 1; j < len(scoredItems); j++ {
			if scoredItems[j].score > scoredItems[best].score ||
				(scoredItems[j].score == scoredItems[best].score && scoredItems[j].idx > scoredItems[best].idx) {
				best = j
			}
		}
		scoredItems[i], scoredItems[best] = scoredItems[best], scoredItems[i]
	}

	result := make([]string, 0, topK)
	for _, s := range scoredItems {
		if s.score == 0 {
			break
		}
		result = append(result, s.text)
		if len(result) == topK {
			break
		}
	}
	return result
}
