package pii

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// entityPattern is one (type, compiled regex) pair. Order matters: it
// is the fixed scan order: emails, phones, SSNs, credit cards, then IPs.
type entityPattern struct {
	typ string
	re  *regexp.Regexp
}

var regexPatterns = []entityPattern{
	{"EMAIL", regexp.MustCompile(`(?i)\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)},
	{"PHONE", regexp.MustCompile(`\b(\+?\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
	{"SSN", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"CREDIT_CARD", regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`)},
	{"IP_ADDRESS", regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)},
}

// Entity is one span an EntityRecognizer found in the text.
type Entity struct {
	Label string // e.g. "PERSON", "ORG", "GPE"
	Text  string
}

// EntityRecognizer is the pluggable NER pass: a pure text-to-entity-spans
// transform over already-masked text. A nil EntityRecognizer means
// regex-only detection.
type EntityRecognizer interface {
	Recognize(text string) []Entity
}

var nerLabelMap = map[string]string{
	"PERSON": "NAME",
	"ORG":    "ORG",
	"GPE":    "LOCATION",
}

// Info is the result of a mask call.
type Info struct {
	RedactionCount int
	RedactionTypes map[string]int
	RedactionMap   map[string]string // placeholder -> original
}

// Guard is the process-wide PII tokenizer. One Guard instance is
// constructed at startup and shared across requests; its internal
// store is keyed by request_id and mutex-protected.
type Guard struct {
	mu         sync.Mutex
	store      map[string]map[string]string
	createdAt  map[string]time.Time
	recognizer EntityRecognizer
	logger     zerolog.Logger

	reapCancel context.CancelFunc
	reapDone   chan struct{}
}

// New constructs a Guard. Pass a nil recognizer to run regex-only;
// logs once if so, matching the Python original's startup warning.
func New(recognizer EntityRecognizer, logger zerolog.Logger) *Guard {
	if recognizer == nil {
		logger.Warn().Msg("no NER recognizer configured — using regex-only PII detection")
	}
	return &Guard{
		store:      make(map[string]map[string]string),
		createdAt:  make(map[string]time.Time),
		recognizer: recognizer,
		logger:     logger.With().Str("component", "pii_guard").Logger(),
	}
}

// Mask tokenizes PII in text, storing the reverse map under requestID.
func (g *Guard) Mask(text, requestID string) (string, Info) {
	redactionMap := make(map[string]string)
	counters := make(map[string]int)
	masked := text

	for _, ep := range regexPatterns {
		matches := ep.re.FindAllString(masked, -1)
		for _, original := range matches {
			if containsValue(redactionMap, original) {
				continue
			}
			counters[ep.typ]++
			placeholder := placeholderFor(ep.typ, counters[ep.typ])
			redactionMap[placeholder] = original
			masked = replaceFirst(masked, original, placeholder)
		}
	}

	if g.recognizer != nil {
		for _, ent := range g.recognizer.Recognize(masked) {
			mappedType, ok := nerLabelMap[ent.Label]
			if !ok {
				continue
			}
			if strings.HasPrefix(ent.Text, "<") && strings.HasSuffix(ent.Text, ">") {
				continue
			}
			counters[mappedType]++
			placeholder := placeholderFor(mappedType, counters[mappedType])
			redactionMap[placeholder] = ent.Text
			masked = replaceFirst(masked, ent.Text, placeholder)
		}
	}

	g.mu.Lock()
	g.store[requestID] = redactionMap
	g.createdAt[requestID] = time.Now()
	g.mu.Unlock()

	return masked, Info{
		RedactionCount: len(redactionMap),
		RedactionTypes: counters,
		RedactionMap:   redactionMap,
	}
}

// Unmask substitutes every placeholder for requestID back to its
// original text. If requestID has no entry (never masked, or already
// cleared), text is returned unchanged.
func (g *Guard) Unmask(text, requestID string) string {
	g.mu.Lock()
	redactionMap := g.store[requestID]
	g.mu.Unlock()

	result := text
	for placeholder, original := range redactionMap {
		result = strings.ReplaceAll(result, placeholder, original)
	}
	return result
}

// Clear removes requestID's entry. Must run exactly once per request
// that called Mask, in a guaranteed-execution scope (defer), so the
// store cannot grow unbounded from abandoned requests.
func (g *Guard) Clear(requestID string) {
	g.mu.Lock()
	delete(g.store, requestID)
	delete(g.createdAt, requestID)
	g.mu.Unlock()
}

// Size reports how many request_ids currently hold a redaction map.
func (g *Guard) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.store)
}

// Reap deletes every entry older than maxAge and returns how many were
// removed. This is the backstop for entries whose owning request never
// reached its deferred Clear — a panic, a killed goroutine, or a bug
// upstream — so the store cannot grow unbounded over process lifetime.
func (g *Guard) Reap(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for id, createdAt := range g.createdAt {
		if createdAt.Before(cutoff) {
			delete(g.store, id)
			delete(g.createdAt, id)
			removed++
		}
	}
	return removed
}

// StartReaper begins a background ticker that sweeps orphaned entries
// every interval. Call StopReaper to shut it down gracefully.
func (g *Guard) StartReaper(interval, maxAge time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	g.reapCancel = cancel
	g.reapDone = make(chan struct{})

	go func() {
		defer close(g.reapDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := g.Reap(maxAge); n > 0 {
					g.logger.Warn().Int("reaped", n).Msg("reaped orphaned pii entries")
				}
			}
		}
	}()
}

// StopReaper gracefully stops the background reaper, if running.
func (g *Guard) StopReaper() {
	if g.reapCancel != nil {
		g.reapCancel()
		<-g.reapDone
	}
}

func placeholderFor(typ string, n int) string {
	return "<" + typ + "_" + strconv.Itoa(n) + ">"
}

func containsValue(m map[string]string, v string) bool {
	for _, existing := range m {
		if existing == v {
			return true
		}
	}
	return false
}

// replaceFirst replaces only the first occurrence of old in s, mirroring
// Python's str.replace(old, new, 1).
func replaceFirst(s, old, new string) string {
	idx := strings.Index(s, old)
	if idx < 0 {
		return s
	}
	return s[:idx] + new + s[idx+len(old):]
}

