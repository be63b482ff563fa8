package provider

import (
	"context"
	"sync"
	"time"
)

// Message is a single chat turn passed into Infer.
type Message struct {
	Role    string
	Content string
}

// Provider is the narrow contract every inference backend implements.
// Infer never returns an error across this boundary for transport
// failures — it encodes them as a bracketed "[Error] ..." string with
// tokens=0, per the inference error-handling contract.
type Provider interface {
	Name() string
	ModelID() string
	IsAvailable(ctx context.Context) bool
	Infer(ctx context.Context, messages []Message, model string) (text string, tokens int, err error)
}

// HealthStatus is the last-known availability of a provider.
type HealthStatus struct {
	Healthy   bool
	Latency   time.Duration
	LastCheck time.Time
	Error     string
}

// Registry holds process-wide provider singletons, configured once at
// startup from environment and never mutated afterward.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	health    map[string]HealthStatus
	// order is the fixed failover chain, independent of registration order.
	order []string
}

// FallbackOrder is the provider walk order used by C8 failover,
// local inference first, then cloud fallbacks: groq, mistral, openrouter, openai.
var FallbackOrder = []string{"local", "groq", "mistral", "openrouter", "openai"}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		health:    make(map[string]HealthStatus),
		order:     FallbackOrder,
	}
}

func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// HealthCheckAll probes every registered provider concurrently, stores
// the result as the registry's last-known health, and returns it.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]HealthStatus {
	r.mu.RLock()
	providers := make(map[string]Provider, len(r.providers))
	for k, v := range r.providers {
		providers[k] = v
	}
	r.mu.RUnlock()

	results := make(map[string]HealthStatus)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, p := range providers {
		wg.Add(1)
		go func(n string, prov Provider) {
			defer wg.Done()
			start := time.Now()
			healthy := prov.IsAvailable(ctx)
			status := HealthStatus{Healthy: healthy, Latency: time.Since(start), LastCheck: time.Now()}
			if !healthy {
				status.Error = "unavailable"
			}
			mu.Lock()
			results[n] = status
			mu.Unlock()
		}(name, p)
	}
	wg.Wait()

	r.mu.Lock()
	r.health = results
	r.mu.Unlock()

	return results
}

// NextInOrder returns the next provider name after `from` in the
// failover chain, or "" if `from` is the last entry or not present.
func NextInOrder(order []string, from string) string {
	for i, name := range order {
		if name == from && i+1 < len(order) {
			return order[i+1]
		}
	}
	return ""
}
