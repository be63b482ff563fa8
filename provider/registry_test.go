package provider_test

import (
	"context"
	"testing"

	"github.com/vantage-run/optigate/provider"
)

type fakeProvider struct {
	name      string
	available bool
}

func (f *fakeProvider) Name() string    { return f.name }
func (f *fakeProvider) ModelID() string { return "fake-model" }
func (f *fakeProvider) IsAvailable(ctx context.Context) bool {
	return f.available
}
func (f *fakeProvider) Infer(ctx context.Context, messages []provider.Message, model string) (string, int, error) {
	return "fake response", 10, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := provider.NewRegistry()
	p := &fakeProvider{name: "local", available: true}

	r.Register(p)

	got, ok := r.Get("local")
	if !ok {
		t.Fatal("expected local provider to be registered")
	}
	if got.Name() != "local" {
		t.Fatalf("expected local provider, got %s", got.Name())
	}

	if _, ok := r.Get("missing"); ok {
		t.Fatal("expected missing provider lookup to fail")
	}
}

func TestRegistryListReturnsAllRegistered(t *testing.T) {
	r := provider.NewRegistry()
	r.Register(&fakeProvider{name: "local", available: true})
	r.Register(&fakeProvider{name: "groq", available: true})

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 registered providers, got %d", len(list))
	}
}

func TestHealthCheckAllReflectsAvailability(t *testing.T) {
	r := provider.NewRegistry()
	r.Register(&fakeProvider{name: "local", available: true})
	r.Register(&fakeProvider{name: "groq", available: false})

	statuses := r.HealthCheckAll(context.Background())

	if !statuses["local"].Healthy {
		t.Fatal("expected local to be healthy")
	}
	if statuses["groq"].Healthy {
		t.Fatal("expected groq to be unhealthy")
	}
	if statuses["groq"].Error == "" {
		t.Fatal("expected an error string on the unhealthy provider")
	}
}

func TestNextInOrderWalksFallbackChain(t *testing.T) {
	order := []string{"local", "groq", "mistral", "openrouter", "openai"}

	if got := provider.NextInOrder(order, "local"); got != "groq" {
		t.Fatalf("expected groq after local, got %s", got)
	}
	if got := provider.NextInOrder(order, "openai"); got != "" {
		t.Fatalf("expected empty string past the end of the chain, got %s", got)
	}
	if got := provider.NextInOrder(order, "unknown"); got != "" {
		t.Fatalf("expected empty string for an unrecognized provider, got %s", got)
	}
}
