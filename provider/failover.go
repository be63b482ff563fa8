package provider

import "context"

// NextAvailable walks FallbackOrder starting just after `from`,
// skipping any provider not in `whitelist` or not currently available,
// and returns the first provider that qualifies. Returns (nil, "") if
// none do.
func (r *Registry) NextAvailable(ctx context.Context, from string, whitelist map[string]bool) (Provider, string) {
	startIdx := -1
	for i, name := range r.order {
		if name == from {
			startIdx = i
			break
		}
	}
	for i := startIdx + 1; i < len(r.order); i++ {
		name := r.order[i]
		if whitelist != nil && !whitelist[name] {
			continue
		}
		p, ok := r.Get(name)
		if !ok {
			continue
		}
		if p.IsAvailable(ctx) {
			return p, name
		}
	}
	return nil, ""
}
