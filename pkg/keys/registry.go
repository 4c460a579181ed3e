package keys

import (
	"sort"
	"sync"

	"github.com/marmos91/arcfs/pkg/fs/mountpoint"
)

// Factory creates the provider for a mount point.
type Factory func(mp mountpoint.MountPoint) Provider

// Registry hands out one provider per mount point, creating it on first
// use. The registry is safe for concurrent use; the providers it returns
// are not.
type Registry struct {
	mu        sync.Mutex
	factory   Factory
	providers map[string]Provider
}

// NewRegistry creates a registry backed by factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory:   factory,
		providers: make(map[string]Provider),
	}
}

// Provider returns the provider for mp.
func (r *Registry) Provider(mp mountpoint.MountPoint) Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := mp.String()
	if p, ok := r.providers[key]; ok {
		return p
	}
	p := r.factory(mp)
	r.providers[key] = p
	return p
}

// Invalidate discards the cached key material of mp, if any.
func (r *Registry) Invalidate(mp mountpoint.MountPoint) {
	r.mu.Lock()
	p, ok := r.providers[mp.String()]
	r.mu.Unlock()

	if ok {
		p.Invalidate()
	}
}

// InvalidateAll discards the key material of every provider.
func (r *Registry) InvalidateAll() {
	r.mu.Lock()
	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	r.mu.Unlock()

	for _, p := range providers {
		p.Invalidate()
	}
}

// MountPoints returns the keys of all providers created so far, sorted.
func (r *Registry) MountPoints() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.providers))
	for k := range r.providers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
