package backend

import (
	"context"

	"github.com/priyank/cloudvault/internal/models"
)

// Registry holds the configured backends in fallback priority order. It is
// constructed once at startup and injected into every coordinator; there is
// no ambient lookup.
type Registry struct {
	backends []StorageBackend
}

// NewRegistry builds a registry from backends in priority order. The last
// backend is the last resort of the fallback chain.
func NewRegistry(backends ...StorageBackend) *Registry {
	return &Registry{backends: backends}
}

// All returns every registered backend in priority order.
func (r *Registry) All() []StorageBackend {
	return r.backends
}

// Candidates returns the backends that report themselves available, in
// priority order. Unavailable backends are skipped here so the coordinator
// never burns retries on a provably-absent backend.
func (r *Registry) Candidates(ctx context.Context) []StorageBackend {
	var out []StorageBackend
	for _, b := range r.backends {
		if b.IsAvailable(ctx) {
			out = append(out, b)
		}
	}
	return out
}

// ByKind finds the backend holding records of the given kind.
func (r *Registry) ByKind(kind models.BackendKind) (StorageBackend, bool) {
	for _, b := range r.backends {
		if b.Kind() == kind {
			return b, true
		}
	}
	return nil, false
}

// LastResort returns the final backend of the chain, or nil for an empty
// registry.
func (r *Registry) LastResort() StorageBackend {
	if len(r.backends) == 0 {
		return nil
	}
	return r.backends[len(r.backends)-1]
}
