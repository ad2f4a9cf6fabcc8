// Package inflight rejects a second mutating call on an appointment while the first is still
// outstanding. Callers are never queued.
package inflight

import (
	"context"
	"sync"

	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/clinicerr"
)

type Guard interface {
	// Acquire claims key. The returned release must be called exactly once; a second Acquire on
	// a held key fails with an in_progress error.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// MemoryGuard is a per-process set of held keys.
type MemoryGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{held: make(map[string]struct{})}
}

func (g *MemoryGuard) Acquire(_ context.Context, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[key]; busy {
		return nil, clinicerr.InProgress(key)
	}
	g.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, nil
}

// Held reports whether key is currently claimed.
func (g *MemoryGuard) Held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[key]
	return ok
}
