// Package registry keeps the durable set of broadcast recipients.
package registry

import (
	"context"
	"slices"
	"sync"

	"igrelay/internal/metrics"
	"igrelay/internal/storage"
	logx "igrelay/pkg/logx"
)

// Registry is a mutex-guarded set of recipient ids mirrored to a storage.Store.
//
// Every mutation rewrites the durable record before returning. Persist
// failures are logged and counted, never returned: the in-memory set stays
// authoritative for the running process.
type Registry struct {
	store storage.Store
	log   logx.Logger

	mu      sync.Mutex
	members map[int64]struct{}
}

// Open loads the registry from st. A missing record yields an empty registry;
// an unreadable one is logged and also yields an empty registry.
func Open(ctx context.Context, st storage.Store, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Registry{
		store:   st,
		log:     log.With(logx.Comp("registry")),
		members: map[int64]struct{}{},
	}

	ids, err := st.LoadRecipients(ctx)
	if err != nil {
		r.log.Error("load recipients failed; starting empty", logx.String("location", st.Location()), logx.Err(err))
		ids = nil
	}
	for _, id := range ids {
		r.members[id] = struct{}{}
	}
	metrics.RegistrySize.Set(float64(len(r.members)))
	r.log.Info("registry loaded", logx.Int("recipients", len(r.members)), logx.String("location", st.Location()))
	return r
}

// Add inserts id and reports whether it was newly inserted.
func (r *Registry) Add(ctx context.Context, id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; ok {
		return false
	}
	r.members[id] = struct{}{}
	r.persistLocked(ctx)
	return true
}

// Remove deletes id and reports whether it was present.
func (r *Registry) Remove(ctx context.Context, id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	r.persistLocked(ctx)
	return true
}

// Clear empties the registry and persists the empty record.
func (r *Registry) Clear(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.members)
	r.persistLocked(ctx)
}

// All returns a sorted copy of the members.
func (r *Registry) All() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedLocked()
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

func (r *Registry) Contains(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[id]
	return ok
}

// Location reports where the durable record lives.
func (r *Registry) Location() string { return r.store.Location() }

func (r *Registry) sortedLocked() []int64 {
	out := make([]int64, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (r *Registry) persistLocked(ctx context.Context) {
	ids := r.sortedLocked()
	metrics.RegistrySize.Set(float64(len(ids)))
	// Persist even if the caller's context is already done.
	if err := r.store.SaveRecipients(context.WithoutCancel(ctx), ids); err != nil {
		metrics.RegistryPersistErrors.Inc()
		r.log.Error("persist recipients failed", logx.Int("recipients", len(ids)), logx.Err(err))
	}
}
