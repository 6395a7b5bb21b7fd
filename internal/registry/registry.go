// Package registry holds the hub's only piece of shared mutable state:
// the concurrent map of server id to server record. Records are immutable
// values; every update replaces the whole record under the lock, and every
// read hands out a deep copy, so callers never observe a torn record.
package registry

import (
	"context"
	"sync"
	"time"

	"mcphub/internal/hub"
)

// settlePollInterval is how often WaitUntilSettled re-reads a record.
const settlePollInterval = 20 * time.Millisecond

// Registry is a concurrent store of ServerId -> ServerRecord.
type Registry struct {
	mu      sync.RWMutex
	records map[string]hub.ServerRecord
	order   []string // insertion order for Snapshot
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		records: make(map[string]hub.ServerRecord),
	}
}

// Get returns a snapshot of the record for id.
func (r *Registry) Get(id string) (hub.ServerRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return hub.ServerRecord{}, false
	}
	return rec.Clone(), true
}

// CreateIfAbsent inserts the record when no record exists for its id.
// It returns the record now in the registry and whether the insert
// happened; when a record already exists it is returned unchanged.
func (r *Registry) CreateIfAbsent(rec hub.ServerRecord) (hub.ServerRecord, bool) {
	id := rec.Config.ID

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[id]; ok {
		return existing.Clone(), false
	}
	stored := rec.Clone()
	r.records[id] = stored
	r.order = append(r.order, id)
	return stored.Clone(), true
}

// UpdateIf atomically replaces the record for id with transform(current)
// when the current status is one of expected. This is the atomic status
// guard that serializes lifecycle transitions: the caller that wins the
// swap owns the transition, everyone else observes the winner's record.
// It returns the record now in the registry and whether the swap happened.
func (r *Registry) UpdateIf(id string, transform func(hub.ServerRecord) hub.ServerRecord, expected ...hub.ServerStatus) (hub.ServerRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.records[id]
	if !ok {
		return hub.ServerRecord{}, false
	}

	matched := false
	for _, status := range expected {
		if current.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return current.Clone(), false
	}

	next := transform(current.Clone())
	r.records[id] = next
	return next.Clone(), true
}

// Snapshot returns a copy of every record at a single logical instant, in
// insertion order.
func (r *Registry) Snapshot() []hub.ServerRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]hub.ServerRecord, 0, len(r.order))
	for _, id := range r.order {
		if rec, ok := r.records[id]; ok {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// WaitUntilSettled blocks until the record for id leaves the settling
// status (or disappears), then returns it. Used by stop to avoid
// interrupting an indeterminate in-flight start.
func (r *Registry) WaitUntilSettled(ctx context.Context, id string, settling hub.ServerStatus) (hub.ServerRecord, error) {
	ticker := time.NewTicker(settlePollInterval)
	defer ticker.Stop()

	for {
		rec, ok := r.Get(id)
		if !ok {
			return hub.ServerRecord{}, hub.ErrUnknownServer
		}
		if rec.Status != settling {
			return rec, nil
		}

		select {
		case <-ctx.Done():
			return rec, ctx.Err()
		case <-ticker.C:
		}
	}
}
