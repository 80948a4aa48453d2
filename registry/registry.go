// Package registry resolves canonical entity identities from natural keys.
//
// The registry is the one structure shared across any pipeline sharding:
// a single synchronized natural-key -> surrogate-id table. Duplicating it
// per worker would assign duplicate surrogate ids, so it is always
// injected, never ambient.
package registry

import (
	"log/slog"
	"maps"
	"reflect"
	"sync"

	"github.com/c360/lineflow/message"
)

// entry is the registry's record for one entity.
type entry struct {
	id    int64
	attrs map[string]any
}

// Registry assigns surrogate ids to (kind, natural key) pairs and merges
// attributes. The mapping is injective and stable for the registry's
// lifetime: identical natural keys always resolve to the same surrogate
// id, and two distinct keys never share one.
type Registry struct {
	mu      sync.Mutex
	nextID  int64
	entries map[string]*entry
	logger  *slog.Logger
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Result reports what an upsert did.
type Result struct {
	Surrogate int64
	// Created is true when the natural key was first seen.
	Created bool
	// Changed is true when Created, or when at least one attribute value
	// differs from what was previously known.
	Changed bool
	// Attributes is the merged attribute set after the upsert.
	Attributes map[string]any
}

// Upsert resolves a natural key to its surrogate id, creating the entity
// on first sight and merging attributes on every call.
//
// Merge semantics are last-write-wins per attribute: a differing value
// replaces the known one, but an absent attribute never clears a
// previously known one - absence means "not reported this time".
func (r *Registry) Upsert(kind message.EntityKind, naturalKey string, attrs map[string]any) Result {
	key := string(kind) + "\x00" + naturalKey

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		r.nextID++
		e = &entry{id: r.nextID, attrs: make(map[string]any, len(attrs))}
		maps.Copy(e.attrs, attrs)
		r.entries[key] = e
		r.logger.Debug("entity created",
			"kind", string(kind), "natural_key", naturalKey, "surrogate_id", e.id)
		return Result{Surrogate: e.id, Created: true, Changed: true, Attributes: cloneAttrs(e.attrs)}
	}

	changed := false
	for k, v := range attrs {
		// DeepEqual: decoded JSON attributes may hold nested maps.
		if prev, known := e.attrs[k]; !known || !reflect.DeepEqual(prev, v) {
			e.attrs[k] = v
			changed = true
		}
	}
	return Result{Surrogate: e.id, Changed: changed, Attributes: cloneAttrs(e.attrs)}
}

// Lookup returns the surrogate id for a natural key, if known.
func (r *Registry) Lookup(kind message.EntityKind, naturalKey string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[string(kind)+"\x00"+naturalKey]
	if !ok {
		return 0, false
	}
	return e.id, true
}

// Len returns the number of known entities.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// cloneAttrs returns a copy safe to hand outside the lock.
func cloneAttrs(attrs map[string]any) map[string]any {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]any, len(attrs))
	maps.Copy(out, attrs)
	return out
}
