// Package registry maps logical widget identifiers to the current
// generation's content-addressed artifact paths.
//
// The active generation is an immutable value behind an atomic pointer:
// publishes replace it wholesale, reads take a snapshot. Any number of
// concurrent readers observe either the old or the new generation in full,
// never a mix. Manifest persistence lives behind the [Store] interface with
// file and PostgreSQL backends.
package registry

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/orreryhq/orrery/internal/widget"
)

// ErrNotFound is returned by [Registry.Resolve] when a widget identifier is
// absent from the active generation. Callers check it with [errors.Is]; a
// miss is a configuration error to surface, not a condition to default away.
var ErrNotFound = errors.New("widget not found in registry")

// ErrEmpty is returned by [Registry.Resolve] when no generation has been
// published yet.
var ErrEmpty = errors.New("registry has no published generation")

// Registry is the read-mostly widget → artifact mapping. The zero value is
// usable and empty; create instances with [New] for symmetry with the rest
// of the codebase.
type Registry struct {
	active atomic.Pointer[widget.Generation]
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

// Publish atomically replaces the active generation. gen must be complete
// and must not be mutated by the caller afterwards.
func (r *Registry) Publish(gen *widget.Generation) {
	r.active.Store(gen)
}

// Current returns the active generation snapshot, or nil when nothing has
// been published.
func (r *Registry) Current() *widget.Generation {
	return r.active.Load()
}

// Resolve returns the registry entry for the given widget id from the active
// generation.
func (r *Registry) Resolve(widgetID string) (widget.Entry, error) {
	gen := r.active.Load()
	if gen == nil {
		return widget.Entry{}, fmt.Errorf("registry: resolve %q: %w", widgetID, ErrEmpty)
	}
	entry, ok := gen.Lookup(widgetID)
	if !ok {
		return widget.Entry{}, fmt.Errorf("registry: resolve %q: %w", widgetID, ErrNotFound)
	}
	return entry, nil
}

// Widgets returns a copy of the active generation's entries, sorted by
// widget id. Returns nil when nothing has been published.
func (r *Registry) Widgets() []widget.Entry {
	gen := r.active.Load()
	if gen == nil {
		return nil
	}
	out := make([]widget.Entry, len(gen.Widgets))
	copy(out, gen.Widgets)
	return out
}
