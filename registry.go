package kiket

import (
	"context"
	"sort"
)

// HandlerFunc processes one verified webhook delivery. The returned value is
// serialized as the JSON response body; a nil result becomes {"ok": true}.
type HandlerFunc func(ctx context.Context, inv *Invocation) (any, error)

// Registration binds a handler and its required scopes to one
// (event, version) pair. Immutable once serving begins.
type Registration struct {
	Event          string
	Version        string
	Handler        HandlerFunc
	RequiredScopes []string
}

// Registry is the dispatch table: (event, version) -> Registration.
// Populated during startup registration and treated as read-only while
// serving. Version strings are opaque labels, never compared numerically.
type Registry struct {
	entries map[string]*Registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Registration)}
}

func registryKey(event, version string) string {
	return event + ":" + version
}

// Register stores a handler for (event, version). Registering the same pair
// again replaces the prior handler; the last registration wins.
func (r *Registry) Register(event, version string, handler HandlerFunc, requiredScopes ...string) {
	r.entries[registryKey(event, version)] = &Registration{
		Event:          event,
		Version:        version,
		Handler:        handler,
		RequiredScopes: append([]string(nil), requiredScopes...),
	}
}

// Lookup returns the registration for (event, version), if any.
func (r *Registry) Lookup(event, version string) (*Registration, bool) {
	reg, ok := r.entries[registryKey(event, version)]
	return reg, ok
}

// EventNames returns the distinct event names across all versions, sorted.
func (r *Registry) EventNames() []string {
	seen := make(map[string]struct{})
	for _, reg := range r.entries {
		seen[reg.Event] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
