package scraper

import (
	"sort"
	"strings"
	"sync"

	pkgerr "paisapro/cartworker/pkg/errors"
)

// Constructor builds a Source. Extra parameters carry per-source
// construction values such as a delivery locality.
type Constructor func(extra map[string]string) Source

// Registry maps source keys to constructors. New sources plug in purely by
// registration.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds a source constructor under a key. Keys are case-insensitive.
func (r *Registry) Register(key string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[strings.ToLower(key)] = ctor
}

// Create instantiates the source registered under key.
func (r *Registry) Create(key string, extra map[string]string) (Source, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[strings.ToLower(key)]
	r.mu.RUnlock()
	if !ok {
		return nil, pkgerr.NewValidation("unknown source: " + key)
	}
	return ctor(extra), nil
}

// Sources returns all registered keys in sorted order.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.constructors))
	for key := range r.constructors {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
