// Package registry holds the in-memory set of sponsor keys.
package registry

import (
	"sort"
	"sync/atomic"
)

// Lookup is the read side of the registry used by matchers.
type Lookup interface {
	Contains(key string) bool
}

type keySet map[string]struct{}

// Registry is a set of canonical sponsor keys. Replace swaps the whole set
// atomically; readers never observe a partially built set.
type Registry struct {
	keys   atomic.Pointer[keySet]
	loaded atomic.Bool
}

func New() *Registry {
	r := &Registry{}
	empty := keySet{}
	r.keys.Store(&empty)
	return r
}

// FromKeys returns a loaded registry holding keys.
func FromKeys(keys []string) *Registry {
	r := New()
	r.Replace(keys)
	return r
}

// Contains reports whether key is a known sponsor. The empty key is never a sponsor.
func (r *Registry) Contains(key string) bool {
	if r == nil || key == "" {
		return false
	}
	set := *r.keys.Load()
	_, ok := set[key]
	return ok
}

// Replace installs keys as the new set and marks the registry loaded.
func (r *Registry) Replace(keys []string) {
	set := make(keySet, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		set[k] = struct{}{}
	}
	r.keys.Store(&set)
	r.loaded.Store(true)
}

// Loaded reports whether Replace has been called at least once.
func (r *Registry) Loaded() bool {
	return r != nil && r.loaded.Load()
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(*r.keys.Load())
}

func (r *Registry) Keys() []string {
	if r == nil {
		return nil
	}
	set := *r.keys.Load()
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
