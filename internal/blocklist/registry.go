// Package blocklist tracks counterparts already contacted this run, one set
// per (profile, kind). State is process-memory only and lost on restart.
package blocklist

import (
	"sync"

	"github.com/aohanesian/alpha-date-automation-depl-sub000/pkg/models"
)

type key struct {
	ProfileID string
	Kind      models.MessageKind
}

// Registry is a concurrency-safe block-list store.
type Registry struct {
	mu   sync.RWMutex
	sets map[key]map[string]struct{}
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		sets: make(map[key]map[string]struct{}),
	}
}

// Add records a counterpart as contacted for (profileID, kind).
func (r *Registry) Add(profileID string, kind models.MessageKind, counterpartID string) {
	k := key{ProfileID: profileID, Kind: kind}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sets[k]
	if !ok {
		set = make(map[string]struct{})
		r.sets[k] = set
	}
	set[counterpartID] = struct{}{}
}

// Contains reports whether a counterpart was already contacted.
func (r *Registry) Contains(profileID string, kind models.MessageKind, counterpartID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.sets[key{ProfileID: profileID, Kind: kind}]
	if !ok {
		return false
	}
	_, found := set[counterpartID]
	return found
}

// Clear drops the block-list for (profileID, kind) and returns how many
// entries were removed.
func (r *Registry) Clear(profileID string, kind models.MessageKind) int {
	k := key{ProfileID: profileID, Kind: kind}

	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.sets[k])
	delete(r.sets, k)
	return n
}

// Len returns the number of blocked counterparts for (profileID, kind).
func (r *Registry) Len(profileID string, kind models.MessageKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sets[key{ProfileID: profileID, Kind: kind}])
}

// Snapshot returns per-profile block counts for one kind, for control-plane
// introspection.
func (r *Registry) Snapshot(kind models.MessageKind) map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int)
	for k, set := range r.sets {
		if k.Kind == kind && len(set) > 0 {
			out[k.ProfileID] = len(set)
		}
	}
	return out
}
