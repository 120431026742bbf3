// Package provider tracks connected UI providers and arbitrates which one
// is authorised to act on sessions at any moment.
package provider

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Default priorities applied when ui.register omits one, keyed by kind.
const (
	PriorityQuickshell = 100
	PriorityCustom     = 50
	PriorityFallback   = 10
	PriorityDefault    = 50
)

// DefaultPriority returns the default priority for a provider kind.
func DefaultPriority(kind string) int {
	switch kind {
	case "quickshell":
		return PriorityQuickshell
	case "custom":
		return PriorityCustom
	case "fallback":
		return PriorityFallback
	default:
		return PriorityDefault
	}
}

// Provider is a connected UI.
type Provider struct {
	ID            string
	Name          string
	Kind          string
	Priority      int
	ConnID        string
	RegisteredAt  time.Time
	LastHeartbeat time.Time
	Subscribed    bool
	Active        bool
}

// HeartbeatInterval and HeartbeatTimeout bound provider liveness (§4.3):
// providers must heartbeat at <=5s cadence; a provider silent for 15s is
// evicted and re-election runs.
const (
	HeartbeatInterval = 5 * time.Second
	HeartbeatTimeout  = 15 * time.Second
)

// Registry tracks connected providers and the currently active one.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*Provider
	activeID  string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]*Provider)}
}

// Register adds a new provider and recomputes the active election,
// returning the provider, whether it is now active, and the set of
// activation transitions so the caller can notify whichever provider lost
// active status too.
func (r *Registry) Register(connID, name, kind string, priority int) (*Provider, bool, TransitionSet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		name = "unknown"
	}
	if kind == "" {
		kind = "unknown"
	}

	p := &Provider{
		ID:            uuid.New().String(),
		Name:          name,
		Kind:          kind,
		Priority:      priority,
		ConnID:        connID,
		RegisteredAt:  time.Now(),
		LastHeartbeat: time.Now(),
	}
	r.providers[p.ID] = p
	t := r.recomputeActive()
	return p, p.Active, t
}

// Heartbeat refreshes a provider's liveness timestamp. Returns false if
// the id is unknown.
func (r *Registry) Heartbeat(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[id]
	if !ok {
		return false
	}
	p.LastHeartbeat = time.Now()
	return true
}

// Subscribe marks a connection as joined to the event fan-out. Returns
// whether the active provider (if any) matches this connection, for
// constructing the `subscribed` reply.
func (r *Registry) Subscribe(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.providers {
		if p.ConnID == connID {
			p.Subscribed = true
			return p.Active
		}
	}
	return false
}

// Unregister removes a provider (on disconnect) and recomputes election.
// ok reports whether a provider with this connection existed.
func (r *Registry) Unregister(connID string) (t TransitionSet, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, p := range r.providers {
		if p.ConnID == connID {
			delete(r.providers, id)
			return r.recomputeActive(), true
		}
	}
	return TransitionSet{}, false
}

// EvictStale removes providers whose heartbeat has lapsed beyond
// HeartbeatTimeout, recomputing election if any were evicted. Returns the
// connection ids of evicted providers and the resulting transitions; an
// evicted active provider is reported as DeactivatedConnID.
func (r *Registry) EvictStale(now time.Time) ([]string, TransitionSet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []string
	var evictedActiveConnID string
	for id, p := range r.providers {
		if now.Sub(p.LastHeartbeat) > HeartbeatTimeout {
			evicted = append(evicted, p.ConnID)
			if id == r.activeID {
				evictedActiveConnID = p.ConnID
			}
			delete(r.providers, id)
		}
	}
	if len(evicted) == 0 {
		return nil, TransitionSet{}
	}
	t := r.recomputeActive()
	if t.DeactivatedConnID == "" {
		t.DeactivatedConnID = evictedActiveConnID
	}
	return evicted, t
}

// IsAuthorized reports whether connID may send session.respond/cancel: it
// must be the active provider, or (bootstrap mode) the table must be
// empty entirely, per §4.3's authorisation boundary.
func (r *Registry) IsAuthorized(connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.providers) == 0 {
		return true
	}
	for _, p := range r.providers {
		if p.ConnID == connID {
			return p.Active
		}
	}
	return false
}

// HasActiveProvider reports whether any provider is currently active.
func (r *Registry) HasActiveProvider() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeID != ""
}

// Get returns a provider snapshot by id.
func (r *Registry) Get(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return Provider{}, false
	}
	return *p, true
}

// List returns a sorted snapshot of all providers (priority desc, then
// registration order), matching the election ordering.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, *p)
	}
	sortByElectionOrder(out)
	return out
}

// recomputeActive is called on every registration, unregistration, or
// priority change (§4.3). Must be called with mu held.
func (r *Registry) recomputeActive() TransitionSet {
	var ordered []*Provider
	for _, p := range r.providers {
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].RegisteredAt.Before(ordered[j].RegisteredAt)
	})

	var newActiveID string
	if len(ordered) > 0 {
		newActiveID = ordered[0].ID
	}

	transitions := TransitionSet{}
	if newActiveID != r.activeID {
		if old, ok := r.providers[r.activeID]; ok {
			old.Active = false
			transitions.DeactivatedConnID = old.ConnID
		}
		if newActiveID != "" {
			newActive := r.providers[newActiveID]
			newActive.Active = true
			transitions.ActivatedConnID = newActive.ConnID
			transitions.ActivatedID = newActive.ID
		}
		r.activeID = newActiveID
	}
	return transitions
}

// TransitionSet reports which provider connections changed active status
// as a result of an election recompute, so the caller can fan out
// ui.active events without re-deriving the diff itself.
type TransitionSet struct {
	ActivatedConnID   string
	ActivatedID       string
	DeactivatedConnID string
}

// Changed reports whether this recompute actually flipped anything.
func (t TransitionSet) Changed() bool {
	return t.ActivatedConnID != "" || t.DeactivatedConnID != ""
}

func sortByElectionOrder(providers []Provider) {
	sort.Slice(providers, func(i, j int) bool {
		if providers[i].Priority != providers[j].Priority {
			return providers[i].Priority > providers[j].Priority
		}
		return providers[i].RegisteredAt.Before(providers[j].RegisteredAt)
	})
}
