package hub

import "sync"

// Registry tracks the live, registered sessions of each organization
// in insertion order. It is the hub's only shared mutable structure;
// everything it hands out is a copy.
type Registry struct {
	mu       sync.Mutex
	sessions map[int64][]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: map[int64][]*Session{}}
}

// Add appends s to its org's session list.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.OrgID] = append(r.sessions[s.OrgID], s)
}

// Remove deletes s from its org's list and reports whether it was
// present. Removing an absent session is a no-op.
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.sessions[s.OrgID]
	for i, other := range list {
		if other == s {
			r.sessions[s.OrgID] = append(list[:i:i], list[i+1:]...)
			if len(r.sessions[s.OrgID]) == 0 {
				delete(r.sessions, s.OrgID)
			}
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the org's session list, safe to iterate
// without holding the registry lock.
func (r *Registry) Snapshot(orgID int64) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.sessions[orgID]
	out := make([]*Session, len(list))
	copy(out, list)
	return out
}

// SnapshotAll returns a copy of every live session across orgs.
func (r *Registry) SnapshotAll() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Session
	for _, list := range r.sessions {
		out = append(out, list...)
	}
	return out
}

// Count returns the number of live sessions in the org.
func (r *Registry) Count(orgID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[orgID])
}
