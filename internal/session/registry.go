package session

import (
	"sync"

	"github.com/ernie/swarm-arena/internal/engine"
)

// Registry maps player identities to their live session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Player
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Player)}
}

// Create binds identity to entity in arena. An existing session for the same
// identity is replaced.
func (r *Registry) Create(arena Arena, identity string, entity engine.Entity) *Player {
	p := newPlayer(arena, identity, entity)
	r.mu.Lock()
	r.sessions[identity] = p
	r.mu.Unlock()
	return p
}

// Get returns the session for identity.
func (r *Registry) Get(identity string) (*Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.sessions[identity]
	return p, ok
}

// Remove drops the session for identity. Removing an absent identity is a no-op.
func (r *Registry) Remove(identity string) {
	r.mu.Lock()
	delete(r.sessions, identity)
	r.mu.Unlock()
}

// Release removes p only if it is still the current session for its identity,
// so a stale connection cannot tear down the session that replaced it.
func (r *Registry) Release(p *Player) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[p.identity]; ok && cur == p {
		delete(r.sessions, p.identity)
		return true
	}
	return false
}

// ForArena lists sessions bound to the given arena.
func (r *Registry) ForArena(arenaID string) []*Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Player
	for _, p := range r.sessions {
		if p.arena.ID() == arenaID {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
