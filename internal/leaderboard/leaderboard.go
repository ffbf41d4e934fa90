// Package leaderboard keeps the in-memory ladder ratings.
package leaderboard

import (
	"sort"
	"sync"

	"github.com/ernie/swarm-arena/internal/domain"
)

const (
	InitialRating = 1000
	WinDelta      = 25
	LossDelta     = 15
)

// Board is a concurrency-safe rating table. Ratings are unbounded.
type Board struct {
	mu      sync.RWMutex
	entries map[string]*domain.LeaderboardEntry
	order   []string // first-seen order, used to break rating ties
}

// New creates an empty board.
func New() *Board {
	return &Board{entries: make(map[string]*domain.LeaderboardEntry)}
}

func (b *Board) entry(identity string) *domain.LeaderboardEntry {
	e, ok := b.entries[identity]
	if !ok {
		e = &domain.LeaderboardEntry{Identity: identity, Rating: InitialRating}
		b.entries[identity] = e
		b.order = append(b.order, identity)
	}
	return e
}

// Record applies one result and returns the updated entries.
func (b *Board) Record(winner, loser string) (domain.LeaderboardEntry, domain.LeaderboardEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.entry(winner)
	l := b.entry(loser)
	w.Wins++
	w.Rating += WinDelta
	l.Losses++
	l.Rating -= LossDelta
	return *w, *l
}

// Entry returns the standing for identity.
func (b *Board) Entry(identity string) (domain.LeaderboardEntry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[identity]
	if !ok {
		return domain.LeaderboardEntry{}, false
	}
	return *e, true
}

// Top returns up to n entries by rating, highest first. Equal ratings keep
// the order in which identities were first seen. n <= 0 returns everyone.
func (b *Board) Top(n int) []domain.LeaderboardEntry {
	b.mu.RLock()
	out := make([]domain.LeaderboardEntry, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.entries[id])
	}
	b.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Rating > out[j].Rating })
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// Load replaces the board with entries, preserving their order for ties.
func (b *Board) Load(entries []domain.LeaderboardEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[string]*domain.LeaderboardEntry, len(entries))
	b.order = b.order[:0]
	for _, e := range entries {
		if _, dup := b.entries[e.Identity]; dup {
			continue
		}
		e := e
		b.entries[e.Identity] = &e
		b.order = append(b.order, e.Identity)
	}
}

// Len returns the number of ranked identities.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
