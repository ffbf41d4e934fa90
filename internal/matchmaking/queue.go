// Package matchmaking pairs waiting identities into matches and settles their
// outcomes against the leaderboard.
package matchmaking

import (
	"slices"
	"sync"

	"github.com/ernie/swarm-arena/internal/domain"
)

// Queue is a FIFO of identities waiting for an opponent.
type Queue struct {
	mu      sync.Mutex
	waiting []string
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends identity unless it is already waiting and returns its
// 1-based position.
func (q *Queue) Enqueue(identity string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i := slices.Index(q.waiting, identity); i >= 0 {
		return i + 1
	}
	q.waiting = append(q.waiting, identity)
	return len(q.waiting)
}

// Pair pops the two longest-waiting identities into a new match.
func (q *Queue) Pair(newID func() string) (*domain.Match, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.waiting) < 2 {
		return nil, false
	}
	p1, p2 := q.waiting[0], q.waiting[1]
	q.waiting = slices.Delete(q.waiting, 0, 2)
	return domain.NewMatch(newID(), p1, p2), true
}

// Position returns identity's 1-based position, or 0 if it is not waiting.
func (q *Queue) Position(identity string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Index(q.waiting, identity) + 1
}

// Remove takes identity out of the queue.
func (q *Queue) Remove(identity string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := slices.Index(q.waiting, identity)
	if i < 0 {
		return false
	}
	q.waiting = slices.Delete(q.waiting, i, i+1)
	return true
}

// Len returns the number of waiting identities.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}
