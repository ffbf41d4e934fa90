// Package bracket runs single-elimination tournaments.
//
// Round 0 pairs entrants in list order. When every match of the latest round
// has a winner, the winners are paired in order to form the next round. An
// odd entrant at the end of a round has no opponent and is dropped; there are
// no byes.
package bracket

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ernie/swarm-arena/internal/domain"
)

var (
	ErrNotEnoughPlayers = errors.New("a tournament needs at least two players")
	ErrMatchNotFound    = errors.New("tournament match not found")
	ErrInvalidWinner    = domain.ErrInvalidWinner
)

// Tournament is a single-elimination bracket. Every round is a list of
// ordinary matches.
type Tournament struct {
	mu        sync.Mutex
	id        string
	players   []string
	rounds    [][]*domain.Match
	winner    string
	dropped   []string
	createdAt time.Time
}

// New builds round 0 from players.
func New(id string, players []string) (*Tournament, error) {
	if len(players) < 2 {
		return nil, ErrNotEnoughPlayers
	}
	t := &Tournament{
		id:        id,
		players:   append([]string(nil), players...),
		createdAt: time.Now().UTC(),
	}
	t.addRound(t.players)
	return t, nil
}

func (t *Tournament) addRound(entrants []string) {
	round := len(t.rounds)
	matches := make([]*domain.Match, 0, len(entrants)/2)
	for i := 0; i+1 < len(entrants); i += 2 {
		id := fmt.Sprintf("%s-r%d-m%d", t.id, round, i/2)
		matches = append(matches, domain.NewMatch(id, entrants[i], entrants[i+1]))
	}
	if len(entrants)%2 == 1 {
		t.dropped = append(t.dropped, entrants[len(entrants)-1])
	}
	t.rounds = append(t.rounds, matches)
}

func (t *Tournament) ID() string { return t.id }

// Winner returns the champion once the bracket is decided.
func (t *Tournament) Winner() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.winner, t.winner != ""
}

// Match returns a copy of the match with id.
func (t *Tournament) Match(matchID string) (domain.Match, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, _ := t.find(matchID)
	if m == nil {
		return domain.Match{}, false
	}
	return *m, true
}

// Advance records winner for matchID with no score or replay. See Settle.
func (t *Tournament) Advance(matchID, winner string) (int, error) {
	_, rounds, err := t.Settle(matchID, winner, [2]int{}, nil, time.Now())
	return rounds, err
}

// Settle stamps the result of matchID and opens the next round when the
// latest round is fully decided. It returns a copy of the settled match, or
// nil when nothing changed: the match was already decided or the tournament
// already has a champion. The int result is the number of rounds after the
// call.
func (t *Tournament) Settle(matchID, winner string, score [2]int, replay json.RawMessage, at time.Time) (*domain.Match, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.winner != "" {
		return nil, len(t.rounds), nil
	}

	m, roundIdx := t.find(matchID)
	if m == nil {
		return nil, len(t.rounds), ErrMatchNotFound
	}
	if !m.HasPlayer(winner) {
		return nil, len(t.rounds), ErrInvalidWinner
	}
	if m.Completed() {
		return nil, len(t.rounds), nil
	}
	if err := m.Complete(winner, score, replay, at); err != nil {
		return nil, len(t.rounds), err
	}
	settled := *m

	if roundIdx != len(t.rounds)-1 {
		return &settled, len(t.rounds), nil
	}
	var winners []string
	for _, rm := range t.rounds[roundIdx] {
		if !rm.Completed() {
			return &settled, len(t.rounds), nil
		}
		winners = append(winners, *rm.Winner)
	}
	if len(winners) == 1 {
		t.winner = winners[0]
		return &settled, len(t.rounds), nil
	}
	t.addRound(winners)
	return &settled, len(t.rounds), nil
}

func (t *Tournament) find(matchID string) (*domain.Match, int) {
	for r, round := range t.rounds {
		for _, m := range round {
			if m.ID == matchID {
				return m, r
			}
		}
	}
	return nil, -1
}

// View is the serialisable state of a tournament.
type View struct {
	ID        string           `json:"tournament_id"`
	Players   []string         `json:"players"`
	Rounds    [][]domain.Match `json:"rounds"`
	Winner    string           `json:"winner,omitempty"`
	Dropped   []string         `json:"dropped,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// View copies the current state.
func (t *Tournament) View() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := View{
		ID:        t.id,
		Players:   append([]string(nil), t.players...),
		Rounds:    make([][]domain.Match, len(t.rounds)),
		Winner:    t.winner,
		Dropped:   append([]string(nil), t.dropped...),
		CreatedAt: t.createdAt,
	}
	for i, round := range t.rounds {
		v.Rounds[i] = make([]domain.Match, len(round))
		for j, m := range round {
			v.Rounds[i][j] = *m
		}
	}
	return v
}
