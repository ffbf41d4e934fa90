package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrInvalidWinner is returned when a reported winner did not play the match
var ErrInvalidWinner = errors.New("winner is not a participant")

// Match is a pairing of two identities in the matchmaking ladder
type Match struct {
	ID        string          `json:"match_id"`
	Player1   string          `json:"player1"`
	Player2   string          `json:"player2"`
	Winner    *string         `json:"winner,omitempty"`
	Score     [2]int          `json:"score"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Replay    json.RawMessage `json:"replay,omitempty"`
}

// NewMatch creates an active match
func NewMatch(id, player1, player2 string) *Match {
	return &Match{
		ID:        id,
		Player1:   player1,
		Player2:   player2,
		StartedAt: time.Now().UTC(),
	}
}

// Completed reports whether an outcome has been stamped
func (m *Match) Completed() bool {
	return m.EndedAt != nil
}

// HasPlayer reports whether identity played in the match
func (m *Match) HasPlayer(identity string) bool {
	return identity == m.Player1 || identity == m.Player2
}

// Opponent returns the other participant
func (m *Match) Opponent(identity string) string {
	if identity == m.Player1 {
		return m.Player2
	}
	return m.Player1
}

// Complete stamps the outcome. The winner must be one of the two players.
func (m *Match) Complete(winner string, score [2]int, replay json.RawMessage, at time.Time) error {
	if !m.HasPlayer(winner) {
		return ErrInvalidWinner
	}
	m.Winner = &winner
	m.Score = score
	m.Replay = replay
	ended := at.UTC()
	m.EndedAt = &ended
	return nil
}

// Replay is the persisted record of a completed match
type Replay struct {
	MatchID   string          `json:"match_id"`
	Player1   string          `json:"player1"`
	Player2   string          `json:"player2"`
	Winner    string          `json:"winner"`
	Score     [2]int          `json:"score"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at"`
	Payload   json.RawMessage `json:"replay,omitempty"`
}

// ReplayOf builds the replay record for a completed match
func ReplayOf(m *Match) Replay {
	r := Replay{
		MatchID:   m.ID,
		Player1:   m.Player1,
		Player2:   m.Player2,
		Score:     m.Score,
		StartedAt: m.StartedAt,
		Payload:   m.Replay,
	}
	if m.Winner != nil {
		r.Winner = *m.Winner
	}
	if m.EndedAt != nil {
		r.EndedAt = *m.EndedAt
	}
	return r
}

// LeaderboardEntry is one identity's ladder standing
type LeaderboardEntry struct {
	Identity string `json:"player"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
	Rating   int    `json:"rating"`
}

// HistoryEntry is one match from a player's point of view
type HistoryEntry struct {
	MatchID  string    `json:"match_id"`
	Opponent string    `json:"opponent"`
	Won      bool      `json:"won"`
	Score    [2]int    `json:"score"`
	EndedAt  time.Time `json:"ended_at"`
}
