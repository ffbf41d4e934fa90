package domain

import "time"

// Event types published on the event bus
const (
	EventBattleCreated      = "battle.created"
	EventBattlePaused       = "battle.paused"
	EventBattleResumed      = "battle.resumed"
	EventBattleConcluded    = "battle.concluded"
	EventMatchCreated       = "match.created"
	EventMatchCompleted     = "match.completed"
	EventTournamentCreated  = "tournament.created"
	EventTournamentRound    = "tournament.round"
	EventTournamentFinished = "tournament.finished"
	EventStrategyUploaded   = "strategy.uploaded"
)

// Event is a lifecycle notification for external consumers
type Event struct {
	Type      string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// NewEvent stamps an event with the current time
func NewEvent(eventType string, data interface{}) Event {
	return Event{Type: eventType, Timestamp: time.Now().UTC(), Data: data}
}

// BattleEvent is sent when a battle changes state
type BattleEvent struct {
	BattleID string `json:"battle_id"`
	Tick     uint64 `json:"tick"`
	Winner   string `json:"winner,omitempty"`
}

// MatchEvent is sent when a match is paired or completed
type MatchEvent struct {
	MatchID string `json:"match_id"`
	Player1 string `json:"player1"`
	Player2 string `json:"player2"`
	Winner  string `json:"winner,omitempty"`
	Score   [2]int `json:"score"`
}

// TournamentEvent is sent when a bracket advances
type TournamentEvent struct {
	TournamentID string `json:"tournament_id"`
	Round        int    `json:"round"`
	Winner       string `json:"winner,omitempty"`
}

// StrategyEvent is sent when a strategy is published to the marketplace
type StrategyEvent struct {
	StrategyID string `json:"strategy_id"`
	Author     string `json:"author"`
}
