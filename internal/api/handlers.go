package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ernie/swarm-arena/internal/arena"
	"github.com/ernie/swarm-arena/internal/matchmaking"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// BattleSummary is the listing view of a battle
type BattleSummary struct {
	BattleID  string       `json:"battle_id"`
	Status    arena.Status `json:"status"`
	Tick      uint64       `json:"tick"`
	Observers int          `json:"observers"`
	CreatedAt time.Time    `json:"created_at"`
}

// handleListBattles returns every known battle
func (r *Router) handleListBattles(w http.ResponseWriter, req *http.Request) {
	sessions := r.Arenas.List()
	out := make([]BattleSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, BattleSummary{
			BattleID:  s.ID(),
			Status:    s.Status(),
			Tick:      s.Tick(),
			Observers: s.ObserverCount(),
			CreatedAt: s.CreatedAt(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateBattle starts a new battle
func (r *Router) handleCreateBattle(w http.ResponseWriter, req *http.Request) {
	s := r.Arenas.Create(req.Context())
	writeJSON(w, http.StatusCreated, map[string]string{
		"battle_id": s.ID(),
		"status":    "created",
	})
}

func (r *Router) battle(w http.ResponseWriter, req *http.Request) (*arena.Session, bool) {
	s, ok := r.Arenas.Get(chi.URLParam(req, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "battle not found")
		return nil, false
	}
	return s, true
}

// handleBattleState returns the latest snapshot of a battle
func (r *Router) handleBattleState(w http.ResponseWriter, req *http.Request) {
	s, ok := r.battle(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.State())
}

// handleBattleReplay returns the replay payload of a battle
func (r *Router) handleBattleReplay(w http.ResponseWriter, req *http.Request) {
	s, ok := r.battle(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Replay())
}

// handlePauseBattle toggles pause on a battle
func (r *Router) handlePauseBattle(w http.ResponseWriter, req *http.Request) {
	paused, err := r.Arenas.TogglePause(req.Context(), chi.URLParam(req, "id"))
	if errors.Is(err, arena.ErrBattleNotFound) {
		writeError(w, http.StatusNotFound, "battle not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": paused})
}

// handleDiscardBattle stops a battle and forgets it
func (r *Router) handleDiscardBattle(w http.ResponseWriter, req *http.Request) {
	if err := r.Arenas.Discard(chi.URLParam(req, "id")); err != nil {
		writeError(w, http.StatusNotFound, "battle not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleJoinQueue puts the caller in the matchmaking queue
func (r *Router) handleJoinQueue(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.Matchmaking.Join(req.Context(), identity(req)))
}

// handleActiveMatches lists matches awaiting a result
func (r *Router) handleActiveMatches(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.Matchmaking.ActiveMatches())
}

// CompleteMatchRequest reports a match outcome
type CompleteMatchRequest struct {
	Winner string          `json:"winner"`
	Score  [2]int          `json:"score"`
	Replay json.RawMessage `json:"replay,omitempty"`
}

// handleCompleteMatch settles a match. Unknown ids are accepted silently.
func (r *Router) handleCompleteMatch(w http.ResponseWriter, req *http.Request) {
	var body CompleteMatchRequest
	if err := decodeBody(w, req, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Winner == "" {
		writeError(w, http.StatusBadRequest, "winner is required")
		return
	}

	err := r.Matchmaking.Complete(req.Context(), chi.URLParam(req, "id"), body.Winner, body.Score, body.Replay)
	if errors.Is(err, matchmaking.ErrInvalidWinner) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMatchReplay returns the replay of a completed match
func (r *Router) handleMatchReplay(w http.ResponseWriter, req *http.Request) {
	replay, err := r.Matchmaking.Replay(req.Context(), chi.URLParam(req, "id"))
	if errors.Is(err, matchmaking.ErrReplayNotFound) {
		writeError(w, http.StatusNotFound, "replay not found")
		return
	}
	if err != nil {
		r.Logger.Error("loading replay", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load replay")
		return
	}
	writeJSON(w, http.StatusOK, replay)
}

// handleLeaderboard returns the top rated players
func (r *Router) handleLeaderboard(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.Leaderboard.Top(parseLimit(req, 10, 100)))
}

// handlePlayerHistory returns a player's completed matches
func (r *Router) handlePlayerHistory(w http.ResponseWriter, req *http.Request) {
	history, err := r.Matchmaking.History(req.Context(), chi.URLParam(req, "id"), parseLimit(req, 20, 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// handleHealth returns a simple health check response
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
