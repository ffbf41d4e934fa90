package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ernie/swarm-arena/internal/bracket"
)

type createTournamentRequest struct {
	Players []string `json:"players"`
}

type advanceTournamentRequest struct {
	MatchID string          `json:"match_id"`
	Winner  string          `json:"winner"`
	Score   [2]int          `json:"score"`
	Replay  json.RawMessage `json:"replay,omitempty"`
}

func (r *Router) handleCreateTournament(w http.ResponseWriter, req *http.Request) {
	var body createTournamentRequest
	if err := decodeBody(w, req, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !validatePlayers(body.Players) {
		writeError(w, http.StatusBadRequest, "players must be unique and non-empty")
		return
	}

	t, err := r.Tournaments.Create(req.Context(), body.Players)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, t.View())
}

func (r *Router) handleGetTournament(w http.ResponseWriter, req *http.Request) {
	t, ok := r.Tournaments.Get(chi.URLParam(req, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "tournament not found")
		return
	}
	writeJSON(w, http.StatusOK, t.View())
}

// handleAdvanceTournament reports a tournament match result. It goes through
// match completion so the leaderboard counts tournament matches too.
func (r *Router) handleAdvanceTournament(w http.ResponseWriter, req *http.Request) {
	var body advanceTournamentRequest
	if err := decodeBody(w, req, &body); err != nil || body.MatchID == "" || body.Winner == "" {
		writeError(w, http.StatusBadRequest, "match_id and winner are required")
		return
	}

	t, ok := r.Tournaments.Get(chi.URLParam(req, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, bracket.ErrTournamentNotFound.Error())
		return
	}
	if _, ok := t.Match(body.MatchID); !ok {
		writeError(w, http.StatusNotFound, bracket.ErrMatchNotFound.Error())
		return
	}

	err := r.Matchmaking.Complete(req.Context(), body.MatchID, body.Winner, body.Score, body.Replay)
	switch {
	case errors.Is(err, bracket.ErrInvalidWinner):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, t.View())
	}
}
