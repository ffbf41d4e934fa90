package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ernie/swarm-arena/internal/domain"
	"github.com/ernie/swarm-arena/internal/marketplace"
)

type uploadStrategyRequest struct {
	Name   string          `json:"name"`
	Config json.RawMessage `json:"config"`
}

type rateStrategyRequest struct {
	Rating int `json:"rating"`
}

func (r *Router) handleUploadStrategy(w http.ResponseWriter, req *http.Request) {
	var body uploadStrategyRequest
	if err := decodeBody(w, req, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := r.Strategies.Upload(identity(req), body.Name, body.Config)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	event := domain.NewEvent(domain.EventStrategyUploaded, domain.StrategyEvent{StrategyID: s.ID, Author: s.Author})
	if err := r.Publisher.Publish(req.Context(), event); err != nil {
		r.Logger.Warn("publishing event failed", zap.String("event", event.Type), zap.Error(err))
	}
	writeJSON(w, http.StatusCreated, s.Summary())
}

func (r *Router) handleTopStrategies(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.Strategies.Top(parseLimit(req, 10, 100)))
}

// handleDownloadStrategy returns a strategy config and counts the download
func (r *Router) handleDownloadStrategy(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	cfg, err := r.Strategies.Download(id)
	if errors.Is(err, marketplace.ErrStrategyNotFound) {
		writeError(w, http.StatusNotFound, "strategy not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     id,
		"config": cfg,
	})
}

func (r *Router) handleRateStrategy(w http.ResponseWriter, req *http.Request) {
	var body rateStrategyRequest
	if err := decodeBody(w, req, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	summary, err := r.Strategies.Rate(chi.URLParam(req, "id"), body.Rating)
	switch {
	case errors.Is(err, marketplace.ErrStrategyNotFound):
		writeError(w, http.StatusNotFound, "strategy not found")
	case errors.Is(err, marketplace.ErrInvalidRating):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, summary)
	}
}
