// Package marketplace stores community strategy configurations and ranks them
// by rating and popularity.
package marketplace

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ernie/swarm-arena/internal/domain"
)

const (
	MinRating = 1
	MaxRating = 5
)

var (
	ErrStrategyNotFound = errors.New("strategy not found")
	ErrInvalidRating    = errors.New("rating must be between 1 and 5")
	ErrInvalidStrategy  = errors.New("strategy needs a name and a JSON config")
)

// StrategyID derives the marketplace id for a strategy.
func StrategyID(author, name string) string {
	return author + "_" + name
}

// Marketplace is a concurrency-safe strategy catalogue.
type Marketplace struct {
	mu         sync.RWMutex
	strategies map[string]*domain.Strategy
	order      []string
}

// New creates an empty marketplace.
func New() *Marketplace {
	return &Marketplace{strategies: make(map[string]*domain.Strategy)}
}

// Upload publishes a strategy. Uploading the same author and name again
// replaces the config and resets downloads and ratings.
func (m *Marketplace) Upload(author, name string, config json.RawMessage) (domain.Strategy, error) {
	name = strings.TrimSpace(name)
	if name == "" || author == "" || !json.Valid(config) {
		return domain.Strategy{}, ErrInvalidStrategy
	}
	s := &domain.Strategy{
		ID:        StrategyID(author, name),
		Name:      name,
		Author:    author,
		Config:    append(json.RawMessage(nil), config...),
		Ratings:   []int{},
		CreatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.strategies[s.ID]; !exists {
		m.order = append(m.order, s.ID)
	}
	m.strategies[s.ID] = s
	return copyStrategy(s), nil
}

// Download returns the config for id and counts the download.
func (m *Marketplace) Download(id string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.strategies[id]
	if !ok {
		return nil, ErrStrategyNotFound
	}
	s.Downloads++
	return append(json.RawMessage(nil), s.Config...), nil
}

// Get returns a strategy without counting a download.
func (m *Marketplace) Get(id string) (domain.Strategy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.strategies[id]
	if !ok {
		return domain.Strategy{}, ErrStrategyNotFound
	}
	return copyStrategy(s), nil
}

// Rate adds a 1..5 rating to id.
func (m *Marketplace) Rate(id string, rating int) (domain.StrategySummary, error) {
	if rating < MinRating || rating > MaxRating {
		return domain.StrategySummary{}, ErrInvalidRating
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.strategies[id]
	if !ok {
		return domain.StrategySummary{}, ErrStrategyNotFound
	}
	s.Ratings = append(s.Ratings, rating)
	return s.Summary(), nil
}

// Top ranks strategies by average rating, then downloads, both descending.
// Full ties keep upload order.
func (m *Marketplace) Top(limit int) []domain.StrategySummary {
	m.mu.RLock()
	out := make([]domain.StrategySummary, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.strategies[id].Summary())
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].Downloads > out[j].Downloads
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

func copyStrategy(s *domain.Strategy) domain.Strategy {
	cp := *s
	cp.Config = append(json.RawMessage(nil), s.Config...)
	cp.Ratings = append([]int{}, s.Ratings...)
	return cp
}
