package bracket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ernie/swarm-arena/internal/domain"
	"github.com/ernie/swarm-arena/internal/events"
)

var ErrTournamentNotFound = errors.New("tournament not found")

var tracer = otel.Tracer("github.com/ernie/swarm-arena/internal/bracket")

// Registry holds tournaments by id and knows which tournament each match
// belongs to. Results reach it through matchmaking.Service.Complete so the
// leaderboard sees every tournament match.
type Registry struct {
	publisher events.Publisher
	log       *zap.Logger

	mu          sync.RWMutex
	tournaments map[string]*Tournament
	byMatch     map[string]*Tournament
}

// NewRegistry creates an empty registry.
func NewRegistry(publisher events.Publisher, logger *zap.Logger) *Registry {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		publisher:   publisher,
		log:         logger,
		tournaments: make(map[string]*Tournament),
		byMatch:     make(map[string]*Tournament),
	}
}

// Create starts a tournament for players.
func (r *Registry) Create(ctx context.Context, players []string) (*Tournament, error) {
	t, err := New(uuid.NewString(), players)
	if err != nil {
		return nil, err
	}
	view := t.View()

	r.mu.Lock()
	r.tournaments[t.ID()] = t
	r.index(t, view.Rounds[0])
	r.mu.Unlock()

	if len(view.Dropped) > 0 {
		r.log.Warn("odd entrant dropped from first round",
			zap.String("tournament_id", t.ID()), zap.Strings("dropped", view.Dropped))
	}
	r.publish(ctx, domain.EventTournamentCreated, domain.TournamentEvent{TournamentID: t.ID()})
	return t, nil
}

// index must be called with r.mu held.
func (r *Registry) index(t *Tournament, round []domain.Match) {
	for _, m := range round {
		r.byMatch[m.ID] = t
	}
}

// Get returns a tournament by id.
func (r *Registry) Get(id string) (*Tournament, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tournaments[id]
	return t, ok
}

// Settle records the result of a tournament match and returns the settled
// match. It returns nil, nil for ids that belong to no tournament, matches
// that were already decided and finished tournaments.
func (r *Registry) Settle(ctx context.Context, matchID, winner string, score [2]int, replay json.RawMessage, at time.Time) (*domain.Match, error) {
	r.mu.RLock()
	t, ok := r.byMatch[matchID]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	ctx, span := tracer.Start(ctx, "bracket.Settle")
	defer span.End()
	span.SetAttributes(attribute.String("tournament.id", t.ID()), attribute.String("match.id", matchID))

	_, hadWinner := t.Winner()
	before := len(t.View().Rounds)
	m, rounds, err := t.Settle(matchID, winner, score, replay, at)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if rounds > before {
		view := t.View()
		r.mu.Lock()
		r.index(t, view.Rounds[rounds-1])
		r.mu.Unlock()
		r.publish(ctx, domain.EventTournamentRound, domain.TournamentEvent{TournamentID: t.ID(), Round: rounds - 1})
	}
	if champ, ok := t.Winner(); ok && !hadWinner {
		r.log.Info("tournament finished", zap.String("tournament_id", t.ID()), zap.String("winner", champ))
		r.publish(ctx, domain.EventTournamentFinished, domain.TournamentEvent{TournamentID: t.ID(), Round: rounds - 1, Winner: champ})
	}
	return m, nil
}

func (r *Registry) publish(ctx context.Context, eventType string, data interface{}) {
	if err := r.publisher.Publish(ctx, domain.NewEvent(eventType, data)); err != nil {
		r.log.Warn("publishing event failed", zap.String("event", eventType), zap.Error(err))
	}
}
