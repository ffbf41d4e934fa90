package matchmaking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ernie/swarm-arena/internal/domain"
	"github.com/ernie/swarm-arena/internal/events"
	"github.com/ernie/swarm-arena/internal/leaderboard"
)

var (
	ErrMatchNotFound  = errors.New("match not found")
	ErrReplayNotFound = errors.New("replay not found")
	ErrInvalidWinner  = domain.ErrInvalidWinner
)

var tracer = otel.Tracer("github.com/ernie/swarm-arena/internal/matchmaking")

// Store persists completed matches. storage.Store implements it.
type Store interface {
	SaveMatch(ctx context.Context, m *domain.Match) error
	SaveLeaderboardEntries(ctx context.Context, entries ...domain.LeaderboardEntry) error
	GetReplay(ctx context.Context, matchID string) (*domain.Replay, error)
	PlayerHistory(ctx context.Context, identity string, limit int) ([]domain.HistoryEntry, error)
}

// Brackets settles tournament matches. bracket.Registry implements it.
type Brackets interface {
	Settle(ctx context.Context, matchID, winner string, score [2]int, replay json.RawMessage, at time.Time) (*domain.Match, error)
}

// Join statuses
const (
	StatusQueued  = "queued"
	StatusMatched = "matched"
)

// JoinResult is the outcome of joining the queue.
type JoinResult struct {
	Status   string        `json:"status"`
	Position int           `json:"position,omitempty"`
	Match    *domain.Match `json:"match,omitempty"`
}

// Service owns the queue, the active matches and completion bookkeeping.
type Service struct {
	queue     *Queue
	board     *leaderboard.Board
	store     Store
	publisher events.Publisher
	log       *zap.Logger
	now       func() time.Time
	brackets  Brackets

	// settle serializes completions from stamping through persistence.
	settle sync.Mutex

	mu     sync.Mutex
	active map[string]*domain.Match
	// completed and history back Replay and History when there is no store.
	completed map[string]*domain.Match
	history   map[string][]domain.HistoryEntry
}

// NewService wires a matchmaking service. store and publisher may be nil.
func NewService(board *leaderboard.Board, store Store, publisher events.Publisher, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		queue:     NewQueue(),
		board:     board,
		store:     store,
		publisher: publisher,
		log:       logger,
		now:       time.Now,
		active:    make(map[string]*domain.Match),
		completed: make(map[string]*domain.Match),
		history:   make(map[string][]domain.HistoryEntry),
	}
}

// Queue exposes the underlying waiting queue.
func (s *Service) Queue() *Queue { return s.queue }

// Join queues identity and pairs it if an opponent is waiting.
func (s *Service) Join(ctx context.Context, identity string) JoinResult {
	pos := s.queue.Enqueue(identity)
	m, ok := s.queue.Pair(uuid.NewString)
	if !ok {
		return JoinResult{Status: StatusQueued, Position: pos}
	}

	s.mu.Lock()
	s.active[m.ID] = m
	s.mu.Unlock()

	s.log.Info("match created",
		zap.String("match_id", m.ID),
		zap.String("player1", m.Player1),
		zap.String("player2", m.Player2))
	s.publish(ctx, domain.EventMatchCreated, domain.MatchEvent{MatchID: m.ID, Player1: m.Player1, Player2: m.Player2})

	if !m.HasPlayer(identity) {
		return JoinResult{Status: StatusQueued, Position: s.queue.Position(identity)}
	}
	snapshot := *m
	return JoinResult{Status: StatusMatched, Match: &snapshot}
}

// Match returns an active match by id.
func (s *Service) Match(id string) (*domain.Match, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.active[id]
	if !ok {
		return nil, false
	}
	cp := *m
	return &cp, true
}

// ActiveMatches returns a copy of every active match.
func (s *Service) ActiveMatches() []domain.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Match, 0, len(s.active))
	for _, m := range s.active {
		out = append(out, *m)
	}
	return out
}

// UseBrackets routes results for tournament matches to b. Call it before
// serving requests.
func (s *Service) UseBrackets(b Brackets) { s.brackets = b }

// Complete settles an active ladder match or a tournament match. Unknown or
// already completed ids are ignored. The leaderboard is updated and persisted
// once per match; completions are serialized so the stored standings never
// fall behind the in-memory board.
func (s *Service) Complete(ctx context.Context, matchID, winner string, score [2]int, replay json.RawMessage) error {
	ctx, span := tracer.Start(ctx, "matchmaking.Complete")
	defer span.End()
	span.SetAttributes(attribute.String("match.id", matchID), attribute.String("match.winner", winner))

	s.settle.Lock()
	defer s.settle.Unlock()

	m, err := s.settleMatch(ctx, matchID, winner, score, replay)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if m == nil {
		span.SetAttributes(attribute.Bool("match.ignored", true))
		return nil
	}

	loser := m.Opponent(winner)
	w, l := s.board.Record(winner, loser)
	s.log.Info("match completed",
		zap.String("match_id", matchID),
		zap.String("winner", winner),
		zap.Int("winner_rating", w.Rating),
		zap.String("loser", loser),
		zap.Int("loser_rating", l.Rating))

	if s.store != nil {
		if err := s.store.SaveMatch(ctx, m); err != nil {
			span.RecordError(err)
			s.log.Error("saving match", zap.String("match_id", matchID), zap.Error(err))
		}
		if err := s.store.SaveLeaderboardEntries(ctx, w, l); err != nil {
			span.RecordError(err)
			s.log.Error("saving leaderboard", zap.String("match_id", matchID), zap.Error(err))
		}
	} else {
		s.mu.Lock()
		s.completed[matchID] = m
		s.history[m.Player1] = append(s.history[m.Player1], historyEntry(m, m.Player1))
		s.history[m.Player2] = append(s.history[m.Player2], historyEntry(m, m.Player2))
		s.mu.Unlock()
	}

	s.publish(ctx, domain.EventMatchCompleted, domain.MatchEvent{
		MatchID: m.ID, Player1: m.Player1, Player2: m.Player2, Winner: winner, Score: score,
	})
	return nil
}

// settleMatch stamps the outcome on a ladder match, or hands it to the
// brackets. A nil match means there was nothing to settle.
func (s *Service) settleMatch(ctx context.Context, matchID, winner string, score [2]int, replay json.RawMessage) (*domain.Match, error) {
	s.mu.Lock()
	m, ok := s.active[matchID]
	if ok {
		defer s.mu.Unlock()
		if err := m.Complete(winner, score, replay, s.now()); err != nil {
			return nil, err
		}
		delete(s.active, matchID)
		return m, nil
	}
	s.mu.Unlock()

	if s.brackets == nil {
		return nil, nil
	}
	return s.brackets.Settle(ctx, matchID, winner, score, replay, s.now())
}

// Replay returns the replay of a completed match.
func (s *Service) Replay(ctx context.Context, matchID string) (*domain.Replay, error) {
	s.mu.Lock()
	m, ok := s.completed[matchID]
	s.mu.Unlock()
	if ok {
		r := domain.ReplayOf(m)
		return &r, nil
	}
	if s.store == nil {
		return nil, ErrReplayNotFound
	}
	r, err := s.store.GetReplay(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("loading replay: %w", err)
	}
	if r == nil {
		return nil, ErrReplayNotFound
	}
	return r, nil
}

// History returns identity's completed matches, most recent first.
func (s *Service) History(ctx context.Context, identity string, limit int) ([]domain.HistoryEntry, error) {
	if s.store != nil {
		return s.store.PlayerHistory(ctx, identity, limit)
	}
	s.mu.Lock()
	src := s.history[identity]
	out := make([]domain.HistoryEntry, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	s.mu.Unlock()
	return out, nil
}

func historyEntry(m *domain.Match, identity string) domain.HistoryEntry {
	return domain.HistoryEntry{
		MatchID:  m.ID,
		Opponent: m.Opponent(identity),
		Won:      m.Winner != nil && *m.Winner == identity,
		Score:    m.Score,
		EndedAt:  *m.EndedAt,
	}
}

func (s *Service) publish(ctx context.Context, eventType string, data interface{}) {
	if err := s.publisher.Publish(ctx, domain.NewEvent(eventType, data)); err != nil {
		s.log.Warn("publishing event failed", zap.String("event", eventType), zap.Error(err))
	}
}
