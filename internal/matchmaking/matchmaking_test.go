package matchmaking

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernie/swarm-arena/internal/bracket"
	"github.com/ernie/swarm-arena/internal/domain"
	"github.com/ernie/swarm-arena/internal/leaderboard"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return "m" + strconv.Itoa(n)
	}
}

func TestQueue(t *testing.T) {
	q := NewQueue()
	assert.Equal(t, 1, q.Enqueue("alice"))
	assert.Equal(t, 1, q.Enqueue("alice"), "duplicate enqueue is a no-op")
	assert.Equal(t, 1, q.Len())

	_, ok := q.Pair(sequentialIDs())
	assert.False(t, ok)

	q.Enqueue("bob")
	q.Enqueue("carol")
	m, ok := q.Pair(sequentialIDs())
	require.True(t, ok)
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, "alice", m.Player1)
	assert.Equal(t, "bob", m.Player2)
	assert.False(t, m.Completed())
	assert.Equal(t, 1, q.Position("carol"))

	assert.True(t, q.Remove("carol"))
	assert.False(t, q.Remove("carol"))
	assert.Equal(t, 0, q.Len())
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type memStore struct {
	matches []*domain.Match
	entries []domain.LeaderboardEntry
	failAll bool
}

func (s *memStore) SaveMatch(_ context.Context, m *domain.Match) error {
	if s.failAll {
		return errors.New("disk full")
	}
	s.matches = append(s.matches, m)
	return nil
}

func (s *memStore) SaveLeaderboardEntries(_ context.Context, entries ...domain.LeaderboardEntry) error {
	if s.failAll {
		return errors.New("disk full")
	}
	s.entries = append(s.entries, entries...)
	return nil
}

func (s *memStore) GetReplay(_ context.Context, id string) (*domain.Replay, error) {
	for _, m := range s.matches {
		if m.ID == id {
			r := domain.ReplayOf(m)
			return &r, nil
		}
	}
	return nil, nil
}

func (s *memStore) PlayerHistory(context.Context, string, int) ([]domain.HistoryEntry, error) {
	return nil, nil
}

func pairAliceAndBob(t *testing.T, svc *Service) *domain.Match {
	t.Helper()
	first := svc.Join(context.Background(), "alice")
	assert.Equal(t, JoinResult{Status: StatusQueued, Position: 1}, first)

	second := svc.Join(context.Background(), "bob")
	require.Equal(t, StatusMatched, second.Status)
	require.NotNil(t, second.Match)
	return second.Match
}

func TestCompleteUpdatesLeaderboardOnce(t *testing.T) {
	board := leaderboard.New()
	pub := &recordingPublisher{}
	svc := NewService(board, nil, pub, nil)
	m := pairAliceAndBob(t, svc)

	ctx := context.Background()
	replay := json.RawMessage(`{"total_ticks":42}`)
	require.NoError(t, svc.Complete(ctx, m.ID, "alice", [2]int{3, 1}, replay))
	require.NoError(t, svc.Complete(ctx, m.ID, "alice", [2]int{3, 1}, replay))

	alice, _ := board.Entry("alice")
	bob, _ := board.Entry("bob")
	assert.Equal(t, domain.LeaderboardEntry{Identity: "alice", Wins: 1, Rating: 1025}, alice)
	assert.Equal(t, domain.LeaderboardEntry{Identity: "bob", Losses: 1, Rating: 985}, bob)

	_, active := svc.Match(m.ID)
	assert.False(t, active)

	r, err := svc.Replay(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", r.Winner)
	assert.Equal(t, [2]int{3, 1}, r.Score)
	assert.JSONEq(t, `{"total_ticks":42}`, string(r.Payload))
	assert.False(t, r.EndedAt.IsZero())

	assert.Equal(t, []string{domain.EventMatchCreated, domain.EventMatchCompleted}, pub.types())
}

func TestCompleteUnknownMatchIsSilent(t *testing.T) {
	board := leaderboard.New()
	svc := NewService(board, nil, nil, nil)
	assert.NoError(t, svc.Complete(context.Background(), "nope", "alice", [2]int{}, nil))
	assert.Equal(t, 0, board.Len())
}

func TestCompleteRejectsOutsider(t *testing.T) {
	board := leaderboard.New()
	svc := NewService(board, nil, nil, nil)
	m := pairAliceAndBob(t, svc)

	err := svc.Complete(context.Background(), m.ID, "mallory", [2]int{1, 0}, nil)
	assert.ErrorIs(t, err, ErrInvalidWinner)
	assert.Equal(t, 0, board.Len())

	got, ok := svc.Match(m.ID)
	require.True(t, ok, "match stays active")
	assert.Nil(t, got.Winner)
}

func TestCompletePersistsAndSurvivesStoreFailure(t *testing.T) {
	store := &memStore{}
	svc := NewService(leaderboard.New(), store, nil, nil)
	m := pairAliceAndBob(t, svc)

	require.NoError(t, svc.Complete(context.Background(), m.ID, "bob", [2]int{0, 2}, nil))
	require.Len(t, store.matches, 1)
	assert.Len(t, store.entries, 2)
	assert.Empty(t, svc.completed, "the store owns completed matches")
	assert.Empty(t, svc.history)

	r, err := svc.Replay(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", r.Winner)

	failing := &memStore{failAll: true}
	board := leaderboard.New()
	svc = NewService(board, failing, nil, nil)
	m = pairAliceAndBob(t, svc)
	require.NoError(t, svc.Complete(context.Background(), m.ID, "bob", [2]int{0, 2}, nil))
	bob, _ := board.Entry("bob")
	assert.Equal(t, 1025, bob.Rating)
}

func TestReplayNotFound(t *testing.T) {
	svc := NewService(leaderboard.New(), nil, nil, nil)
	_, err := svc.Replay(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrReplayNotFound)

	svc = NewService(leaderboard.New(), &memStore{}, nil, nil)
	_, err = svc.Replay(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrReplayNotFound)
}

func TestInMemoryHistory(t *testing.T) {
	svc := NewService(leaderboard.New(), nil, nil, nil)
	ctx := context.Background()

	m1 := pairAliceAndBob(t, svc)
	require.NoError(t, svc.Complete(ctx, m1.ID, "alice", [2]int{2, 0}, nil))
	m2 := pairAliceAndBob(t, svc)
	require.NoError(t, svc.Complete(ctx, m2.ID, "bob", [2]int{0, 2}, nil))

	hist, err := svc.History(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, m2.ID, hist[0].MatchID)
	assert.False(t, hist[0].Won)
	assert.True(t, hist[1].Won)
	assert.Equal(t, "bob", hist[1].Opponent)

	hist, err = svc.History(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestTournamentResultsReachLeaderboard(t *testing.T) {
	board := leaderboard.New()
	store := &memStore{}
	pub := &recordingPublisher{}
	brackets := bracket.NewRegistry(pub, nil)
	svc := NewService(board, store, pub, nil)
	svc.UseBrackets(brackets)
	ctx := context.Background()

	tour, err := brackets.Create(ctx, []string{"a", "b", "c", "d", "e", "f", "g", "h"})
	require.NoError(t, err)

	for round := 0; round < 3; round++ {
		for _, m := range tour.View().Rounds[round] {
			require.NoError(t, svc.Complete(ctx, m.ID, m.Player1, [2]int{2, 1}, nil))
			// Reporting the same result again changes nothing.
			require.NoError(t, svc.Complete(ctx, m.ID, m.Player1, [2]int{2, 1}, nil))
		}
	}

	champ, ok := tour.Winner()
	require.True(t, ok)
	assert.Equal(t, "a", champ)
	assert.Len(t, store.matches, 7)

	want := map[string]domain.LeaderboardEntry{
		"a": {Identity: "a", Wins: 3, Rating: 1075},
		"e": {Identity: "e", Wins: 2, Losses: 1, Rating: 1035},
		"c": {Identity: "c", Wins: 1, Losses: 1, Rating: 1010},
		"g": {Identity: "g", Wins: 1, Losses: 1, Rating: 1010},
		"b": {Identity: "b", Losses: 1, Rating: 985},
		"d": {Identity: "d", Losses: 1, Rating: 985},
		"f": {Identity: "f", Losses: 1, Rating: 985},
		"h": {Identity: "h", Losses: 1, Rating: 985},
	}
	for id, entry := range want {
		got, ok := board.Entry(id)
		require.True(t, ok, id)
		assert.Equal(t, entry, got, id)
	}
	assert.Equal(t, 8, board.Len())

	final := tour.View().Rounds[2][0]
	require.NotNil(t, final.Winner)
	assert.Equal(t, [2]int{2, 1}, final.Score)
	assert.NotNil(t, final.EndedAt)

	completed := 0
	for _, typ := range pub.types() {
		if typ == domain.EventMatchCompleted {
			completed++
		}
	}
	assert.Equal(t, 7, completed)
	assert.Contains(t, pub.types(), domain.EventTournamentFinished)
}

func TestTournamentOutsiderRejected(t *testing.T) {
	board := leaderboard.New()
	brackets := bracket.NewRegistry(nil, nil)
	svc := NewService(board, nil, nil, nil)
	svc.UseBrackets(brackets)
	ctx := context.Background()

	tour, err := brackets.Create(ctx, []string{"a", "b"})
	require.NoError(t, err)
	id := tour.View().Rounds[0][0].ID

	assert.ErrorIs(t, svc.Complete(ctx, id, "mallory", [2]int{}, nil), ErrInvalidWinner)
	assert.Equal(t, 0, board.Len())
	_, decided := tour.Winner()
	assert.False(t, decided)
}

// stallingStore holds the first leaderboard save until released.
type stallingStore struct {
	memStore
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
	saved map[string]domain.LeaderboardEntry
}

func newStallingStore() *stallingStore {
	return &stallingStore{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		saved:   make(map[string]domain.LeaderboardEntry),
	}
}

func (s *stallingStore) SaveLeaderboardEntries(_ context.Context, entries ...domain.LeaderboardEntry) error {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()
	if first {
		close(s.entered)
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.saved[e.Identity] = e
	}
	return nil
}

func TestConcurrentCompletionsPersistLatestStanding(t *testing.T) {
	board := leaderboard.New()
	store := newStallingStore()
	svc := NewService(board, store, nil, nil)
	ctx := context.Background()

	first := pairAliceAndBob(t, svc)
	svc.Join(ctx, "alice")
	joined := svc.Join(ctx, "carol")
	require.Equal(t, StatusMatched, joined.Status)
	second := joined.Match

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, svc.Complete(ctx, first.ID, "alice", [2]int{1, 0}, nil))
	}()
	<-store.entered
	go func() {
		defer wg.Done()
		assert.NoError(t, svc.Complete(ctx, second.ID, "alice", [2]int{1, 0}, nil))
	}()
	// Give the second completion a chance to overtake the stalled save.
	time.Sleep(20 * time.Millisecond)
	close(store.release)
	wg.Wait()

	live, ok := board.Entry("alice")
	require.True(t, ok)
	assert.Equal(t, domain.LeaderboardEntry{Identity: "alice", Wins: 2, Rating: 1050}, live)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, live, store.saved["alice"])
}
