package bracket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func players(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(rune('a' + i))
	}
	return out
}

// decideRound reports Player1 as the winner of every match in round r.
func decideRound(t *testing.T, tour *Tournament, r int) {
	t.Helper()
	for _, m := range tour.View().Rounds[r] {
		_, err := tour.Advance(m.ID, m.Player1)
		require.NoError(t, err)
	}
}

func TestEightEntrants(t *testing.T) {
	tour, err := New("t", players(8))
	require.NoError(t, err)

	v := tour.View()
	require.Len(t, v.Rounds, 1)
	assert.Len(t, v.Rounds[0], 4)
	assert.Equal(t, "a", v.Rounds[0][0].Player1)
	assert.Equal(t, "b", v.Rounds[0][0].Player2)

	// Partial rounds do not open the next one.
	_, err = tour.Advance(v.Rounds[0][0].ID, "a")
	require.NoError(t, err)
	assert.Len(t, tour.View().Rounds, 1)
	_, decided := tour.Winner()
	assert.False(t, decided)

	decideRound(t, tour, 0)
	v = tour.View()
	require.Len(t, v.Rounds, 2)
	require.Len(t, v.Rounds[1], 2)
	assert.Equal(t, "a", v.Rounds[1][0].Player1)
	assert.Equal(t, "c", v.Rounds[1][0].Player2)
	assert.Equal(t, "e", v.Rounds[1][1].Player1)
	assert.Equal(t, "g", v.Rounds[1][1].Player2)

	decideRound(t, tour, 1)
	v = tour.View()
	require.Len(t, v.Rounds, 3)
	require.Len(t, v.Rounds[2], 1)

	decideRound(t, tour, 2)
	winner, ok := tour.Winner()
	require.True(t, ok)
	assert.Equal(t, "a", winner)
	assert.Len(t, tour.View().Rounds, 3)
}

func TestFiveEntrantsDropsLast(t *testing.T) {
	tour, err := New("t", players(5))
	require.NoError(t, err)
	v := tour.View()
	assert.Len(t, v.Rounds[0], 2)
	assert.Equal(t, []string{"e"}, v.Dropped)
}

func TestTwoEntrants(t *testing.T) {
	tour, err := New("t", []string{"x", "y"})
	require.NoError(t, err)
	rounds, err := tour.Advance("t-r0-m0", "y")
	require.NoError(t, err)
	assert.Equal(t, 1, rounds)
	w, ok := tour.Winner()
	require.True(t, ok)
	assert.Equal(t, "y", w)
}

func TestAdvanceErrors(t *testing.T) {
	_, err := New("t", []string{"solo"})
	assert.ErrorIs(t, err, ErrNotEnoughPlayers)

	tour, err := New("t", players(4))
	require.NoError(t, err)

	_, err = tour.Advance("nope", "a")
	assert.ErrorIs(t, err, ErrMatchNotFound)
	_, err = tour.Advance("t-r0-m0", "c")
	assert.ErrorIs(t, err, ErrInvalidWinner)

	// A decided match keeps its first result.
	_, err = tour.Advance("t-r0-m0", "a")
	require.NoError(t, err)
	_, err = tour.Advance("t-r0-m0", "b")
	require.NoError(t, err)
	first := tour.View().Rounds[0][0]
	require.NotNil(t, first.Winner)
	assert.Equal(t, "a", *first.Winner)
}

func TestAdvanceAfterWinnerIsNoop(t *testing.T) {
	tour, err := New("t", players(4))
	require.NoError(t, err)
	decideRound(t, tour, 0)
	decideRound(t, tour, 1)
	before := tour.View()
	require.Equal(t, "a", before.Winner)

	_, err = tour.Advance("t-r0-m1", "d")
	assert.NoError(t, err)
	_, err = tour.Advance("missing", "x")
	assert.NoError(t, err)
	assert.Equal(t, before, tour.View())
}

func TestSettleStampsMatch(t *testing.T) {
	tour, err := New("t", []string{"x", "y"})
	require.NoError(t, err)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m, rounds, err := tour.Settle("t-r0-m0", "x", [2]int{3, 2}, json.RawMessage(`{"ticks":9}`), at)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 1, rounds)
	assert.Equal(t, "x", *m.Winner)
	assert.Equal(t, [2]int{3, 2}, m.Score)
	assert.Equal(t, at, *m.EndedAt)
	assert.JSONEq(t, `{"ticks":9}`, string(m.Replay))

	again, _, err := tour.Settle("t-r0-m0", "y", [2]int{0, 1}, nil, at)
	require.NoError(t, err)
	assert.Nil(t, again, "a decided match is not settled twice")

	stored, ok := tour.Match("t-r0-m0")
	require.True(t, ok)
	assert.Equal(t, [2]int{3, 2}, stored.Score)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()
	now := time.Now()

	_, err := r.Create(ctx, []string{"a"})
	assert.ErrorIs(t, err, ErrNotEnoughPlayers)

	tour, err := r.Create(ctx, []string{"a", "b", "c", "d"})
	require.NoError(t, err)
	got, ok := r.Get(tour.ID())
	require.True(t, ok)
	assert.Same(t, tour, got)

	m, err := r.Settle(ctx, "not-a-tournament-match", "a", [2]int{}, nil, now)
	require.NoError(t, err)
	assert.Nil(t, m)

	round0 := tour.View().Rounds[0]
	_, err = r.Settle(ctx, round0[0].ID, "z", [2]int{}, nil, now)
	assert.ErrorIs(t, err, ErrInvalidWinner)

	for _, rm := range round0 {
		m, err := r.Settle(ctx, rm.ID, rm.Player2, [2]int{0, 1}, nil, now)
		require.NoError(t, err)
		require.NotNil(t, m)
	}

	final := tour.View().Rounds[1][0]
	m, err = r.Settle(ctx, final.ID, "d", [2]int{0, 1}, nil, now)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "d", tour.View().Winner)
}
