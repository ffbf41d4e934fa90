package arena

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernie/swarm-arena/internal/command"
	"github.com/ernie/swarm-arena/internal/engine"
	"github.com/ernie/swarm-arena/internal/session"
)

type stubEntity struct {
	moves int
}

func (e *stubEntity) ID() string                                  { return "alpha-0" }
func (e *stubEntity) AbilityCount() int                           { return 3 }
func (e *stubEntity) Move(dx, dy int)                             { e.moves++ }
func (e *stubEntity) UseAbility(int, string) engine.AbilityResult { return engine.AbilityResult{} }
func (e *stubEntity) SetBehaviour(string)                         {}
func (e *stubEntity) DeviseStrategy(name string) string           { return name }

// stubEngine counts ticks and declares alpha the winner at winAt.
type stubEngine struct {
	tick   uint64
	winAt  uint64
	winner string
	player *stubEntity
}

func newStubEngine(winAt uint64) *stubEngine {
	return &stubEngine{winAt: winAt, player: &stubEntity{}}
}

func (e *stubEngine) Advance() engine.Snapshot {
	if e.winner == "" {
		e.tick++
		if e.winAt > 0 && e.tick >= e.winAt {
			e.winner = "alpha"
		}
	}
	return e.Snapshot()
}

func (e *stubEngine) Snapshot() engine.Snapshot {
	return engine.Snapshot{
		Tick:   e.tick,
		Scores: map[string]int{"alpha": int(e.tick), "omega": 0},
		Winner: e.winner,
	}
}

func (e *stubEngine) Winner() (string, bool)              { return e.winner, e.winner != "" }
func (e *stubEngine) PlayerEntity() engine.Entity         { return e.player }
func (e *stubEngine) Entity(string) (engine.Entity, bool) { return e.player, true }

func recvSnapshot(t *testing.T, ch <-chan engine.Snapshot) (engine.Snapshot, bool) {
	t.Helper()
	select {
	case snap, ok := <-ch:
		return snap, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return engine.Snapshot{}, false
	}
}

func TestStepAdvancesAndBroadcasts(t *testing.T) {
	s := NewSession("b1", newStubEngine(0), Options{})
	obs := s.AddObserver("viewer")

	for i := 0; i < 3; i++ {
		assert.False(t, s.step())
	}

	for want := uint64(1); want <= 3; want++ {
		snap, ok := recvSnapshot(t, obs)
		require.True(t, ok)
		assert.Equal(t, want, snap.Tick)
		assert.Equal(t, int(want), snap.Scores["alpha"])
	}
	assert.Equal(t, uint64(3), s.Tick())
	assert.Equal(t, uint64(3), s.State().Tick)
}

func TestPauseFreezesTick(t *testing.T) {
	s := NewSession("b1", newStubEngine(0), Options{ObserverBuffer: 32})
	obs := s.AddObserver("viewer")

	s.step()
	s.step()
	require.Equal(t, uint64(2), s.Tick())

	assert.True(t, s.TogglePause())
	assert.Equal(t, StatusPaused, s.Status())
	for i := 0; i < 5; i++ {
		s.step()
	}
	assert.Equal(t, uint64(2), s.Tick())

	assert.False(t, s.TogglePause())
	s.step()
	assert.Equal(t, uint64(3), s.Tick())

	var ticks []uint64
	var paused int
	for i := 0; i < 8; i++ {
		snap, ok := recvSnapshot(t, obs)
		require.True(t, ok)
		ticks = append(ticks, snap.Tick)
		if snap.Paused {
			paused++
			assert.Nil(t, snap.Scores)
		}
	}
	assert.Equal(t, []uint64{1, 2, 2, 2, 2, 2, 2, 3}, ticks)
	assert.Equal(t, 5, paused)
}

func TestSlowObserverIsDroppedAlone(t *testing.T) {
	s := NewSession("b1", newStubEngine(0), Options{ObserverBuffer: 1})
	slow := s.AddObserver("slow")
	fast := s.AddObserver("fast")

	s.step()
	_, ok := recvSnapshot(t, fast)
	require.True(t, ok)

	// slow never reads, so the second broadcast overflows its buffer.
	s.step()
	assert.Equal(t, 1, s.ObserverCount())

	snap, ok := recvSnapshot(t, fast)
	require.True(t, ok)
	assert.Equal(t, uint64(2), snap.Tick)

	first, ok := recvSnapshot(t, slow)
	require.True(t, ok)
	assert.Equal(t, uint64(1), first.Tick)
	_, ok = recvSnapshot(t, slow)
	assert.False(t, ok, "dropped observer channel is closed")

	s.step()
	assert.Equal(t, uint64(3), s.Tick(), "loop keeps running after a drop")
}

func TestWinnerConcludesBattle(t *testing.T) {
	s := NewSession("b1", newStubEngine(2), Options{})
	obs := s.AddObserver("viewer")

	assert.False(t, s.step())
	assert.True(t, s.step())
	assert.Equal(t, StatusConcluded, s.Status())

	_, _ = recvSnapshot(t, obs)
	final, ok := recvSnapshot(t, obs)
	require.True(t, ok)
	assert.Equal(t, "alpha", final.Winner)
	_, ok = recvSnapshot(t, obs)
	assert.False(t, ok)

	late := s.AddObserver("late")
	snap, ok := recvSnapshot(t, late)
	require.True(t, ok)
	assert.Equal(t, "alpha", snap.Winner)
	_, ok = recvSnapshot(t, late)
	assert.False(t, ok)

	replay := s.Replay()
	assert.Equal(t, "b1", replay.BattleID)
	assert.Equal(t, "alpha", replay.Winner)
	assert.Equal(t, uint64(2), replay.TotalTicks)

	assert.False(t, s.TogglePause(), "concluded battles cannot be paused")
}

func TestStepAppliesOneCommandPerPlayer(t *testing.T) {
	eng := newStubEngine(0)
	s := NewSession("b1", eng, Options{})
	reg := session.NewRegistry()
	p := reg.Create(s, "alice", s.PlayerEntity())
	s.Attach(p)

	require.True(t, p.Offer(command.Move{DX: 1}))
	require.False(t, p.Offer(command.Move{DX: -1}))
	s.step()

	res := <-p.Replies()
	assert.True(t, res.Success)
	assert.Equal(t, 1, eng.player.moves)

	require.True(t, p.Offer(command.Move{DX: 5}))
	s.step()
	res = <-p.Replies()
	assert.Equal(t, session.InvalidCommand(), res)
	assert.Equal(t, 1, eng.player.moves)

	s.Detach(p)
	require.True(t, p.Offer(command.Move{DX: 1}))
	s.step()
	assert.Equal(t, 1, eng.player.moves, "detached players are not drained")
}

func TestRunStopsOnDiscard(t *testing.T) {
	s := NewSession("b1", newStubEngine(0), Options{TickRate: 200})
	obs := s.AddObserver("viewer")
	go s.Run(context.Background())

	_, ok := recvSnapshot(t, obs)
	require.True(t, ok)

	s.Discard()
	s.Discard()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	assert.Equal(t, StatusConcluded, s.Status())
}

func TestManagerLifecycle(t *testing.T) {
	factory := func(string, int) engine.Engine { return newStubEngine(3) }
	m := NewManager(factory, ManagerConfig{TickRate: 500}, nil, nil)
	defer m.Close()

	s := m.Create(context.Background())
	got, ok := m.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Len(t, m.List(), 1)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("battle did not conclude")
	}
	assert.Equal(t, "alpha", s.State().Winner)

	_, err := m.TogglePause(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrBattleNotFound)
	assert.ErrorIs(t, m.Discard("missing"), ErrBattleNotFound)

	assert.Equal(t, 0, m.Reap(time.Hour))
	assert.Equal(t, 1, m.Reap(-time.Second))
	_, ok = m.Get(s.ID())
	assert.False(t, ok)
}
