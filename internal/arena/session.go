// Package arena runs live battles: each Session owns one engine instance and a
// fixed-rate loop that applies player commands, advances the engine and fans
// the resulting state out to observers.
package arena

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ernie/swarm-arena/internal/engine"
	"github.com/ernie/swarm-arena/internal/session"
)

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusConcluded Status = "concluded"
)

// DefaultTickRate is the number of loop iterations per second.
const DefaultTickRate = 20

// Options tunes a Session.
type Options struct {
	TickRate       int
	ObserverBuffer int
	Logger         *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.TickRate <= 0 {
		o.TickRate = DefaultTickRate
	}
	if o.ObserverBuffer <= 0 {
		o.ObserverBuffer = 16
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Replay is the replay payload for a finished or discarded battle.
type Replay struct {
	BattleID   string          `json:"battle_id"`
	CreatedAt  time.Time       `json:"created_at"`
	FinalState engine.Snapshot `json:"final_state"`
	Winner     string          `json:"winner,omitempty"`
	TotalTicks uint64          `json:"total_ticks"`
}

// Session is one live battle.
type Session struct {
	id        string
	createdAt time.Time
	engine    engine.Engine
	player    engine.Entity
	opts      Options
	log       *zap.Logger

	mu          sync.Mutex
	status      Status
	tick        uint64
	last        engine.Snapshot
	observers   map[string]chan engine.Snapshot
	players     map[string]*session.Player
	concludedAt time.Time

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

var _ session.Arena = (*Session)(nil)

// NewSession wraps eng. The loop does not start until Run is called.
func NewSession(id string, eng engine.Engine, opts Options) *Session {
	opts = opts.withDefaults()
	initial := eng.Snapshot()
	return &Session{
		id:        id,
		createdAt: time.Now().UTC(),
		engine:    eng,
		player:    eng.PlayerEntity(),
		opts:      opts,
		log:       opts.Logger.With(zap.String("battle_id", id)),
		status:    StatusRunning,
		tick:      initial.Tick,
		last:      initial,
		observers: make(map[string]chan engine.Snapshot),
		players:   make(map[string]*session.Player),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (s *Session) ID() string           { return s.id }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// PlayerEntity is the entity handed to connecting players.
func (s *Session) PlayerEntity() engine.Entity { return s.player }

// Tick returns the current tick number.
func (s *Session) Tick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// Status returns the lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// State returns the most recent snapshot without touching the engine.
func (s *Session) State() engine.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// TogglePause flips between running and paused and reports whether the
// session is now paused. A concluded session stays concluded.
func (s *Session) TogglePause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case StatusRunning:
		s.status = StatusPaused
	case StatusPaused:
		s.status = StatusRunning
	}
	return s.status == StatusPaused
}

// Done is closed once the loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// ConcludedAt returns when the session concluded.
func (s *Session) ConcludedAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.concludedAt, s.status == StatusConcluded
}

// Replay builds the replay payload from the latest state.
func (s *Session) Replay() Replay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Replay{
		BattleID:   s.id,
		CreatedAt:  s.createdAt,
		FinalState: s.last,
		Winner:     s.last.Winner,
		TotalTicks: s.tick,
	}
}

// Attach routes p's staged commands through this session's loop.
func (s *Session) Attach(p *session.Player) {
	s.mu.Lock()
	s.players[p.Identity()] = p
	s.mu.Unlock()
}

// Detach stops routing commands for p. Nothing happens if a newer session has
// taken over the same identity.
func (s *Session) Detach(p *session.Player) {
	s.mu.Lock()
	if cur, ok := s.players[p.Identity()]; ok && cur == p {
		delete(s.players, p.Identity())
	}
	s.mu.Unlock()
}

// AddObserver subscribes id to per-tick snapshots. The channel is closed when
// the observer is dropped or the battle ends. Observers joining a concluded
// battle get the final snapshot and a closed channel.
func (s *Session) AddObserver(id string) <-chan engine.Snapshot {
	ch := make(chan engine.Snapshot, s.opts.ObserverBuffer)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusConcluded {
		ch <- s.last
		close(ch)
		return ch
	}
	if old, ok := s.observers[id]; ok {
		close(old)
	}
	s.observers[id] = ch
	return ch
}

// RemoveObserver unsubscribes id. It is safe to call more than once.
func (s *Session) RemoveObserver(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.observers[id]; ok {
		close(ch)
		delete(s.observers, id)
	}
}

// ObserverCount returns the number of subscribed observers.
func (s *Session) ObserverCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}

// Discard stops the loop without a winner.
func (s *Session) Discard() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Run drives the tick loop until the engine reports a winner, the session is
// discarded, or ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(time.Second / time.Duration(s.opts.TickRate))
	defer ticker.Stop()

	s.log.Info("battle loop started", zap.Int("tick_rate", s.opts.TickRate))
	for {
		select {
		case <-ctx.Done():
			s.conclude("context cancelled")
			return
		case <-s.stop:
			s.conclude("discarded")
			return
		case <-ticker.C:
			if s.step() {
				return
			}
		}
	}
}

// step runs one loop iteration and reports whether the battle has concluded.
func (s *Session) step() bool {
	s.applyCommands()

	snap := s.advance()
	s.broadcast(snap)

	if snap.Winner != "" {
		s.conclude("winner " + snap.Winner)
		return true
	}
	return false
}

// applyCommands executes at most one staged command per attached player.
func (s *Session) applyCommands() {
	s.mu.Lock()
	players := make([]*session.Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, p)
	}
	s.mu.Unlock()

	for _, p := range players {
		cmd, ok := p.Pending()
		if !ok {
			continue
		}
		res := p.Execute(cmd)
		if res.Error != "" {
			s.log.Debug("command rejected",
				zap.String("identity", p.Identity()),
				zap.String("kind", string(cmd.Kind())))
		}
		p.Reply(res)
	}
}

func (s *Session) advance() engine.Snapshot {
	s.mu.Lock()
	if s.status != StatusRunning {
		snap := engine.Snapshot{Paused: true, Tick: s.tick}
		s.mu.Unlock()
		return snap
	}
	s.mu.Unlock()

	snap := s.engine.Advance()

	s.mu.Lock()
	s.tick = snap.Tick
	s.last = snap
	s.mu.Unlock()
	return snap
}

// broadcast delivers snap to every observer without blocking. An observer
// whose buffer is full is dropped; the others are unaffected.
func (s *Session) broadcast(snap engine.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.observers {
		select {
		case ch <- snap:
		default:
			close(ch)
			delete(s.observers, id)
			s.log.Info("dropping slow observer", zap.String("observer", id))
		}
	}
}

func (s *Session) conclude(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusConcluded {
		return
	}
	s.status = StatusConcluded
	s.concludedAt = time.Now().UTC()
	for id, ch := range s.observers {
		close(ch)
		delete(s.observers, id)
	}
	s.log.Info("battle concluded", zap.String("reason", reason), zap.Uint64("tick", s.tick))
}
