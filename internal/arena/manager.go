package arena

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ernie/swarm-arena/internal/domain"
	"github.com/ernie/swarm-arena/internal/engine"
	"github.com/ernie/swarm-arena/internal/events"
)

// ErrBattleNotFound is returned for unknown battle ids.
var ErrBattleNotFound = errors.New("battle not found")

// ManagerConfig tunes the sessions a Manager creates.
type ManagerConfig struct {
	NumMobs        int
	TickRate       int
	ObserverBuffer int
}

// Manager is the directory of live battles.
type Manager struct {
	factory   engine.Factory
	cfg       ManagerConfig
	publisher events.Publisher
	log       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager that builds engines with factory.
func NewManager(factory engine.Factory, cfg ManagerConfig, publisher events.Publisher, logger *zap.Logger) *Manager {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NumMobs <= 0 {
		cfg.NumMobs = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		factory:   factory,
		cfg:       cfg,
		publisher: publisher,
		log:       logger,
		ctx:       ctx,
		cancel:    cancel,
		sessions:  make(map[string]*Session),
	}
}

// Create starts a new battle and returns its session.
func (m *Manager) Create(ctx context.Context) *Session {
	id := uuid.NewString()
	s := NewSession(id, m.factory(id, m.cfg.NumMobs), Options{
		TickRate:       m.cfg.TickRate,
		ObserverBuffer: m.cfg.ObserverBuffer,
		Logger:         m.log,
	})

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		s.Run(m.ctx)
		final := s.State()
		m.publish(context.Background(), domain.EventBattleConcluded, domain.BattleEvent{
			BattleID: id, Tick: final.Tick, Winner: final.Winner,
		})
	}()

	m.publish(ctx, domain.EventBattleCreated, domain.BattleEvent{BattleID: id})
	m.log.Info("battle created", zap.String("battle_id", id), zap.Int("num_mobs", m.cfg.NumMobs))
	return s
}

// Get returns the session for id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// List returns all known sessions, oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().Before(out[j].CreatedAt()) })
	return out
}

// TogglePause flips the pause state of battle id.
func (m *Manager) TogglePause(ctx context.Context, id string) (bool, error) {
	s, ok := m.Get(id)
	if !ok {
		return false, ErrBattleNotFound
	}
	paused := s.TogglePause()
	eventType := domain.EventBattleResumed
	if paused {
		eventType = domain.EventBattlePaused
	}
	m.publish(ctx, eventType, domain.BattleEvent{BattleID: id, Tick: s.Tick()})
	return paused, nil
}

// Discard stops battle id and forgets it.
func (m *Manager) Discard(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrBattleNotFound
	}
	s.Discard()
	return nil
}

// Reap forgets concluded battles older than retention and returns how many
// were removed.
func (m *Manager) Reap(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if at, done := s.ConcludedAt(); done && at.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// RunReaper calls Reap every interval until ctx is cancelled.
func (m *Manager) RunReaper(ctx context.Context, interval, retention time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Reap(retention); n > 0 {
				m.log.Info("reaped concluded battles", zap.Int("count", n))
			}
		}
	}
}

// Close stops every battle loop and waits for them to exit.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) publish(ctx context.Context, eventType string, data interface{}) {
	if err := m.publisher.Publish(ctx, domain.NewEvent(eventType, data)); err != nil {
		m.log.Warn("publishing event failed", zap.String("event", eventType), zap.Error(err))
	}
}
