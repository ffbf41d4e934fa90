// Package session binds connected players to the entity they steer inside an
// arena and keeps the process-wide directory of those bindings.
package session

import (
	"sync"

	"github.com/ernie/swarm-arena/internal/command"
	"github.com/ernie/swarm-arena/internal/engine"
)

const replyBuffer = 8

// Arena is what a player session needs from the arena it plays in.
type Arena interface {
	ID() string
	Tick() uint64
}

// Result is the reply to a single command.
type Result struct {
	Success bool                  `json:"success,omitempty"`
	Action  command.Kind          `json:"action,omitempty"`
	Result  *engine.AbilityResult `json:"result,omitempty"`
	Message string                `json:"message,omitempty"`
	Error   string                `json:"error,omitempty"`
}

var invalidCommand = Result{Error: "invalid command"}

// InvalidCommand is the reply for rejected commands.
func InvalidCommand() Result { return invalidCommand }

// Player is one identity controlling one entity inside one arena.
type Player struct {
	identity string
	arena    Arena
	entity   engine.Entity

	mu           sync.Mutex
	lastAccepted uint64
	hasAccepted  bool

	// mailbox holds at most one command waiting for the next tick.
	mailbox chan command.Command
	replies chan Result
}

func newPlayer(arena Arena, identity string, entity engine.Entity) *Player {
	return &Player{
		identity: identity,
		arena:    arena,
		entity:   entity,
		mailbox:  make(chan command.Command, 1),
		replies:  make(chan Result, replyBuffer),
	}
}

func (p *Player) Identity() string      { return p.identity }
func (p *Player) ArenaID() string       { return p.arena.ID() }
func (p *Player) Entity() engine.Entity { return p.entity }

// LastAcceptedTick returns the tick of the last accepted command.
func (p *Player) LastAcceptedTick() (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastAccepted, p.hasAccepted
}

// Execute validates cmd and, if legal, applies it to the controlled entity.
// It must only be called from the goroutine that owns the arena's engine.
func (p *Player) Execute(cmd command.Command) Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	tick := p.arena.Tick()
	view := command.View{
		Tick:         tick,
		LastAccepted: p.lastAccepted,
		HasAccepted:  p.hasAccepted,
		AbilityCount: p.entity.AbilityCount(),
	}
	if !command.Validate(view, cmd) {
		return invalidCommand
	}

	var res Result
	switch c := cmd.(type) {
	case command.Move:
		p.entity.Move(c.DX, c.DY)
		res = Result{Success: true, Action: command.KindMove}
	case command.Ability:
		out := p.entity.UseAbility(c.Index, c.Target)
		res = Result{Success: true, Action: command.KindAbility, Result: &out}
	case command.Behaviour:
		p.entity.SetBehaviour(c.Name)
		res = Result{Success: true, Action: command.KindBehaviour}
	case command.Strategy:
		msg := p.entity.DeviseStrategy(c.Name)
		res = Result{Success: true, Action: command.KindStrategy, Message: msg}
	default:
		return invalidCommand
	}

	p.lastAccepted = tick
	p.hasAccepted = true
	return res
}

// Offer stages cmd for the next tick without blocking. It returns false if a
// command is already waiting; surplus commands are dropped, not queued.
func (p *Player) Offer(cmd command.Command) bool {
	select {
	case p.mailbox <- cmd:
		return true
	default:
		return false
	}
}

// Pending removes the staged command, if any.
func (p *Player) Pending() (command.Command, bool) {
	select {
	case cmd := <-p.mailbox:
		return cmd, true
	default:
		return nil, false
	}
}

// Reply queues a result for the client. Replies are dropped if the client is
// not keeping up.
func (p *Player) Reply(res Result) bool {
	select {
	case p.replies <- res:
		return true
	default:
		return false
	}
}

// Replies streams results produced for this player.
func (p *Player) Replies() <-chan Result { return p.replies }
