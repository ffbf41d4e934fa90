package command

import "github.com/ernie/swarm-arena/internal/engine"

// View is the slice of session and arena state a command is judged against.
type View struct {
	// Tick is the arena's current tick.
	Tick uint64
	// LastAccepted is the tick of the session's last accepted command. It is
	// meaningless until HasAccepted is set.
	LastAccepted uint64
	HasAccepted  bool
	// AbilityCount is the number of abilities equipped on the controlled entity.
	AbilityCount int
}

// Validate reports whether cmd may be executed. It has no side effects; the
// caller records acceptance.
//
// Rules are checked in order and the first failure rejects: one command per
// session per tick, moves of at most one cell per axis, ability indexes within
// the equipped range, and behaviours from the engine's fixed set. Strategy
// requests only need to pass the per-tick limit.
func Validate(v View, cmd Command) bool {
	if v.HasAccepted && v.LastAccepted == v.Tick {
		return false
	}

	switch c := cmd.(type) {
	case Move:
		return abs(c.DX) <= 1 && abs(c.DY) <= 1
	case Ability:
		return c.Index >= 0 && c.Index < v.AbilityCount
	case Behaviour:
		return engine.IsBehaviour(c.Name)
	case Strategy:
		return true
	default:
		return false
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
