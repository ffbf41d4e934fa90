// Package engine declares the contract between the arena session layer and the
// battle simulation that resolves combat. Implementations own all agent state;
// callers only advance them one tick at a time and steer a single entity.
package engine

import "slices"

// Behaviours enumerates the standing orders an entity accepts.
var Behaviours = []string{
	"aggressive",
	"defensive",
	"support",
	"flank",
	"retreat",
}

// IsBehaviour reports whether name is one of the known behaviours.
func IsBehaviour(name string) bool {
	return slices.Contains(Behaviours, name)
}

// EntityState is the render-facing view of one agent.
type EntityState struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Team      string `json:"team"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	HP        int    `json:"hp"`
	MaxHP     int    `json:"max_hp"`
	Behaviour string `json:"behaviour"`
	IsPlayer  bool   `json:"is_player,omitempty"`
}

// Snapshot is the state produced by one tick of the simulation.
type Snapshot struct {
	Tick     uint64         `json:"tick"`
	Paused   bool           `json:"paused,omitempty"`
	Scores   map[string]int `json:"scores,omitempty"`
	Entities []EntityState  `json:"entities,omitempty"`
	Winner   string         `json:"winner,omitempty"`
}

// AbilityResult describes the outcome of an ability activation.
type AbilityResult struct {
	Ability string `json:"ability"`
	Target  string `json:"target,omitempty"`
	Damage  int    `json:"damage,omitempty"`
	Healed  int    `json:"healed,omitempty"`
	Message string `json:"message,omitempty"`
}

// Entity is a single agent that a player can steer.
type Entity interface {
	ID() string
	AbilityCount() int
	Move(dx, dy int)
	UseAbility(index int, target string) AbilityResult
	SetBehaviour(name string)
	DeviseStrategy(name string) string
}

// Engine is one battle instance. It is not safe for concurrent use; the arena
// session that owns it serialises every call.
type Engine interface {
	// Advance runs exactly one tick and returns the resulting state.
	Advance() Snapshot
	// Snapshot returns the current state without advancing.
	Snapshot() Snapshot
	// Winner reports the winning team once the battle is decided.
	Winner() (string, bool)
	// PlayerEntity returns the entity a connecting player takes control of.
	PlayerEntity() Entity
	// Entity looks up an entity by id.
	Entity(id string) (Entity, bool)
}

// Factory builds a fresh engine for a battle.
type Factory func(battleID string, numMobs int) Engine
