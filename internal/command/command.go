// Package command defines the actions a player may submit to an arena and the
// rules that decide whether a submitted action is legal.
package command

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind names a command variant on the wire.
type Kind string

const (
	KindMove      Kind = "move"
	KindAbility   Kind = "ability"
	KindBehaviour Kind = "behaviour"
	KindStrategy  Kind = "strategy"
)

var (
	ErrMalformed   = errors.New("malformed command")
	ErrUnknownKind = errors.New("unknown command type")
)

// Command is a closed set of player actions: Move, Ability, Behaviour and
// Strategy. Switches over it should list every variant.
type Command interface {
	Kind() Kind
	isCommand()
}

// Move steps the controlled entity by at most one cell on each axis.
type Move struct {
	DX int `json:"dx"`
	DY int `json:"dy"`
}

// Ability fires one of the entity's equipped abilities. An empty Target lets
// the engine choose.
type Ability struct {
	Index  int    `json:"ability_idx"`
	Target string `json:"target,omitempty"`
}

// Behaviour changes the entity's standing orders.
type Behaviour struct {
	Name string `json:"behaviour"`
}

// Strategy asks for advice and does not change the entity.
type Strategy struct {
	Name string `json:"strategy"`
}

func (Move) Kind() Kind      { return KindMove }
func (Ability) Kind() Kind   { return KindAbility }
func (Behaviour) Kind() Kind { return KindBehaviour }
func (Strategy) Kind() Kind  { return KindStrategy }

func (Move) isCommand()      {}
func (Ability) isCommand()   {}
func (Behaviour) isCommand() {}
func (Strategy) isCommand()  {}

// wire is the transport shape: a type tag plus the union of all fields.
// Pointers distinguish a missing field from a zero value.
type wire struct {
	Type       Kind    `json:"type"`
	DX         *int    `json:"dx"`
	DY         *int    `json:"dy"`
	AbilityIdx *int    `json:"ability_idx"`
	Target     *string `json:"target"`
	Behaviour  *string `json:"behaviour"`
	Strategy   *string `json:"strategy"`
}

// Decode parses a client message into a Command. Numeric fields must be JSON
// integers; fractional values fail to decode.
func Decode(data []byte) (Command, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch w.Type {
	case KindMove:
		if w.DX == nil || w.DY == nil {
			return nil, fmt.Errorf("%w: move requires dx and dy", ErrMalformed)
		}
		return Move{DX: *w.DX, DY: *w.DY}, nil
	case KindAbility:
		if w.AbilityIdx == nil {
			return nil, fmt.Errorf("%w: ability requires ability_idx", ErrMalformed)
		}
		cmd := Ability{Index: *w.AbilityIdx}
		if w.Target != nil {
			cmd.Target = *w.Target
		}
		return cmd, nil
	case KindBehaviour:
		if w.Behaviour == nil {
			return nil, fmt.Errorf("%w: behaviour requires a name", ErrMalformed)
		}
		return Behaviour{Name: *w.Behaviour}, nil
	case KindStrategy:
		if w.Strategy == nil {
			return nil, fmt.Errorf("%w: strategy requires a name", ErrMalformed)
		}
		return Strategy{Name: *w.Strategy}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, w.Type)
	}
}
