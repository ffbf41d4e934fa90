// Package skirmish is a small deterministic two-team battle used as the default
// engine behind the arena server. Combat is intentionally plain: every few ticks
// each living agent strikes an enemy according to its behaviour, and the first
// team left standing wins.
package skirmish

import (
	"fmt"

	"github.com/ernie/swarm-arena/internal/engine"
)

const (
	TeamAlpha = "alpha"
	TeamOmega = "omega"

	Width  = 32
	Height = 24

	maxHP       = 200
	baseAttack  = 10
	attackEvery = 5
	supportHeal = 5
)

type ability struct {
	name     string
	damage   int
	heal     int
	cooldown int
}

var loadout = []ability{
	{name: "strike", damage: 30, cooldown: 3},
	{name: "mend", heal: 20, cooldown: 6},
	{name: "volley", damage: 15, cooldown: 4},
}

// Battle implements engine.Engine.
type Battle struct {
	id       string
	tick     uint64
	agents   []*agent
	scores   map[string]int
	winner   string
	playerID string
}

var _ engine.Engine = (*Battle)(nil)

// New creates a battle with numMobs agents split across both teams. The first
// alpha agent is reserved for a human player.
func New(battleID string, numMobs int) *Battle {
	perTeam := numMobs / 2
	if perTeam < 1 {
		perTeam = 1
	}
	b := &Battle{
		id:     battleID,
		scores: map[string]int{TeamAlpha: 0, TeamOmega: 0},
	}
	for i := 0; i < perTeam; i++ {
		b.agents = append(b.agents, b.newAgent(TeamAlpha, i, 2, 2+i*2))
	}
	for i := 0; i < perTeam; i++ {
		b.agents = append(b.agents, b.newAgent(TeamOmega, i, Width-3, 2+i*2))
	}
	b.agents[0].isPlayer = true
	b.playerID = b.agents[0].id
	return b
}

// Factory adapts New to engine.Factory.
func Factory(battleID string, numMobs int) engine.Engine {
	return New(battleID, numMobs)
}

func (b *Battle) newAgent(team string, idx, x, y int) *agent {
	return &agent{
		battle:    b,
		id:        fmt.Sprintf("%s-%d", team, idx),
		name:      fmt.Sprintf("%s %d", team, idx+1),
		team:      team,
		x:         clamp(x, 0, Width-1),
		y:         clamp(y, 0, Height-1),
		hp:        maxHP,
		behaviour: "aggressive",
		cooldowns: make([]int, len(loadout)),
	}
}

// Advance runs one tick. Once a winner exists the battle is frozen and the
// final state is returned unchanged.
func (b *Battle) Advance() engine.Snapshot {
	if b.winner != "" {
		return b.Snapshot()
	}
	b.tick++

	for _, a := range b.agents {
		for i := range a.cooldowns {
			if a.cooldowns[i] > 0 {
				a.cooldowns[i]--
			}
		}
	}

	if b.tick%attackEvery == 0 {
		for _, a := range b.agents {
			if a.alive() {
				a.act()
			}
		}
	}

	switch {
	case b.teamAlive(TeamAlpha) && !b.teamAlive(TeamOmega):
		b.winner = TeamAlpha
	case b.teamAlive(TeamOmega) && !b.teamAlive(TeamAlpha):
		b.winner = TeamOmega
	}
	return b.Snapshot()
}

// Snapshot returns the current state. Maps and slices are freshly allocated so
// callers may share the result across goroutines.
func (b *Battle) Snapshot() engine.Snapshot {
	snap := engine.Snapshot{
		Tick:     b.tick,
		Scores:   make(map[string]int, len(b.scores)),
		Entities: make([]engine.EntityState, 0, len(b.agents)),
		Winner:   b.winner,
	}
	for team, score := range b.scores {
		snap.Scores[team] = score
	}
	for _, a := range b.agents {
		snap.Entities = append(snap.Entities, a.state())
	}
	return snap
}

func (b *Battle) Winner() (string, bool) {
	return b.winner, b.winner != ""
}

func (b *Battle) PlayerEntity() engine.Entity {
	e, _ := b.Entity(b.playerID)
	return e
}

func (b *Battle) Entity(id string) (engine.Entity, bool) {
	for _, a := range b.agents {
		if a.id == id {
			return a, true
		}
	}
	return nil, false
}

func (b *Battle) teamAlive(team string) bool {
	for _, a := range b.agents {
		if a.team == team && a.alive() {
			return true
		}
	}
	return false
}

// enemyOf picks a target for a. Flankers go after the weakest enemy, everyone
// else after the first one still standing.
func (b *Battle) enemyOf(a *agent, weakest bool) *agent {
	var target *agent
	for _, other := range b.agents {
		if other.team == a.team || !other.alive() {
			continue
		}
		if target == nil {
			target = other
			if !weakest {
				return target
			}
			continue
		}
		if other.hp < target.hp {
			target = other
		}
	}
	return target
}

func (b *Battle) weakestAlly(a *agent) *agent {
	var target *agent
	for _, other := range b.agents {
		if other.team != a.team || !other.alive() {
			continue
		}
		if target == nil || other.hp < target.hp {
			target = other
		}
	}
	return target
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
