package skirmish

import (
	"fmt"

	"github.com/ernie/swarm-arena/internal/engine"
)

type agent struct {
	battle    *Battle
	id        string
	name      string
	team      string
	x, y      int
	hp        int
	behaviour string
	isPlayer  bool
	cooldowns []int
}

var _ engine.Entity = (*agent)(nil)

func (a *agent) ID() string { return a.id }

func (a *agent) AbilityCount() int { return len(loadout) }

func (a *agent) alive() bool { return a.hp > 0 }

func (a *agent) Move(dx, dy int) {
	if !a.alive() {
		return
	}
	a.x = clamp(a.x+dx, 0, Width-1)
	a.y = clamp(a.y+dy, 0, Height-1)
}

// UseAbility fires the ability at index. An empty target picks the first
// standing enemy (or self, for heals).
func (a *agent) UseAbility(index int, target string) engine.AbilityResult {
	if index < 0 || index >= len(loadout) {
		return engine.AbilityResult{Message: "no such ability"}
	}
	ab := loadout[index]
	res := engine.AbilityResult{Ability: ab.name}
	if !a.alive() {
		res.Message = "agent is down"
		return res
	}
	if a.cooldowns[index] > 0 {
		res.Message = fmt.Sprintf("%s on cooldown for %d ticks", ab.name, a.cooldowns[index])
		return res
	}

	if ab.heal > 0 {
		healed := min(ab.heal, maxHP-a.hp)
		a.hp += healed
		res.Target = a.id
		res.Healed = healed
	} else {
		victim := a.battle.enemyOf(a, false)
		if target != "" {
			if e, ok := a.battle.Entity(target); ok {
				if t := e.(*agent); t.team != a.team && t.alive() {
					victim = t
				}
			}
		}
		if victim == nil {
			res.Message = "no target"
			return res
		}
		dealt := victim.takeDamage(ab.damage)
		a.battle.scores[a.team] += dealt
		res.Target = victim.id
		res.Damage = dealt
	}
	a.cooldowns[index] = ab.cooldown
	return res
}

func (a *agent) SetBehaviour(name string) {
	if engine.IsBehaviour(name) {
		a.behaviour = name
	}
}

func (a *agent) DeviseStrategy(name string) string {
	weakest := a.battle.enemyOf(a, true)
	if weakest == nil {
		return fmt.Sprintf("%s: no enemies remain", name)
	}
	return fmt.Sprintf("%s: %s suggests focusing %s (%d hp)", name, a.name, weakest.name, weakest.hp)
}

// act performs the agent's automatic action for an attack tick.
func (a *agent) act() {
	switch a.behaviour {
	case "retreat":
		dir := -1
		if a.team == TeamOmega {
			dir = 1
		}
		a.Move(dir, 0)
		return
	case "support":
		if ally := a.battle.weakestAlly(a); ally != nil && ally.hp < maxHP {
			ally.hp = min(maxHP, ally.hp+supportHeal)
			return
		}
	}

	power := baseAttack
	switch a.behaviour {
	case "aggressive":
		power += baseAttack / 5
	case "defensive":
		power /= 2
	}
	victim := a.battle.enemyOf(a, a.behaviour == "flank")
	if victim == nil {
		return
	}
	a.battle.scores[a.team] += victim.takeDamage(power)
}

func (a *agent) takeDamage(amount int) int {
	if a.behaviour == "defensive" {
		amount /= 2
	}
	amount = min(amount, a.hp)
	a.hp -= amount
	return amount
}

func (a *agent) state() engine.EntityState {
	return engine.EntityState{
		ID:        a.id,
		Name:      a.name,
		Team:      a.team,
		X:         a.x,
		Y:         a.y,
		HP:        a.hp,
		MaxHP:     maxHP,
		Behaviour: a.behaviour,
		IsPlayer:  a.isPlayer,
	}
}
