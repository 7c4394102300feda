package arena

import (
	"math"
	"time"
)

var baseDamage = map[Action]int{
	ActionAttack:  15,
	ActionSpecial: 25,
	ActionBlock:   0,
	ActionDodge:   0,
}

var staminaCost = map[Action]int{
	ActionAttack:  10,
	ActionSpecial: 25,
	ActionBlock:   5,
	ActionDodge:   8,
}

const defaultStaminaCost = 10

func BaseDamage(a Action) int {
	return baseDamage[a]
}

// DamageMultiplier is the personality modifier applied before jitter.
func DamageMultiplier(a Action, p PersonalityProfile) float64 {
	switch a {
	case ActionAttack:
		return 0.8 + p.Aggression*0.4
	case ActionSpecial:
		return 1.2 + p.Aggression*0.6
	default:
		return 1.0
	}
}

func StaminaCost(a Action) int {
	if c, ok := staminaCost[a]; ok {
		return c
	}
	return defaultStaminaCost
}

// CombatResolver turns two chosen actions into damage and stamina changes.
type CombatResolver struct {
	rng Rand
}

func NewCombatResolver(rng Rand) *CombatResolver {
	return &CombatResolver{rng: rng}
}

// ComputeDamage returns floor(base * multiplier * jitter) with jitter in
// [0.8, 1.2). One jitter draw is consumed for every action.
func (r *CombatResolver) ComputeDamage(a Action, p PersonalityProfile) int {
	jitter := 0.8 + r.rng.Float64()*0.4
	dmg := int(math.Floor(float64(BaseDamage(a)) * DamageMultiplier(a, p) * jitter))
	if dmg < 0 {
		return 0
	}
	return dmg
}

// Resolve applies both sides' actions simultaneously. Damage for both sides is
// computed before either state is touched.
func (r *CombatResolver) Resolve(round int, a1, a2 *AgentCombatState, act1, act2 Action, now time.Time) RoundResult {
	dmg1 := r.ComputeDamage(act1, a1.profile())
	dmg2 := r.ComputeDamage(act2, a2.profile())

	a1.Health = floorZero(a1.Health - dmg2)
	a2.Health = floorZero(a2.Health - dmg1)

	a1.Stamina = floorZero(a1.Stamina - StaminaCost(act1))
	a2.Stamina = floorZero(a2.Stamina - StaminaCost(act2))

	return RoundResult{
		Round:         round,
		Agent1Action:  act1,
		Agent2Action:  act2,
		Agent1Damage:  dmg1,
		Agent2Damage:  dmg2,
		Agent1Health:  a1.Health,
		Agent2Health:  a2.Health,
		Agent1Stamina: a1.Stamina,
		Agent2Stamina: a2.Stamina,
		Timestamp:     now,
	}
}

func floorZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
