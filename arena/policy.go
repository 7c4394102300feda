package arena

// Rand is the random source consumed by policies and the resolver.
// *math/rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// CombatView is the read-only projection of a round visible to one side.
type CombatView struct {
	Health         int
	Stamina        int
	OpponentHealth int
	Market         MarketContext
}

// decisionRule is one guard in the ordered rule chain. The first rule whose
// applies returns true chooses the action.
type decisionRule struct {
	name    string
	applies func(p *DecisionPolicy, v CombatView) bool
	choose  func(p *DecisionPolicy, v CombatView) Action
}

var decisionRules = []decisionRule{
	{
		name: "self_critical",
		applies: func(_ *DecisionPolicy, v CombatView) bool {
			return v.Health < CriticalHealth
		},
		choose: func(p *DecisionPolicy, _ CombatView) Action {
			if p.rng.Float64() < p.profile.Defense {
				return ActionBlock
			}
			return ActionDodge
		},
	},
	{
		name: "opponent_critical",
		applies: func(_ *DecisionPolicy, v CombatView) bool {
			return v.OpponentHealth < CriticalHealth
		},
		choose: func(p *DecisionPolicy, v CombatView) Action {
			// Both outcomes of the aggression draw end in attack unless the
			// nested special check passes.
			if p.rng.Float64() < p.profile.Aggression {
				if v.Stamina > 50 && p.rng.Float64() < 0.3 {
					return ActionSpecial
				}
				return ActionAttack
			}
			return ActionAttack
		},
	},
	{
		name: "stamina_surplus",
		applies: func(p *DecisionPolicy, v CombatView) bool {
			return v.Stamina > 70 && p.rng.Float64() < 0.2
		},
		choose: func(_ *DecisionPolicy, _ CombatView) Action {
			return ActionSpecial
		},
	},
	{
		name: "default",
		applies: func(_ *DecisionPolicy, _ CombatView) bool {
			return true
		},
		choose: func(p *DecisionPolicy, _ CombatView) Action {
			return WeightedChoice(p.rng,
				[]Action{ActionAttack, ActionBlock, ActionDodge},
				[]float64{p.profile.Aggression, p.profile.Defense, p.profile.Speed},
			)
		},
	},
}

// DecisionPolicy picks one action per round for a single side.
type DecisionPolicy struct {
	profile PersonalityProfile
	rng     Rand
}

func NewDecisionPolicy(profile PersonalityProfile, rng Rand) *DecisionPolicy {
	return &DecisionPolicy{profile: profile, rng: rng}
}

// Decide walks the rule chain and returns the first matching rule's action.
// The market context is accepted but does not influence the choice.
func (p *DecisionPolicy) Decide(view CombatView) Action {
	action, _ := p.decide(view)
	return action
}

func (p *DecisionPolicy) decide(view CombatView) (Action, string) {
	for _, rule := range decisionRules {
		if rule.applies(p, view) {
			return rule.choose(p, view), rule.name
		}
	}
	return ActionAttack, "fallback"
}

// Rules returns the rule names in evaluation order.
func (p *DecisionPolicy) Rules() []string {
	names := make([]string, 0, len(decisionRules))
	for _, rule := range decisionRules {
		names = append(names, rule.name)
	}
	return names
}

// WeightedChoice draws one action with probability proportional to its weight.
// Weights need not sum to 1. A non-positive total yields the first action.
func WeightedChoice(r Rand, actions []Action, weights []float64) Action {
	if len(actions) == 0 {
		return ActionAttack
	}
	total := 0.0
	for i := range actions {
		if i < len(weights) && weights[i] > 0 {
			total += weights[i]
		}
	}
	if total <= 0 {
		return actions[0]
	}
	roll := r.Float64() * total
	cumulative := 0.0
	last := actions[0]
	for i, a := range actions {
		if i >= len(weights) || weights[i] <= 0 {
			continue
		}
		cumulative += weights[i]
		last = a
		if roll < cumulative {
			return a
		}
	}
	return last
}
