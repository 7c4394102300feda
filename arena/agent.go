package arena

import (
	"fmt"
	"strings"
)

// Validate reports ErrInvalidInput when id, name or type is blank.
func (d AgentDescriptor) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: agent id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: agent %s: name is required", ErrInvalidInput, d.ID)
	}
	if strings.TrimSpace(d.Type) == "" {
		return fmt.Errorf("%w: agent %s: type is required", ErrInvalidInput, d.ID)
	}
	return nil
}

// AgentCombatState is one side's mutable state inside a battle. Only the
// resolver changes Health and Stamina.
type AgentCombatState struct {
	AgentID     string
	DisplayName string
	Archetype   string
	Level       int
	Health      int
	Stamina     int

	policy *DecisionPolicy
}

func newAgentCombatState(d AgentDescriptor, rng Rand) *AgentCombatState {
	return &AgentCombatState{
		AgentID:     d.ID,
		DisplayName: d.Name,
		Archetype:   d.Type,
		Level:       d.Level,
		Health:      MaxHealth,
		Stamina:     MaxStamina,
		policy:      NewDecisionPolicy(ProfileFor(d.Type), rng),
	}
}

func (a *AgentCombatState) profile() PersonalityProfile {
	if a.policy == nil {
		return ProfileFor(a.Archetype)
	}
	return a.policy.profile
}

func (a *AgentCombatState) view(opponent *AgentCombatState, market MarketSnapshot) CombatView {
	return CombatView{
		Health:         a.Health,
		Stamina:        a.Stamina,
		OpponentHealth: opponent.Health,
		Market:         market.contextFor(a.Archetype),
	}
}

// AgentSnapshot is a copy of an AgentCombatState safe to hand to callers.
type AgentSnapshot struct {
	AgentID     string             `json:"agentId"`
	DisplayName string             `json:"displayName"`
	Archetype   string             `json:"archetype"`
	Level       int                `json:"level,omitempty"`
	Health      int                `json:"health"`
	Stamina     int                `json:"stamina"`
	Personality PersonalityProfile `json:"personality"`
}

func (a *AgentCombatState) snapshot() AgentSnapshot {
	return AgentSnapshot{
		AgentID:     a.AgentID,
		DisplayName: a.DisplayName,
		Archetype:   a.Archetype,
		Level:       a.Level,
		Health:      a.Health,
		Stamina:     a.Stamina,
		Personality: a.profile(),
	}
}
