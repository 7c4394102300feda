package replay

import (
	"fmt"

	"agent-arena/arena"
)

type ReplayError struct {
	StepIndex int32          `json:"step_index"`
	Reason    string         `json:"reason"`
	Message   string         `json:"message"`
	Expected  *ExpectedState `json:"expected,omitempty"`
}

// ExpectedState is what the re-simulation produced at the diverging step.
type ExpectedState struct {
	Round        int          `json:"round"`
	Agent1Action arena.Action `json:"agent1_action,omitempty"`
	Agent2Action arena.Action `json:"agent2_action,omitempty"`
	Agent1Damage int          `json:"agent1_damage"`
	Agent2Damage int          `json:"agent2_damage"`
	Agent1Health int          `json:"agent1_health"`
	Agent2Health int          `json:"agent2_health"`
}

func (e *ReplayError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("replay error(step=%d reason=%s): %s", e.StepIndex, e.Reason, e.Message)
}

const (
	ReasonInvalidAgent   = "invalid_agent"
	ReasonSimulation     = "simulation_failed"
	ReasonLengthMismatch = "length_mismatch"
	ReasonActionMismatch = "action_mismatch"
	ReasonDamageMismatch = "damage_mismatch"
	ReasonHealthMismatch = "health_mismatch"
)

func expectedFrom(r arena.RoundResult) *ExpectedState {
	return &ExpectedState{
		Round:        r.Round,
		Agent1Action: r.Agent1Action,
		Agent2Action: r.Agent2Action,
		Agent1Damage: r.Agent1Damage,
		Agent2Damage: r.Agent2Damage,
		Agent1Health: r.Agent1Health,
		Agent2Health: r.Agent2Health,
	}
}
