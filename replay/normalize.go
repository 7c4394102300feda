package replay

import "agent-arena/arena"

func normalizeSpec(spec BattleSpec) (BattleSpec, error) {
	if err := spec.Agent1.Validate(); err != nil {
		return spec, &ReplayError{StepIndex: -1, Reason: ReasonInvalidAgent, Message: err.Error()}
	}
	if err := spec.Agent2.Validate(); err != nil {
		return spec, &ReplayError{StepIndex: -1, Reason: ReasonInvalidAgent, Message: err.Error()}
	}
	if spec.MaxRounds <= 0 {
		spec.MaxRounds = arena.DefaultMaxRounds
	}
	if spec.ArenaID == "" {
		spec.ArenaID = arena.DefaultArenaID
	}
	return spec, nil
}
