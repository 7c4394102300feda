package replay

import (
	"fmt"

	"agent-arena/arena"
)

const tapeVersion = 1

// GenerateReplayTape re-runs the battle described by spec from its seed.
func GenerateReplayTape(spec BattleSpec) (*ReplayTape, error) {
	ns, err := normalizeSpec(spec)
	if err != nil {
		return nil, err
	}

	snap, err := arena.Simulate(ns.Seed, ns.Agent1, ns.Agent2, ns.MaxRounds)
	if err != nil {
		return nil, &ReplayError{StepIndex: -1, Reason: ReasonSimulation, Message: err.Error()}
	}

	return &ReplayTape{
		TapeVersion: tapeVersion,
		BattleID:    fmt.Sprintf("replay_%s_%d", ns.ArenaID, ns.Seed),
		Seed:        ns.Seed,
		Status:      snap.Status,
		WinnerSide:  snap.WinnerSide,
		Events:      snap.Events,
	}, nil
}

// Verify re-simulates spec and checks recorded round by round. Timestamps are
// not compared. A zero MaxRounds means "as many rounds as were recorded".
func Verify(spec BattleSpec, recorded []arena.RoundResult) error {
	if spec.MaxRounds <= 0 {
		spec.MaxRounds = len(recorded)
	}
	if spec.MaxRounds == 0 {
		if _, err := normalizeSpec(spec); err != nil {
			return err
		}
		return nil
	}

	tape, err := GenerateReplayTape(spec)
	if err != nil {
		return err
	}

	n := len(recorded)
	if len(tape.Events) < n {
		n = len(tape.Events)
	}
	for i := 0; i < n; i++ {
		if err := compareRound(int32(i), tape.Events[i], recorded[i]); err != nil {
			return err
		}
	}
	if len(tape.Events) != len(recorded) {
		step := int32(n)
		re := &ReplayError{
			StepIndex: step,
			Reason:    ReasonLengthMismatch,
			Message:   fmt.Sprintf("expected %d rounds, got %d", len(tape.Events), len(recorded)),
		}
		if n < len(tape.Events) {
			re.Expected = expectedFrom(tape.Events[n])
		}
		return re
	}
	return nil
}

func compareRound(step int32, want, got arena.RoundResult) error {
	switch {
	case want.Round != got.Round || want.Agent1Action != got.Agent1Action || want.Agent2Action != got.Agent2Action:
		return &ReplayError{
			StepIndex: step,
			Reason:    ReasonActionMismatch,
			Message: fmt.Sprintf("round %d: expected %s/%s, got round %d %s/%s",
				want.Round, want.Agent1Action, want.Agent2Action, got.Round, got.Agent1Action, got.Agent2Action),
			Expected: expectedFrom(want),
		}
	case want.Agent1Damage != got.Agent1Damage || want.Agent2Damage != got.Agent2Damage:
		return &ReplayError{
			StepIndex: step,
			Reason:    ReasonDamageMismatch,
			Message: fmt.Sprintf("round %d: expected damage %d/%d, got %d/%d",
				want.Round, want.Agent1Damage, want.Agent2Damage, got.Agent1Damage, got.Agent2Damage),
			Expected: expectedFrom(want),
		}
	case want.Agent1Health != got.Agent1Health || want.Agent2Health != got.Agent2Health ||
		want.Agent1Stamina != got.Agent1Stamina || want.Agent2Stamina != got.Agent2Stamina:
		return &ReplayError{
			StepIndex: step,
			Reason:    ReasonHealthMismatch,
			Message: fmt.Sprintf("round %d: expected health %d/%d, got %d/%d",
				want.Round, want.Agent1Health, want.Agent2Health, got.Agent1Health, got.Agent2Health),
			Expected: expectedFrom(want),
		}
	}
	return nil
}
