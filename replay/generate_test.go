package replay

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"agent-arena/arena"
)

func TestGenerateReplayTape_IsDeterministic(t *testing.T) {
	spec := baseBattleSpec()

	tapeA, err := GenerateReplayTape(spec)
	if err != nil {
		t.Fatalf("GenerateReplayTape A failed: %v", err)
	}
	tapeB, err := GenerateReplayTape(spec)
	if err != nil {
		t.Fatalf("GenerateReplayTape B failed: %v", err)
	}
	if diff := cmp.Diff(tapeA, tapeB); diff != "" {
		t.Fatalf("expected deterministic replay tape (-a +b):\n%s", diff)
	}
	if len(tapeA.Events) == 0 || tapeA.Status != arena.StatusCompleted {
		t.Fatalf("expected a finished battle, got %d events status %s", len(tapeA.Events), tapeA.Status)
	}
	if tapeA.BattleID != "replay_basement-1_1234" {
		t.Fatalf("unexpected battle id %s", tapeA.BattleID)
	}
}

func TestGenerateReplayTape_RejectsInvalidAgent(t *testing.T) {
	spec := baseBattleSpec()
	spec.Agent2.Name = ""

	_, err := GenerateReplayTape(spec)
	var replayErr *ReplayError
	if !errors.As(err, &replayErr) {
		t.Fatalf("expected ReplayError, got %T", err)
	}
	if replayErr.Reason != ReasonInvalidAgent || replayErr.StepIndex != -1 {
		t.Fatalf("unexpected error: %+v", replayErr)
	}
}

func TestVerify_AcceptsRecordedBattle(t *testing.T) {
	r, err := arena.NewRegistry(arena.Config{Seed: 5})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	spec := baseBattleSpec()
	created, err := r.CreateBattleWithSeed(spec.Agent1, spec.Agent2, "", spec.Seed)
	if err != nil {
		t.Fatalf("CreateBattleWithSeed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := r.AdvanceRound(created.ID); err != nil {
			t.Fatalf("AdvanceRound: %v", err)
		}
	}
	live, _ := r.GetBattle(created.ID)

	if err := Verify(SpecFromSnapshot(live), live.Events); err != nil {
		t.Fatalf("live prefix failed verification: %v", err)
	}
}

func TestVerify_ReportsFirstDivergence(t *testing.T) {
	spec := baseBattleSpec()
	tape, err := GenerateReplayTape(spec)
	if err != nil {
		t.Fatalf("GenerateReplayTape: %v", err)
	}

	tests := []struct {
		name   string
		mutate func([]arena.RoundResult) []arena.RoundResult
		reason string
		step   int32
	}{
		{"action", func(ev []arena.RoundResult) []arena.RoundResult {
			ev[1].Agent1Action = flip(ev[1].Agent1Action)
			return ev
		}, ReasonActionMismatch, 1},
		{"damage", func(ev []arena.RoundResult) []arena.RoundResult {
			ev[2].Agent2Damage += 3
			return ev
		}, ReasonDamageMismatch, 2},
		{"health", func(ev []arena.RoundResult) []arena.RoundResult {
			ev[0].Agent1Health = 1
			return ev
		}, ReasonHealthMismatch, 0},
		{"truncated", func(ev []arena.RoundResult) []arena.RoundResult {
			return ev[:len(ev)-1]
		}, ReasonLengthMismatch, -2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorded := tc.mutate(append([]arena.RoundResult(nil), tape.Events...))
			s := spec
			s.MaxRounds = len(tape.Events)
			err := Verify(s, recorded)
			var replayErr *ReplayError
			if !errors.As(err, &replayErr) {
				t.Fatalf("expected ReplayError, got %v", err)
			}
			if replayErr.Reason != tc.reason {
				t.Fatalf("reason = %s, want %s", replayErr.Reason, tc.reason)
			}
			want := tc.step
			if want == -2 {
				want = int32(len(tape.Events) - 1)
			}
			if replayErr.StepIndex != want {
				t.Fatalf("step = %d, want %d", replayErr.StepIndex, want)
			}
			if replayErr.Expected == nil {
				t.Fatalf("expected state missing")
			}
		})
	}
}

func TestVerify_EmptyBattleIsConsistent(t *testing.T) {
	if err := Verify(baseBattleSpec(), nil); err != nil {
		t.Fatalf("empty battle: %v", err)
	}
}

func TestToWireReplayTape(t *testing.T) {
	tape, err := GenerateReplayTape(baseBattleSpec())
	if err != nil {
		t.Fatalf("GenerateReplayTape: %v", err)
	}
	wire := ToWireReplayTape(tape)
	if len(wire.Events) != len(tape.Events) || wire.WinnerSide != tape.WinnerSide {
		t.Fatalf("wire tape mismatch")
	}
	if ToWireReplayTape(nil) != nil {
		t.Fatalf("nil tape should map to nil")
	}
}

func flip(a arena.Action) arena.Action {
	if a == arena.ActionAttack {
		return arena.ActionBlock
	}
	return arena.ActionAttack
}

func baseBattleSpec() BattleSpec {
	return BattleSpec{
		Seed:   1234,
		Agent1: arena.AgentDescriptor{ID: "tyler-durden", Name: "Tyler Durden", Type: arena.ArchetypeBitcoin},
		Agent2: arena.AgentDescriptor{ID: "marla-singer", Name: "Marla Singer", Type: arena.ArchetypeEthereum},
	}
}
