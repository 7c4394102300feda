package replay

import "agent-arena/arena"

// BattleSpec is everything needed to re-run a battle bit for bit.
type BattleSpec struct {
	Seed      int64                 `json:"seed,string"`
	ArenaID   string                `json:"arena_id,omitempty"`
	Agent1    arena.AgentDescriptor `json:"agent1"`
	Agent2    arena.AgentDescriptor `json:"agent2"`
	MaxRounds int                   `json:"max_rounds,omitempty"`
}

// SpecFromSnapshot rebuilds the BattleSpec of a live or finished battle, capped at
// the rounds it has played so far.
func SpecFromSnapshot(s arena.BattleSnapshot) BattleSpec {
	return BattleSpec{
		Seed:      s.Seed,
		ArenaID:   s.ArenaID,
		Agent1:    descriptorOf(s.Agent1),
		Agent2:    descriptorOf(s.Agent2),
		MaxRounds: s.RoundNumber,
	}
}

func descriptorOf(a arena.AgentSnapshot) arena.AgentDescriptor {
	return arena.AgentDescriptor{ID: a.AgentID, Name: a.DisplayName, Type: a.Archetype, Level: a.Level}
}

type ReplayTape struct {
	TapeVersion int                 `json:"tape_version"`
	BattleID    string              `json:"battle_id"`
	Seed        int64               `json:"seed,string"`
	Status      arena.Status        `json:"status"`
	WinnerSide  arena.Side          `json:"winner_side,omitempty"`
	Events      []arena.RoundResult `json:"events"`
}
