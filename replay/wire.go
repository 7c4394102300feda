package replay

import "agent-arena/arena"

// WireReplayTape is the camelCase form served to web clients.
type WireReplayTape struct {
	TapeVersion int               `json:"tapeVersion"`
	BattleID    string            `json:"battleId"`
	Seed        int64             `json:"seed,string"`
	Status      arena.Status      `json:"status"`
	WinnerSide  arena.Side        `json:"winnerSide,omitempty"`
	Events      []WireReplayEvent `json:"events"`
}

type WireReplayEvent struct {
	Round        int          `json:"round"`
	Agent1Action arena.Action `json:"agent1Action"`
	Agent2Action arena.Action `json:"agent2Action"`
	Agent1Damage int          `json:"agent1Damage"`
	Agent2Damage int          `json:"agent2Damage"`
	Agent1Health int          `json:"agent1Health"`
	Agent2Health int          `json:"agent2Health"`
}

func ToWireReplayTape(tape *ReplayTape) *WireReplayTape {
	if tape == nil {
		return nil
	}
	out := &WireReplayTape{
		TapeVersion: tape.TapeVersion,
		BattleID:    tape.BattleID,
		Seed:        tape.Seed,
		Status:      tape.Status,
		WinnerSide:  tape.WinnerSide,
		Events:      make([]WireReplayEvent, 0, len(tape.Events)),
	}
	for _, e := range tape.Events {
		out.Events = append(out.Events, WireReplayEvent{
			Round:        e.Round,
			Agent1Action: e.Agent1Action,
			Agent2Action: e.Agent2Action,
			Agent1Damage: e.Agent1Damage,
			Agent2Damage: e.Agent2Damage,
			Agent1Health: e.Agent1Health,
			Agent2Health: e.Agent2Health,
		})
	}
	return out
}
