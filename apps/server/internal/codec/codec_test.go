package codec

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"agent-arena/arena"
)

func sampleRound() arena.RoundResult {
	return arena.RoundResult{
		Round:         3,
		Agent1Action:  arena.ActionAttack,
		Agent2Action:  arena.ActionSpecial,
		Agent1Damage:  12,
		Agent2Damage:  40,
		Agent1Health:  22,
		Agent2Health:  71,
		Agent1Stamina: 70,
		Agent2Stamina: 50,
		Timestamp:     time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}
}

func TestRoundResultEnvelope_BothFormats(t *testing.T) {
	env, err := RoundResultEnvelope("b-1", 7, sampleRound())
	if err != nil {
		t.Fatalf("RoundResultEnvelope: %v", err)
	}
	for _, format := range []Format{FormatText, FormatBinary} {
		raw, err := Marshal(env, format)
		if err != nil {
			t.Fatalf("%s marshal: %v", format, err)
		}
		decoded, err := Unmarshal(raw, format)
		if err != nil {
			t.Fatalf("%s unmarshal: %v", format, err)
		}
		if EnvelopeType(decoded) != TypeRoundResult || EnvelopeBattleID(decoded) != "b-1" || EnvelopeSeq(decoded) != 7 {
			t.Fatalf("%s header mismatch: %v", format, decoded)
		}
		if EnvelopeTsMs(decoded) <= 0 {
			t.Fatalf("%s missing server timestamp", format)
		}
		got, err := DecodeRoundResult(decoded)
		if err != nil {
			t.Fatalf("%s DecodeRoundResult: %v", format, err)
		}
		if diff := cmp.Diff(sampleRound(), got); diff != "" {
			t.Fatalf("%s round result mismatch (-want +got):\n%s", format, diff)
		}
	}
}

func TestBattleSnapshotEnvelope_PreservesSeed(t *testing.T) {
	r, err := arena.NewRegistry(arena.Config{Seed: 1})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	a := arena.AgentDescriptor{ID: "a", Name: "A", Type: arena.ArchetypeBitcoin}
	b := arena.AgentDescriptor{ID: "b", Name: "B", Type: arena.ArchetypeEthereum}
	snap, err := r.CreateBattleWithSeed(a, b, "", 9007199254740993)
	if err != nil {
		t.Fatalf("CreateBattleWithSeed: %v", err)
	}

	env, err := BattleSnapshotEnvelope(1, snap)
	if err != nil {
		t.Fatalf("BattleSnapshotEnvelope: %v", err)
	}
	raw, _ := Marshal(env, FormatBinary)
	decoded, err := Unmarshal(raw, FormatBinary)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	var got arena.BattleSnapshot
	if err := DecodePayload(decoded, &got); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if got.Seed != snap.Seed || got.ID != snap.ID || got.Agent2.Archetype != arena.ArchetypeEthereum {
		t.Fatalf("snapshot mismatch: %+v", got)
	}
}

func TestBattleEndEnvelope_RequiresResult(t *testing.T) {
	if _, err := BattleEndEnvelope(1, arena.BattleSnapshot{ID: "active"}); err == nil {
		t.Fatalf("expected error for unfinished battle")
	}
	snap := arena.BattleSnapshot{
		ID:          "done",
		Agent1:      arena.AgentSnapshot{AgentID: "a"},
		Agent2:      arena.AgentSnapshot{AgentID: "b"},
		RoundNumber: 9,
		Status:      arena.StatusCompleted,
		WinnerSide:  arena.Side2,
	}
	env, err := BattleEndEnvelope(2, snap)
	if err != nil {
		t.Fatalf("BattleEndEnvelope: %v", err)
	}
	var end BattleEnd
	if err := DecodePayload(env, &end); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if end.Winner.AgentID != "b" || end.Loser.AgentID != "a" || end.TotalRounds != 9 {
		t.Fatalf("unexpected battle end: %+v", end)
	}
}

func TestErrorAndControlEnvelopes(t *testing.T) {
	env := ErrorEnvelope("x", "NOT_FOUND", "battle not found")
	var resp ErrorResponse
	if err := DecodePayload(env, &resp); err != nil || resp.Code != "NOT_FOUND" {
		t.Fatalf("error payload: %+v err=%v", resp, err)
	}
	if EnvelopeType(SubscribedEnvelope("x", false)) != TypeUnsubscribed {
		t.Fatalf("unsubscribed type mismatch")
	}
	if EnvelopeType(PongEnvelope()) != TypePong {
		t.Fatalf("pong type mismatch")
	}
	if err := DecodePayload(PongEnvelope(), &resp); err == nil {
		t.Fatalf("expected error decoding missing payload")
	}
	if _, err := DecodeRoundResult(env); err == nil {
		t.Fatalf("expected type mismatch error")
	}
}

func TestBattleCreatedEnvelope(t *testing.T) {
	snap := arena.BattleSnapshot{
		ID:        "battle-7",
		ArenaID:   "parking-lot",
		Agent1:    arena.AgentSnapshot{AgentID: "a", DisplayName: "A", Archetype: "bitcoin", Health: 100, Stamina: 100},
		Agent2:    arena.AgentSnapshot{AgentID: "b", DisplayName: "B", Archetype: "altcoin", Health: 100, Stamina: 100},
		StartedAt: time.Unix(1700000000, 0).UTC(),
	}
	env, err := BattleCreatedEnvelope(snap)
	if err != nil {
		t.Fatalf("BattleCreatedEnvelope: %v", err)
	}
	if EnvelopeType(env) != TypeBattleCreated || EnvelopeBattleID(env) != "battle-7" || EnvelopeSeq(env) != 0 {
		t.Fatalf("envelope header: type=%s id=%s seq=%d", EnvelopeType(env), EnvelopeBattleID(env), EnvelopeSeq(env))
	}
	var got BattleCreated
	if err := DecodePayload(env, &got); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if got.ArenaID != "parking-lot" || got.Agent2.Archetype != "altcoin" || !got.StartedAt.Equal(snap.StartedAt) {
		t.Fatalf("payload = %+v", got)
	}
}

func TestClientEnvelope_RoundTrip(t *testing.T) {
	msg := ClientEnvelope{
		Type:     ClientCreateBattle,
		Agent1ID: "tyler-durden",
		Agent2:   &arena.AgentDescriptor{ID: "x", Name: "X", Type: arena.ArchetypeAltcoin, Level: 3},
		ArenaID:  "rooftop",
		Autoplay: true,
	}
	for _, format := range []Format{FormatText, FormatBinary} {
		raw, err := EncodeClient(msg, format)
		if err != nil {
			t.Fatalf("%s EncodeClient: %v", format, err)
		}
		got, err := DecodeClient(raw, format)
		if err != nil {
			t.Fatalf("%s DecodeClient: %v", format, err)
		}
		if diff := cmp.Diff(msg, got); diff != "" {
			t.Fatalf("%s mismatch (-want +got):\n%s", format, diff)
		}
	}
	if _, err := DecodeClient([]byte(`{"battleId":"x"}`), FormatText); err == nil {
		t.Fatalf("expected missing type error")
	}
	if _, err := DecodeClient([]byte{0xff, 0x01}, FormatBinary); err == nil {
		t.Fatalf("expected binary decode error")
	}
}
