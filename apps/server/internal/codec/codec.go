package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"agent-arena/arena"
)

// Server envelope types.
const (
	TypeBattleSnapshot = "battleSnapshot"
	TypeRoundResult    = "roundResult"
	TypeBattleEnd      = "battleEnd"
	TypeBattleCreated  = "battleCreated"
	TypeError          = "error"
	TypeSubscribed     = "subscribed"
	TypeUnsubscribed   = "unsubscribed"
	TypePong           = "pong"
)

// Envelope fields.
const (
	fieldType       = "type"
	fieldBattleID   = "battleId"
	fieldServerSeq  = "serverSeq"
	fieldServerTsMs = "serverTsMs"
	fieldPayload    = "payload"
)

// Format selects the frame encoding for an envelope.
type Format int

const (
	FormatText Format = iota
	FormatBinary
)

func (f Format) String() string {
	if f == FormatBinary {
		return "binary"
	}
	return "text"
}

// WrapServerEnvelope creates an envelope with common fields. payload is any
// JSON-marshalable value; nil leaves the payload field out.
func WrapServerEnvelope(battleID string, serverSeq uint64, msgType string, payload any) (*structpb.Struct, error) {
	env := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldType:       structpb.NewStringValue(msgType),
		fieldBattleID:   structpb.NewStringValue(battleID),
		fieldServerSeq:  structpb.NewNumberValue(float64(serverSeq)),
		fieldServerTsMs: structpb.NewNumberValue(float64(time.Now().UnixMilli())),
	}}
	if payload != nil {
		v, err := toValue(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
		}
		env.Fields[fieldPayload] = v
	}
	return env, nil
}

func BattleSnapshotEnvelope(seq uint64, snap arena.BattleSnapshot) (*structpb.Struct, error) {
	return WrapServerEnvelope(snap.ID, seq, TypeBattleSnapshot, snap)
}

func RoundResultEnvelope(battleID string, seq uint64, r arena.RoundResult) (*structpb.Struct, error) {
	return WrapServerEnvelope(battleID, seq, TypeRoundResult, r)
}

// BattleEnd is the payload of a battleEnd envelope.
type BattleEnd struct {
	WinnerSide  arena.Side          `json:"winnerSide"`
	Winner      arena.AgentSnapshot `json:"winner"`
	Loser       arena.AgentSnapshot `json:"loser"`
	TotalRounds int                 `json:"totalRounds"`
	EndedAt     time.Time           `json:"endedAt"`
}

func BattleEndEnvelope(seq uint64, snap arena.BattleSnapshot) (*structpb.Struct, error) {
	winner, loser := snap.Winner(), snap.Loser()
	if winner == nil || loser == nil {
		return nil, fmt.Errorf("battle %s has no result", snap.ID)
	}
	end := BattleEnd{
		WinnerSide:  snap.WinnerSide,
		Winner:      *winner,
		Loser:       *loser,
		TotalRounds: snap.RoundNumber,
	}
	if snap.EndedAt != nil {
		end.EndedAt = *snap.EndedAt
	}
	return WrapServerEnvelope(snap.ID, seq, TypeBattleEnd, end)
}

// BattleCreated announces a new battle to every spectator, subscribed or not.
type BattleCreated struct {
	ArenaID   string              `json:"arenaId"`
	Agent1    arena.AgentSnapshot `json:"agent1"`
	Agent2    arena.AgentSnapshot `json:"agent2"`
	StartedAt time.Time           `json:"startedAt"`
}

// BattleCreatedEnvelope carries seq 0: announcements are not part of a
// battle's tape.
func BattleCreatedEnvelope(snap arena.BattleSnapshot) (*structpb.Struct, error) {
	return WrapServerEnvelope(snap.ID, 0, TypeBattleCreated, BattleCreated{
		ArenaID:   snap.ArenaID,
		Agent1:    snap.Agent1,
		Agent2:    snap.Agent2,
		StartedAt: snap.StartedAt,
	})
}

// ErrorResponse is the payload of an error envelope.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEnvelope never fails: its payload is two plain strings.
func ErrorEnvelope(battleID, code, message string) *structpb.Struct {
	env, _ := WrapServerEnvelope(battleID, 0, TypeError, ErrorResponse{Code: code, Message: message})
	return env
}

func SubscribedEnvelope(battleID string, subscribed bool) *structpb.Struct {
	t := TypeSubscribed
	if !subscribed {
		t = TypeUnsubscribed
	}
	env, _ := WrapServerEnvelope(battleID, 0, t, nil)
	return env
}

func PongEnvelope() *structpb.Struct {
	env, _ := WrapServerEnvelope("", 0, TypePong, nil)
	return env
}

// Marshal encodes an envelope for the wire.
func Marshal(env *structpb.Struct, format Format) ([]byte, error) {
	if format == FormatBinary {
		return proto.Marshal(env)
	}
	return protojson.Marshal(env)
}

// Unmarshal decodes a frame produced by Marshal.
func Unmarshal(data []byte, format Format) (*structpb.Struct, error) {
	env := &structpb.Struct{}
	var err error
	if format == FormatBinary {
		err = proto.Unmarshal(data, env)
	} else {
		err = protojson.Unmarshal(data, env)
	}
	if err != nil {
		return nil, err
	}
	return env, nil
}

func EnvelopeType(env *structpb.Struct) string {
	return stringField(env, fieldType)
}

func EnvelopeBattleID(env *structpb.Struct) string {
	return stringField(env, fieldBattleID)
}

func EnvelopeSeq(env *structpb.Struct) uint64 {
	return uint64(env.GetFields()[fieldServerSeq].GetNumberValue())
}

func EnvelopeTsMs(env *structpb.Struct) int64 {
	return int64(env.GetFields()[fieldServerTsMs].GetNumberValue())
}

// DecodePayload unmarshals the envelope payload into out via JSON.
func DecodePayload(env *structpb.Struct, out any) error {
	v, ok := env.GetFields()[fieldPayload]
	if !ok {
		return fmt.Errorf("envelope %q has no payload", EnvelopeType(env))
	}
	raw, err := protojson.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func DecodeRoundResult(env *structpb.Struct) (arena.RoundResult, error) {
	var r arena.RoundResult
	if t := EnvelopeType(env); t != TypeRoundResult {
		return r, fmt.Errorf("envelope type %q is not %s", t, TypeRoundResult)
	}
	err := DecodePayload(env, &r)
	return r, err
}

func stringField(env *structpb.Struct, name string) string {
	return env.GetFields()[name].GetStringValue()
}

func toValue(payload any) (*structpb.Value, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	v := &structpb.Value{}
	if err := protojson.Unmarshal(raw, v); err != nil {
		return nil, err
	}
	return v, nil
}
