package codec

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"agent-arena/arena"
)

// Client message types.
const (
	ClientSubscribe    = "subscribe"
	ClientUnsubscribe  = "unsubscribe"
	ClientCreateBattle = "createBattle"
	ClientAdvanceRound = "advanceRound"
	ClientPing         = "ping"
)

// ClientEnvelope is a decoded client frame. Agents may be given either by
// roster id or inline.
type ClientEnvelope struct {
	Type     string                 `json:"type"`
	BattleID string                 `json:"battleId,omitempty"`
	ArenaID  string                 `json:"arenaId,omitempty"`
	Agent1ID string                 `json:"agent1Id,omitempty"`
	Agent2ID string                 `json:"agent2Id,omitempty"`
	Agent1   *arena.AgentDescriptor `json:"agent1,omitempty"`
	Agent2   *arena.AgentDescriptor `json:"agent2,omitempty"`
	Autoplay bool                   `json:"autoplay,omitempty"`
}

// DecodeClient parses a client frame in either encoding.
func DecodeClient(data []byte, format Format) (ClientEnvelope, error) {
	var msg ClientEnvelope
	raw := data
	if format == FormatBinary {
		s := &structpb.Struct{}
		if err := proto.Unmarshal(data, s); err != nil {
			return msg, fmt.Errorf("decode client frame: %w", err)
		}
		var err error
		if raw, err = protojson.Marshal(s); err != nil {
			return msg, err
		}
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, fmt.Errorf("decode client frame: %w", err)
	}
	if msg.Type == "" {
		return msg, fmt.Errorf("decode client frame: missing type")
	}
	return msg, nil
}

// EncodeClient is the inverse of DecodeClient, used by tools and tests.
func EncodeClient(msg ClientEnvelope, format Format) ([]byte, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	if format == FormatText {
		return raw, nil
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}
