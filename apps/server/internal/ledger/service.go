package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"agent-arena/apps/server/internal/codec"
	"agent-arena/apps/server/internal/config"
)

const defaultRecentLimit = 200

var ErrNotFound = errors.New("not found")

// Service is the battle audit tape. Writes are fire-and-forget and logged on
// failure; nothing written here is read back into the engine.
type Service interface {
	Close() error
	AppendEvent(battleID string, env *structpb.Struct, encoded []byte)
	RecordBattle(summary BattleSummary)
	ListRecent(ctx context.Context, limit int) ([]HistoryItem, error)
	GetBattleEvents(ctx context.Context, battleID string) ([]EventItem, error)
}

// BattleSummary is written once when a battle completes.
type BattleSummary struct {
	BattleID   string         `json:"battle_id"`
	ArenaID    string         `json:"arena_id"`
	Seed       int64          `json:"seed,string"`
	Agent1ID   string         `json:"agent1_id"`
	Agent2ID   string         `json:"agent2_id"`
	WinnerID   string         `json:"winner_id"`
	WinnerSide int            `json:"winner_side"`
	Rounds     int            `json:"rounds"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    time.Time      `json:"ended_at"`
	Extra      map[string]any `json:"extra,omitempty"`
}

type HistoryItem struct {
	BattleSummary
	UpdatedAt time.Time `json:"updated_at"`
}

type EventItem struct {
	Seq         uint64 `json:"seq"`
	EventType   string `json:"event_type"`
	EnvelopeB64 string `json:"envelope_b64"`
	ServerTsMs  *int64 `json:"server_ts_ms,omitempty"`
}

// Envelope decodes the stored frame.
func (e EventItem) Envelope() (*structpb.Struct, error) {
	raw, err := base64.StdEncoding.DecodeString(e.EnvelopeB64)
	if err != nil {
		return nil, err
	}
	return codec.Unmarshal(raw, codec.FormatBinary)
}

type noopService struct{}

func (n *noopService) Close() error { return nil }

func (n *noopService) AppendEvent(_ string, _ *structpb.Struct, _ []byte) {}

func (n *noopService) RecordBattle(_ BattleSummary) {}

func (n *noopService) ListRecent(_ context.Context, _ int) ([]HistoryItem, error) {
	return []HistoryItem{}, nil
}

func (n *noopService) GetBattleEvents(_ context.Context, _ string) ([]EventItem, error) {
	return nil, ErrNotFound
}

// NewService builds the ledger for the configured mode and reports the mode
// actually in use.
func NewService(cfg config.Ledger) (Service, string, error) {
	recentLimit := cfg.RecentLimit
	if recentLimit <= 0 {
		recentLimit = defaultRecentLimit
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", config.LedgerMemory:
		return &noopService{}, "memory-noop", nil
	case config.LedgerSQLite:
		path, err := cfg.SQLitePath()
		if err != nil {
			return nil, "", err
		}
		service, err := NewSQLiteService(path, recentLimit)
		if err != nil {
			return nil, "", err
		}
		return service, "sqlite", nil
	case config.LedgerPostgres:
		service, err := NewPostgresService(cfg.DSN(), recentLimit)
		if err != nil {
			return nil, "", err
		}
		return service, "postgres", nil
	default:
		return nil, "", fmt.Errorf("unknown ledger mode %q", cfg.Mode)
	}
}

// encodeEvent returns the base64 binary frame and the envelope type.
func encodeEvent(env *structpb.Struct, encoded []byte) (string, string, error) {
	if encoded == nil {
		raw, err := proto.Marshal(env)
		if err != nil {
			return "", "", err
		}
		encoded = raw
	}
	eventType := codec.EnvelopeType(env)
	if eventType == "" {
		eventType = "unknown"
	}
	return base64.StdEncoding.EncodeToString(encoded), eventType, nil
}

func marshalSummary(s BattleSummary) ([]byte, error) {
	if s.Extra == nil {
		s.Extra = map[string]any{}
	}
	return json.Marshal(s.Extra)
}

func nullableInt64(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
