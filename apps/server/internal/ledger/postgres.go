package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"google.golang.org/protobuf/types/known/structpb"

	"agent-arena/apps/server/internal/codec"
)

type PostgresService struct {
	db          *sql.DB
	recentLimit int
}

func NewPostgresService(dsn string, recentLimit int) (*PostgresService, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("empty postgres dsn")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensurePostgresLedgerSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresService{db: db, recentLimit: recentLimit}, nil
}

func (s *PostgresService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresService) AppendEvent(battleID string, env *structpb.Struct, encoded []byte) {
	if strings.TrimSpace(battleID) == "" || env == nil {
		return
	}
	payloadB64, eventType, err := encodeEvent(env, encoded)
	if err != nil {
		log.Printf("[Ledger] marshal event failed: battle=%s err=%v", battleID, err)
		return
	}
	seq := codec.EnvelopeSeq(env)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO arena_event_stream (battle_id, seq, event_type, envelope_b64, server_ts_ms)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (battle_id, seq) DO NOTHING
`, battleID, int64(seq), eventType, payloadB64, nullableInt64(codec.EnvelopeTsMs(env)))
	if err != nil {
		log.Printf("[Ledger] append event failed: battle=%s seq=%d err=%v", battleID, seq, err)
	}
}

func (s *PostgresService) RecordBattle(summary BattleSummary) {
	if strings.TrimSpace(summary.BattleID) == "" {
		return
	}
	extraRaw, err := marshalSummary(summary)
	if err != nil {
		log.Printf("[Ledger] marshal battle summary failed: battle=%s err=%v", summary.BattleID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("[Ledger] begin record battle tx failed: battle=%s err=%v", summary.BattleID, err)
		return
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO arena_battle_history (
    battle_id, arena_id, seed, agent1_id, agent2_id, winner_id, winner_side, rounds,
    started_at, ended_at, summary_json
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb)
ON CONFLICT (battle_id) DO UPDATE
SET
    winner_id = EXCLUDED.winner_id,
    winner_side = EXCLUDED.winner_side,
    rounds = EXCLUDED.rounds,
    ended_at = EXCLUDED.ended_at,
    summary_json = EXCLUDED.summary_json,
    updated_at = NOW()
`, summary.BattleID, summary.ArenaID, summary.Seed, summary.Agent1ID, summary.Agent2ID,
		summary.WinnerID, summary.WinnerSide, summary.Rounds,
		summary.StartedAt.UTC(), summary.EndedAt.UTC(), string(extraRaw)); err != nil {
		log.Printf("[Ledger] record battle failed: battle=%s err=%v", summary.BattleID, err)
		return
	}

	if s.recentLimit > 0 {
		if _, err := tx.ExecContext(ctx, `
DELETE FROM arena_event_stream
WHERE battle_id IN (
    SELECT battle_id
    FROM arena_battle_history
    ORDER BY ended_at DESC, id DESC
    OFFSET $1
)
`, s.recentLimit); err != nil {
			log.Printf("[Ledger] trim event stream failed: err=%v", err)
			return
		}
		if _, err := tx.ExecContext(ctx, `
DELETE FROM arena_battle_history
WHERE id IN (
    SELECT id
    FROM arena_battle_history
    ORDER BY ended_at DESC, id DESC
    OFFSET $1
)
`, s.recentLimit); err != nil {
			log.Printf("[Ledger] trim battle history failed: err=%v", err)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[Ledger] commit battle history failed: battle=%s err=%v", summary.BattleID, err)
	}
}

func (s *PostgresService) ListRecent(ctx context.Context, limit int) ([]HistoryItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT battle_id, arena_id, seed, agent1_id, agent2_id, winner_id, winner_side, rounds,
       started_at, ended_at, summary_json, updated_at
FROM arena_battle_history
ORDER BY ended_at DESC, id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]HistoryItem, 0, limit)
	for rows.Next() {
		var item HistoryItem
		var extraRaw []byte
		if err := rows.Scan(
			&item.BattleID, &item.ArenaID, &item.Seed, &item.Agent1ID, &item.Agent2ID,
			&item.WinnerID, &item.WinnerSide, &item.Rounds,
			&item.StartedAt, &item.EndedAt, &extraRaw, &item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if len(extraRaw) > 0 {
			_ = json.Unmarshal(extraRaw, &item.Extra)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresService) GetBattleEvents(ctx context.Context, battleID string) ([]EventItem, error) {
	if strings.TrimSpace(battleID) == "" {
		return nil, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT seq, event_type, envelope_b64, server_ts_ms
FROM arena_event_stream
WHERE battle_id = $1
ORDER BY seq ASC
`, battleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]EventItem, error) {
	events := make([]EventItem, 0, 64)
	for rows.Next() {
		var e EventItem
		var seq int64
		var serverTs sql.NullInt64
		if err := rows.Scan(&seq, &e.EventType, &e.EnvelopeB64, &serverTs); err != nil {
			return nil, err
		}
		e.Seq = uint64(seq)
		if serverTs.Valid {
			v := serverTs.Int64
			e.ServerTsMs = &v
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}
	return events, nil
}

func ensurePostgresLedgerSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS arena_event_stream (
    id BIGSERIAL PRIMARY KEY,
    battle_id TEXT NOT NULL,
    seq BIGINT NOT NULL,
    event_type TEXT NOT NULL,
    envelope_b64 TEXT NOT NULL DEFAULT '',
    server_ts_ms BIGINT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (battle_id, seq)
)`,
		`
CREATE TABLE IF NOT EXISTS arena_battle_history (
    id BIGSERIAL PRIMARY KEY,
    battle_id TEXT NOT NULL UNIQUE,
    arena_id TEXT NOT NULL DEFAULT '',
    seed BIGINT NOT NULL DEFAULT 0,
    agent1_id TEXT NOT NULL,
    agent2_id TEXT NOT NULL,
    winner_id TEXT NOT NULL DEFAULT '',
    winner_side SMALLINT NOT NULL DEFAULT 0,
    rounds INTEGER NOT NULL DEFAULT 0,
    started_at TIMESTAMPTZ NOT NULL,
    ended_at TIMESTAMPTZ NOT NULL,
    summary_json JSONB NOT NULL DEFAULT '{}'::jsonb,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
		`CREATE INDEX IF NOT EXISTS idx_arena_battle_history_recent ON arena_battle_history(ended_at DESC, id DESC)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
