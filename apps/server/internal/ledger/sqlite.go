package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
	_ "modernc.org/sqlite"

	"agent-arena/apps/server/internal/codec"
)

type SQLiteService struct {
	db          *sql.DB
	recentLimit int
}

func NewSQLiteService(dbPath string, recentLimit int) (*SQLiteService, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if dbPath != ":memory:" {
		parent := filepath.Dir(dbPath)
		if parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSQLiteLedgerSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteService{db: db, recentLimit: recentLimit}, nil
}

func (s *SQLiteService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteService) AppendEvent(battleID string, env *structpb.Struct, encoded []byte) {
	if strings.TrimSpace(battleID) == "" || env == nil {
		return
	}
	payloadB64, eventType, err := encodeEvent(env, encoded)
	if err != nil {
		log.Printf("[Ledger] marshal event failed: battle=%s err=%v", battleID, err)
		return
	}
	seq := codec.EnvelopeSeq(env)
	nowMs := time.Now().UTC().UnixMilli()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO arena_event_stream (battle_id, seq, event_type, envelope_b64, server_ts_ms, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (battle_id, seq) DO NOTHING
`, battleID, int64(seq), eventType, payloadB64, nullableInt64(codec.EnvelopeTsMs(env)), nowMs)
	if err != nil {
		log.Printf("[Ledger] append event failed: battle=%s seq=%d err=%v", battleID, seq, err)
	}
}

func (s *SQLiteService) RecordBattle(summary BattleSummary) {
	if strings.TrimSpace(summary.BattleID) == "" {
		return
	}
	extraRaw, err := marshalSummary(summary)
	if err != nil {
		log.Printf("[Ledger] marshal battle summary failed: battle=%s err=%v", summary.BattleID, err)
		return
	}
	nowMs := time.Now().UTC().UnixMilli()

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
    started_at_ms, ended_at_ms, summary_json, updated_at_ms
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (battle_id) DO UPDATE
SET
    winner_id = excluded.winner_id,
    winner_side = excluded.winner_side,
    rounds = excluded.rounds,
    ended_at_ms = excluded.ended_at_ms,
    summary_json = excluded.summary_json,
    updated_at_ms = excluded.updated_at_ms
`, summary.BattleID, summary.ArenaID, summary.Seed, summary.Agent1ID, summary.Agent2ID,
		summary.WinnerID, summary.WinnerSide, summary.Rounds,
		summary.StartedAt.UTC().UnixMilli(), summary.EndedAt.UTC().UnixMilli(), string(extraRaw), nowMs); err != nil {
		log.Printf("[Ledger] record battle failed: battle=%s err=%v", summary.BattleID, err)
		return
	}

	if s.recentLimit > 0 {
		if _, err := tx.ExecContext(ctx, `
DELETE FROM arena_event_stream
WHERE battle_id IN (
    SELECT battle_id
    FROM arena_battle_history
    ORDER BY ended_at_ms DESC, id DESC
    LIMIT -1 OFFSET ?
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
    ORDER BY ended_at_ms DESC, id DESC
    LIMIT -1 OFFSET ?
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

func (s *SQLiteService) ListRecent(ctx context.Context, limit int) ([]HistoryItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT battle_id, arena_id, seed, agent1_id, agent2_id, winner_id, winner_side, rounds,
       started_at_ms, ended_at_ms, summary_json, updated_at_ms
FROM arena_battle_history
ORDER BY ended_at_ms DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]HistoryItem, 0, limit)
	for rows.Next() {
		var item HistoryItem
		var startedMs, endedMs, updatedMs int64
		var extraRaw string
		if err := rows.Scan(
			&item.BattleID, &item.ArenaID, &item.Seed, &item.Agent1ID, &item.Agent2ID,
			&item.WinnerID, &item.WinnerSide, &item.Rounds,
			&startedMs, &endedMs, &extraRaw, &updatedMs,
		); err != nil {
			return nil, err
		}
		item.StartedAt = time.UnixMilli(startedMs).UTC()
		item.EndedAt = time.UnixMilli(endedMs).UTC()
		item.UpdatedAt = time.UnixMilli(updatedMs).UTC()
		if extraRaw != "" {
			_ = json.Unmarshal([]byte(extraRaw), &item.Extra)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLiteService) GetBattleEvents(ctx context.Context, battleID string) ([]EventItem, error) {
	if strings.TrimSpace(battleID) == "" {
		return nil, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT seq, event_type, envelope_b64, server_ts_ms
FROM arena_event_stream
WHERE battle_id = ?
ORDER BY seq ASC
`, battleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func ensureSQLiteLedgerSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS arena_event_stream (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    battle_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    event_type TEXT NOT NULL,
    envelope_b64 TEXT NOT NULL DEFAULT '',
    server_ts_ms INTEGER,
    created_at_ms INTEGER NOT NULL,
    UNIQUE (battle_id, seq)
)`,
		`
CREATE TABLE IF NOT EXISTS arena_battle_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    battle_id TEXT NOT NULL UNIQUE,
    arena_id TEXT NOT NULL DEFAULT '',
    seed INTEGER NOT NULL DEFAULT 0,
    agent1_id TEXT NOT NULL,
    agent2_id TEXT NOT NULL,
    winner_id TEXT NOT NULL DEFAULT '',
    winner_side INTEGER NOT NULL DEFAULT 0,
    rounds INTEGER NOT NULL DEFAULT 0,
    started_at_ms INTEGER NOT NULL,
    ended_at_ms INTEGER NOT NULL,
    summary_json TEXT NOT NULL DEFAULT '{}',
    updated_at_ms INTEGER NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_arena_battle_history_recent ON arena_battle_history(ended_at_ms DESC, id DESC)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
