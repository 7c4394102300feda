package lobby

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"strings"
	"sync"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"agent-arena/apps/server/internal/bout"
	"agent-arena/apps/server/internal/codec"
	"agent-arena/apps/server/internal/config"
	"agent-arena/apps/server/internal/ledger"
	"agent-arena/arena"
	"agent-arena/market"
	"agent-arena/replay"
	"agent-arena/roster"
)

// Publisher fans envelopes out to spectators. Publish reaches the
// subscribers of one battle; Broadcast reaches every connection.
type Publisher interface {
	Publish(battleID string, env *structpb.Struct)
	Broadcast(env *structpb.Struct)
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, *structpb.Struct) {}

func (noopPublisher) Broadcast(*structpb.Struct) {}

// Lobby wires the battle registry to the roster, the market feed, the audit
// ledger and connected spectators.
type Lobby struct {
	arena  *arena.Registry
	roster *roster.Registry
	market *market.Feed
	ledger ledger.Service

	boutCfg bout.Config
	ctx     context.Context
	cancel  context.CancelFunc

	// createMu makes the busy-agent check and the creation one step.
	createMu sync.Mutex
	// Rounds of one battle are resolved and published under the same
	// stripe so spectators see them in order.
	battleLocks [32]sync.Mutex

	mu    sync.Mutex
	pub   Publisher
	bouts map[string]*bout.Bout
}

// New creates a lobby. A nil ledger records nothing.
func New(reg *arena.Registry, fighters *roster.Registry, feed *market.Feed, ledgerService ledger.Service, boutCfg bout.Config) *Lobby {
	if ledgerService == nil {
		ledgerService, _, _ = ledger.NewService(config.Ledger{Mode: config.LedgerMemory})
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Lobby{
		arena:   reg,
		roster:  fighters,
		market:  feed,
		ledger:  ledgerService,
		boutCfg: boutCfg,
		ctx:     ctx,
		cancel:  cancel,
		pub:     noopPublisher{},
		bouts:   make(map[string]*bout.Bout),
	}
}

// SetPublisher installs the spectator fan-out. It is set after construction
// because the gateway itself depends on the lobby.
func (l *Lobby) SetPublisher(p Publisher) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p == nil {
		p = noopPublisher{}
	}
	l.pub = p
}

func (l *Lobby) publisher() Publisher {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pub
}

// CreateRequest names both fighters either by roster id or inline.
type CreateRequest struct {
	Agent1ID string                 `json:"agent1Id,omitempty"`
	Agent2ID string                 `json:"agent2Id,omitempty"`
	Agent1   *arena.AgentDescriptor `json:"agent1,omitempty"`
	Agent2   *arena.AgentDescriptor `json:"agent2,omitempty"`
	ArenaID  string                 `json:"arenaId,omitempty"`
	Seed     *int64                 `json:"seed,omitempty,string"`
	Autoplay bool                   `json:"autoplay,omitempty"`
}

func (l *Lobby) resolveAgent(side int, id string, inline *arena.AgentDescriptor) (arena.AgentDescriptor, error) {
	if inline != nil {
		return *inline, nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return arena.AgentDescriptor{}, fmt.Errorf("%w: agent%d is required", arena.ErrInvalidInput, side)
	}
	d, ok := l.roster.Descriptor(id)
	if !ok {
		return arena.AgentDescriptor{}, fmt.Errorf("%w: unknown agent %q", arena.ErrInvalidInput, id)
	}
	return d, nil
}

// CreateBattle starts a battle and pushes its first snapshot.
func (l *Lobby) CreateBattle(req CreateRequest) (arena.BattleSnapshot, error) {
	a1, err := l.resolveAgent(1, req.Agent1ID, req.Agent1)
	if err != nil {
		return arena.BattleSnapshot{}, err
	}
	a2, err := l.resolveAgent(2, req.Agent2ID, req.Agent2)
	if err != nil {
		return arena.BattleSnapshot{}, err
	}
	if a1.ID == a2.ID {
		return arena.BattleSnapshot{}, fmt.Errorf("%w: an agent cannot fight itself", arena.ErrInvalidInput)
	}

	snap, err := l.createIdle(a1, a2, req)
	if err != nil {
		return arena.BattleSnapshot{}, err
	}

	if env, err := codec.BattleSnapshotEnvelope(snapshotSeq, snap); err != nil {
		log.Printf("[Lobby] Encode snapshot failed: battle=%s err=%v", snap.ID, err)
	} else {
		l.emit(snap.ID, env)
	}
	if env, err := codec.BattleCreatedEnvelope(snap); err != nil {
		log.Printf("[Lobby] Encode announcement failed: battle=%s err=%v", snap.ID, err)
	} else {
		l.publisher().Broadcast(env)
	}

	if req.Autoplay {
		if err := l.StartAutoplay(snap.ID); err != nil {
			return snap, err
		}
	}
	return snap, nil
}

var ErrAgentBusy = errors.New("agent is already in another fight")

// createIdle creates the battle only if neither agent is in an active one.
func (l *Lobby) createIdle(a1, a2 arena.AgentDescriptor, req CreateRequest) (arena.BattleSnapshot, error) {
	l.createMu.Lock()
	defer l.createMu.Unlock()

	for _, id := range []string{a1.ID, a2.ID} {
		if _, n := l.arena.List(arena.ListFilter{Status: arena.StatusActive, AgentID: id, Limit: 1}); n > 0 {
			return arena.BattleSnapshot{}, fmt.Errorf("%w: %w: %s", arena.ErrInvalidInput, ErrAgentBusy, id)
		}
	}
	if req.Seed != nil {
		return l.arena.CreateBattleWithSeed(a1, a2, req.ArenaID, *req.Seed)
	}
	return l.arena.CreateBattle(a1, a2, req.ArenaID)
}

func (l *Lobby) battleLock(battleID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(battleID))
	return &l.battleLocks[h.Sum32()%uint32(len(l.battleLocks))]
}

// Server sequence numbers are derived from the round so every event of a
// battle has a stable, gap-free position on the tape.
const snapshotSeq = 1

func roundSeq(round int) uint64 { return uint64(round) + snapshotSeq }

// Advance resolves one round, broadcasts it and, when the battle ends,
// broadcasts the result and records it in the ledger.
func (l *Lobby) Advance(battleID string) (arena.RoundResult, error) {
	lock := l.battleLock(battleID)
	lock.Lock()
	defer lock.Unlock()

	result, err := l.arena.AdvanceRound(battleID)
	if err != nil {
		return arena.RoundResult{}, err
	}

	if env, err := codec.RoundResultEnvelope(battleID, roundSeq(result.Round), result); err != nil {
		log.Printf("[Lobby] Encode round failed: battle=%s round=%d err=%v", battleID, result.Round, err)
	} else {
		l.emit(battleID, env)
	}

	if result.Agent1Health == 0 || result.Agent2Health == 0 {
		l.finish(battleID, result.Round)
	}
	return result, nil
}

func (l *Lobby) finish(battleID string, rounds int) {
	snap, err := l.arena.GetBattle(battleID)
	if err != nil {
		log.Printf("[Lobby] Completed battle %s not readable: %v", battleID, err)
		return
	}
	if env, err := codec.BattleEndEnvelope(roundSeq(rounds)+1, snap); err != nil {
		log.Printf("[Lobby] Encode battle end failed: battle=%s err=%v", battleID, err)
	} else {
		l.emit(battleID, env)
	}

	winner, loser := snap.Winner(), snap.Loser()
	if winner == nil || loser == nil || snap.EndedAt == nil {
		log.Printf("[Lobby] Battle %s has no result yet", battleID)
		return
	}
	summary := ledger.BattleSummary{
		BattleID:   snap.ID,
		ArenaID:    snap.ArenaID,
		Seed:       snap.Seed,
		Agent1ID:   snap.Agent1.AgentID,
		Agent2ID:   snap.Agent2.AgentID,
		WinnerID:   winner.AgentID,
		WinnerSide: int(snap.WinnerSide),
		Rounds:     snap.RoundNumber,
		StartedAt:  snap.StartedAt,
		EndedAt:    *snap.EndedAt,
		Extra: map[string]any{
			"winnerName":  winner.DisplayName,
			"loserName":   loser.DisplayName,
			"winnerHp":    winner.Health,
			"damageDealt": []int{snap.DamageDealt(arena.Side1), snap.DamageDealt(arena.Side2)},
		},
	}
	l.ledger.RecordBattle(summary)
	log.Printf("[Lobby] Battle %s won by %s after %d rounds", snap.ID, winner.DisplayName, snap.RoundNumber)
}

func (l *Lobby) emit(battleID string, env *structpb.Struct) {
	l.ledger.AppendEvent(battleID, env, nil)
	l.publisher().Publish(battleID, env)
}

var ErrAutoplayRunning = errors.New("autoplay already running")

// StartAutoplay advances the battle on the configured interval until it
// ends or StopAutoplay is called.
func (l *Lobby) StartAutoplay(battleID string) error {
	snap, err := l.arena.GetBattle(battleID)
	if err != nil {
		return err
	}
	if snap.Status == arena.StatusCompleted {
		return fmt.Errorf("%w: battle %s already completed", arena.ErrInvalidState, battleID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, running := l.bouts[battleID]; running {
		return fmt.Errorf("%w: %w", arena.ErrInvalidState, ErrAutoplayRunning)
	}
	l.bouts[battleID] = bout.Start(l.ctx, battleID, l.boutCfg, bout.AdvancerFunc(l.advanceForBout), l.boutExited)
	return nil
}

func (l *Lobby) advanceForBout(battleID string) (bool, error) {
	result, err := l.Advance(battleID)
	if err != nil {
		return false, err
	}
	return result.Agent1Health == 0 || result.Agent2Health == 0, nil
}

func (l *Lobby) boutExited(b *bout.Bout) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.bouts[b.BattleID] == b {
		delete(l.bouts, b.BattleID)
	}
}

// StopAutoplay stops a running bout. It reports whether one was running.
func (l *Lobby) StopAutoplay(battleID string) bool {
	l.mu.Lock()
	b := l.bouts[battleID]
	delete(l.bouts, battleID)
	l.mu.Unlock()
	if b == nil {
		return false
	}
	b.Stop()
	return true
}

func (l *Lobby) Autoplaying(battleID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.bouts[battleID]
	return ok
}

func (l *Lobby) GetBattle(battleID string) (arena.BattleSnapshot, error) {
	return l.arena.GetBattle(battleID)
}

func (l *Lobby) ListBattles(f arena.ListFilter) ([]arena.BattleSnapshot, int) {
	return l.arena.List(f)
}

func (l *Lobby) Leaderboard(limit int) []arena.LeaderboardEntry {
	return l.arena.Leaderboard(limit)
}

func (l *Lobby) Roster() *roster.Registry { return l.roster }

func (l *Lobby) Market() *market.Feed { return l.market }

// Verify re-simulates the battle from its seed and compares every round
// played so far.
func (l *Lobby) Verify(battleID string) (arena.BattleSnapshot, error) {
	snap, err := l.arena.GetBattle(battleID)
	if err != nil {
		return arena.BattleSnapshot{}, err
	}
	return snap, replay.Verify(replay.SpecFromSnapshot(snap), snap.Events)
}

type Health struct {
	Status          string    `json:"status"`
	Message         string    `json:"message"`
	Timestamp       time.Time `json:"timestamp"`
	ActiveBattles   int       `json:"activeBattles"`
	RetainedBattles int       `json:"retainedBattles"`
	Autoplaying     int       `json:"autoplaying"`
}

func (l *Lobby) Health() Health {
	stats := l.arena.Stats()
	l.mu.Lock()
	autoplaying := len(l.bouts)
	l.mu.Unlock()
	return Health{
		Status:          "healthy",
		Message:         "Battle engine running in the basement",
		Timestamp:       time.Now().UTC(),
		ActiveBattles:   stats.Active,
		RetainedBattles: stats.Retained,
		Autoplaying:     autoplaying,
	}
}

// Close stops every running bout.
func (l *Lobby) Close() {
	l.cancel()
	l.mu.Lock()
	bouts := make([]*bout.Bout, 0, len(l.bouts))
	for _, b := range l.bouts {
		bouts = append(bouts, b)
	}
	l.mu.Unlock()
	for _, b := range bouts {
		<-b.Done()
	}
	log.Printf("[Lobby] Closed (%d bouts stopped)", len(bouts))
}
