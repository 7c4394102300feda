package arena

import (
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Registry owns every battle in the process. Active battles live in a map and
// are never evicted; completed battles move to a TTL-bounded cache.
type Registry struct {
	cfg Config

	mu       sync.RWMutex
	active   map[string]*battle
	retained *expirable.LRU[string, *battle]

	seedMu sync.Mutex
	seeds  *rand.Rand

	newID  func() string
	market MarketFeed
	now    func() time.Time
}

type Option func(*Registry)

func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

func WithMarketFeed(feed MarketFeed) Option {
	return func(r *Registry) { r.market = feed }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRegistry(cfg Config, opts ...Option) (*Registry, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r := &Registry{
		cfg:    cfg,
		active: make(map[string]*battle),
		seeds:  rand.New(rand.NewSource(seed)),
		newID:  uuid.NewString,
		now:    time.Now,
	}
	r.retained = expirable.NewLRU[string, *battle](cfg.MaxRetained, r.onEvict, cfg.RetentionTTL)
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Registry) onEvict(id string, _ *battle) {
	log.Printf("[Arena] Evicted completed battle %s", id)
}

func (r *Registry) nextSeed() int64 {
	r.seedMu.Lock()
	defer r.seedMu.Unlock()
	return r.seeds.Int63()
}

// CreateBattle starts a battle between two agents at full health and stamina.
func (r *Registry) CreateBattle(a1, a2 AgentDescriptor, arenaID string) (BattleSnapshot, error) {
	return r.CreateBattleWithSeed(a1, a2, arenaID, r.nextSeed())
}

// CreateBattleWithSeed is CreateBattle with an explicit seed, for replays.
func (r *Registry) CreateBattleWithSeed(a1, a2 AgentDescriptor, arenaID string, seed int64) (BattleSnapshot, error) {
	if err := a1.Validate(); err != nil {
		return BattleSnapshot{}, err
	}
	if err := a2.Validate(); err != nil {
		return BattleSnapshot{}, err
	}

	var market MarketSnapshot
	if r.market != nil {
		market = r.market.Snapshot()
	}

	r.mu.Lock()
	id := r.newID()
	if _, exists := r.active[id]; exists {
		r.mu.Unlock()
		return BattleSnapshot{}, fmt.Errorf("%w: duplicate battle id %s", ErrInvalidState, id)
	}
	if _, exists := r.retained.Peek(id); exists {
		r.mu.Unlock()
		return BattleSnapshot{}, fmt.Errorf("%w: duplicate battle id %s", ErrInvalidState, id)
	}
	b := newBattle(id, arenaID, a1, a2, seed, market, r.now())
	r.active[id] = b
	r.mu.Unlock()

	log.Printf("[Arena] Battle %s created: %s(%s) vs %s(%s) in %s", id, a1.Name, a1.Type, a2.Name, a2.Type, b.arenaID)
	return b.snapshot(), nil
}

// AdvanceRound resolves one round of an active battle.
func (r *Registry) AdvanceRound(id string) (RoundResult, error) {
	r.mu.RLock()
	b := r.active[id]
	r.mu.RUnlock()

	if b == nil {
		if _, ok := r.retained.Peek(id); ok {
			return RoundResult{}, fmt.Errorf("%w: battle %s already completed", ErrInvalidState, id)
		}
		return RoundResult{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	result, err := b.advance(r.now())
	if err != nil {
		return RoundResult{}, err
	}
	if result.Agent1Health == 0 || result.Agent2Health == 0 {
		r.retire(b)
	}
	return result, nil
}

func (r *Registry) retire(b *battle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, b.id)
	r.retained.Add(b.id, b)
	log.Printf("[Arena] Battle %s completed after %d rounds", b.id, len(b.events))
}

// GetBattle returns a snapshot of an active or retained battle.
func (r *Registry) GetBattle(id string) (BattleSnapshot, error) {
	if b := r.lookup(id); b != nil {
		return b.snapshot(), nil
	}
	return BattleSnapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (r *Registry) lookup(id string) *battle {
	r.mu.RLock()
	b := r.active[id]
	r.mu.RUnlock()
	if b != nil {
		return b
	}
	if b, ok := r.retained.Get(id); ok {
		return b
	}
	return nil
}

type RegistryStats struct {
	Active   int `json:"active"`
	Retained int `json:"retained"`
}

func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	active := len(r.active)
	r.mu.RUnlock()
	return RegistryStats{Active: active, Retained: r.retained.Len()}
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Status  Status
	AgentID string
	Offset  int
	Limit   int
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// List returns one page of battles ordered by start time, plus the number of
// battles matching the filter.
func (r *Registry) List(f ListFilter) ([]BattleSnapshot, int) {
	all := r.snapshots()

	matched := make([]BattleSnapshot, 0, len(all))
	for _, s := range all {
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if f.AgentID != "" && s.Agent1.AgentID != f.AgentID && s.Agent2.AgentID != f.AgentID {
			continue
		}
		matched = append(matched, s)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].StartedAt.Equal(matched[j].StartedAt) {
			return matched[i].StartedAt.Before(matched[j].StartedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []BattleSnapshot{}, len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], len(matched)
}

func (r *Registry) snapshots() []BattleSnapshot {
	r.mu.RLock()
	battles := make([]*battle, 0, len(r.active))
	for _, b := range r.active {
		battles = append(battles, b)
	}
	r.mu.RUnlock()
	battles = append(battles, r.retained.Values()...)

	out := make([]BattleSnapshot, 0, len(battles))
	for _, b := range battles {
		out = append(out, b.snapshot())
	}
	return out
}

type LeaderboardEntry struct {
	AgentID      string `json:"agentId"`
	Name         string `json:"name"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
	TotalBattles int    `json:"totalBattles"`
	TotalDamage  int    `json:"totalDamage"`
}

// Leaderboard aggregates completed battles still retained, sorted by wins.
func (r *Registry) Leaderboard(limit int) []LeaderboardEntry {
	if limit <= 0 {
		limit = 10
	}
	stats := make(map[string]*LeaderboardEntry)
	entry := func(a AgentSnapshot) *LeaderboardEntry {
		e := stats[a.AgentID]
		if e == nil {
			e = &LeaderboardEntry{AgentID: a.AgentID, Name: a.DisplayName}
			stats[a.AgentID] = e
		}
		return e
	}

	for _, b := range r.retained.Values() {
		s := b.snapshot()
		if s.Status != StatusCompleted {
			continue
		}
		e1, e2 := entry(s.Agent1), entry(s.Agent2)
		e1.TotalBattles++
		e2.TotalBattles++
		e1.TotalDamage += s.DamageDealt(Side1)
		e2.TotalDamage += s.DamageDealt(Side2)
		if s.WinnerSide == Side1 {
			e1.Wins++
			e2.Losses++
		} else {
			e2.Wins++
			e1.Losses++
		}
	}

	out := make([]LeaderboardEntry, 0, len(stats))
	for _, e := range stats {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Wins != out[j].Wins {
			return out[i].Wins > out[j].Wins
		}
		return out[i].AgentID < out[j].AgentID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
