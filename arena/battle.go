package arena

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// battle is the mutable aggregate owned by a Registry. All access goes
// through its mutex; callers only ever see BattleSnapshot copies.
type battle struct {
	mu sync.Mutex

	id      string
	arenaID string
	seed    int64

	agents   [2]*AgentCombatState
	resolver *CombatResolver

	roundNumber int
	events      []RoundResult
	status      Status
	winner      Side
	startedAt   time.Time
	endedAt     time.Time
	market      MarketSnapshot
}

// newBattle derives independent random streams for both policies and the
// resolver from a single seed, so a battle replays exactly given its seed.
func newBattle(id, arenaID string, a1, a2 AgentDescriptor, seed int64, market MarketSnapshot, now time.Time) *battle {
	master := rand.New(rand.NewSource(seed))
	rng1 := rand.New(rand.NewSource(master.Int63()))
	rng2 := rand.New(rand.NewSource(master.Int63()))
	return newBattleWithRand(id, arenaID, a1, a2, seed, market, now, rng1, rng2, master)
}

func newBattleWithRand(
	id, arenaID string,
	a1, a2 AgentDescriptor,
	seed int64,
	market MarketSnapshot,
	now time.Time,
	policy1, policy2, resolver Rand,
) *battle {
	if arenaID == "" {
		arenaID = DefaultArenaID
	}
	return &battle{
		id:        id,
		arenaID:   arenaID,
		seed:      seed,
		agents:    [2]*AgentCombatState{newAgentCombatState(a1, policy1), newAgentCombatState(a2, policy2)},
		resolver:  NewCombatResolver(resolver),
		status:    StatusActive,
		startedAt: now,
		market:    market,
	}
}

// advance resolves exactly one round.
func (b *battle) advance(now time.Time) (RoundResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status == StatusCompleted {
		return RoundResult{}, fmt.Errorf("%w: battle %s already completed", ErrInvalidState, b.id)
	}

	a1, a2 := b.agents[0], b.agents[1]
	act1 := a1.policy.Decide(a1.view(a2, b.market))
	act2 := a2.policy.Decide(a2.view(a1, b.market))

	result := b.resolver.Resolve(b.roundNumber+1, a1, a2, act1, act2, now)
	b.roundNumber++
	b.events = append(b.events, result)

	if a1.Health == 0 || a2.Health == 0 {
		b.status = StatusCompleted
		// Simultaneous knockouts go to side 1.
		if a2.Health == 0 {
			b.winner = Side1
		} else {
			b.winner = Side2
		}
		b.endedAt = now
	}
	return result, nil
}

// BattleSnapshot is a deep copy of a battle's state.
type BattleSnapshot struct {
	ID             string         `json:"id"`
	ArenaID        string         `json:"arenaId"`
	Seed           int64          `json:"seed,string"`
	Agent1         AgentSnapshot  `json:"agent1"`
	Agent2         AgentSnapshot  `json:"agent2"`
	RoundNumber    int            `json:"roundNumber"`
	Events         []RoundResult  `json:"events"`
	Status         Status         `json:"status"`
	WinnerSide     Side           `json:"winnerSide,omitempty"`
	StartedAt      time.Time      `json:"startedAt"`
	EndedAt        *time.Time     `json:"endedAt,omitempty"`
	MarketSnapshot MarketSnapshot `json:"marketSnapshot,omitempty"`
}

func (b *battle) snapshot() BattleSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := BattleSnapshot{
		ID:             b.id,
		ArenaID:        b.arenaID,
		Seed:           b.seed,
		Agent1:         b.agents[0].snapshot(),
		Agent2:         b.agents[1].snapshot(),
		RoundNumber:    b.roundNumber,
		Events:         append([]RoundResult{}, b.events...),
		Status:         b.status,
		WinnerSide:     b.winner,
		StartedAt:      b.startedAt,
		MarketSnapshot: b.market.clone(),
	}
	if !b.endedAt.IsZero() {
		t := b.endedAt
		s.EndedAt = &t
	}
	return s
}

// Winner returns the winning side's agent, or nil while active.
func (s BattleSnapshot) Winner() *AgentSnapshot {
	switch s.WinnerSide {
	case Side1:
		return &s.Agent1
	case Side2:
		return &s.Agent2
	}
	return nil
}

// Loser returns the losing side's agent, or nil while active.
func (s BattleSnapshot) Loser() *AgentSnapshot {
	switch s.WinnerSide {
	case Side1:
		return &s.Agent2
	case Side2:
		return &s.Agent1
	}
	return nil
}

// DamageDealt sums the damage dealt by the given side across all rounds.
func (s BattleSnapshot) DamageDealt(side Side) int {
	total := 0
	for _, e := range s.Events {
		switch side {
		case Side1:
			total += e.Agent1Damage
		case Side2:
			total += e.Agent2Damage
		}
	}
	return total
}
