package arena

import "time"

const (
	MaxHealth  = 100
	MaxStamina = 100

	// CriticalHealth is the threshold below which the decision rules switch
	// to the defensive or finishing branches.
	CriticalHealth = 30

	DefaultArenaID = "basement-1"
)

// Action is one move chosen by a side for a round.
type Action string

const (
	ActionAttack  Action = "attack"
	ActionBlock   Action = "block"
	ActionDodge   Action = "dodge"
	ActionSpecial Action = "special"
)

var Actions = []Action{ActionAttack, ActionBlock, ActionDodge, ActionSpecial}

func (a Action) Valid() bool {
	switch a {
	case ActionAttack, ActionBlock, ActionDodge, ActionSpecial:
		return true
	}
	return false
}

// Status of a battle.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Side identifies the first or second listed agent. Zero means unset.
type Side uint8

const (
	SideNone Side = 0
	Side1    Side = 1
	Side2    Side = 2
)

// AgentDescriptor is the caller-supplied identity of a fighter.
type AgentDescriptor struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Type  string `json:"type" yaml:"type"`
	Level int    `json:"level,omitempty" yaml:"level,omitempty"`
}

// RoundResult is the immutable record of one resolved round.
// AgentNDamage is the damage dealt by agent N to its opponent.
type RoundResult struct {
	Round         int       `json:"round"`
	Agent1Action  Action    `json:"agent1Action"`
	Agent2Action  Action    `json:"agent2Action"`
	Agent1Damage  int       `json:"agent1Damage"`
	Agent2Damage  int       `json:"agent2Damage"`
	Agent1Health  int       `json:"agent1Health"`
	Agent2Health  int       `json:"agent2Health"`
	Agent1Stamina int       `json:"agent1Stamina"`
	Agent2Stamina int       `json:"agent2Stamina"`
	Timestamp     time.Time `json:"timestamp"`
}

// MarketQuote is decorative per-asset context captured when a battle starts.
type MarketQuote struct {
	Price      float64 `json:"price"`
	Sentiment  string  `json:"sentiment"`
	Volatility float64 `json:"volatility"`
}

type MarketSnapshot map[string]MarketQuote

// MarketFeed supplies the snapshot recorded on new battles.
type MarketFeed interface {
	Snapshot() MarketSnapshot
}

// MarketContext is what a decision policy sees of the market.
type MarketContext struct {
	Sentiment  string
	Volatility float64
}

func (m MarketSnapshot) contextFor(archetype string) MarketContext {
	if q, ok := m[archetype]; ok {
		return MarketContext{Sentiment: q.Sentiment, Volatility: q.Volatility}
	}
	return MarketContext{Sentiment: "neutral", Volatility: 0.5}
}

func (m MarketSnapshot) clone() MarketSnapshot {
	if m == nil {
		return nil
	}
	out := make(MarketSnapshot, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
