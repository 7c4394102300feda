// Package market produces the synthetic price and sentiment figures shown
// next to battles. Nothing here feeds back into combat.
package market

import (
	"math/rand"
	"sync"
	"time"

	"agent-arena/arena"
)

var (
	Sentiments = []string{"bullish", "bearish", "neutral"}
	Trends     = []string{"up", "down", "sideways"}
)

type asset struct {
	archetype string
	basePrice float64
	spread    float64
}

// Quoted assets in the order they are generated. Generation order matters
// for seeded reproducibility.
var assets = []asset{
	{archetype: arena.ArchetypeBitcoin, basePrice: 42000, spread: 1000},
	{archetype: arena.ArchetypeEthereum, basePrice: 2800, spread: 100},
}

// Feed is a seeded source of decorative market data. It is safe for
// concurrent use.
type Feed struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewFeed creates a feed. A zero seed uses the current time.
func NewFeed(seed int64) *Feed {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Feed{rng: rand.New(rand.NewSource(seed))}
}

// Snapshot returns one quote per asset. It satisfies arena.MarketFeed.
func (f *Feed) Snapshot() arena.MarketSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(arena.MarketSnapshot, len(assets))
	for _, a := range assets {
		out[a.archetype] = arena.MarketQuote{
			Price:      a.basePrice + f.uniform(-a.spread, a.spread),
			Sentiment:  f.pick(Sentiments),
			Volatility: f.uniform(0.1, 0.9),
		}
	}
	return out
}

// uniform and friends must be called with f.mu held.
func (f *Feed) uniform(lo, hi float64) float64 {
	return lo + f.rng.Float64()*(hi-lo)
}

func (f *Feed) intn(lo, hi int) int {
	return lo + f.rng.Intn(hi-lo+1)
}

func (f *Feed) pick(values []string) string {
	return values[f.rng.Intn(len(values))]
}
