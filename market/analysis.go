package market

import "agent-arena/arena"

type Prediction struct {
	Trend      string  `json:"trend"`
	Confidence float64 `json:"confidence"`
	Volatility float64 `json:"volatility"`
}

// BattleEffect is advisory only; the combat resolver never reads it.
type BattleEffect struct {
	AttackBonus   int     `json:"attackBonus"`
	DefenseBonus  int     `json:"defenseBonus"`
	SpecialChance float64 `json:"specialChance"`
}

type Analysis struct {
	Sentiment     string                  `json:"sentiment"`
	Confidence    float64                 `json:"confidence"`
	Predictions   map[string]Prediction   `json:"predictions"`
	BattleEffects map[string]BattleEffect `json:"battleEffects"`
}

// Analyze produces a randomized market outlook for the quoted assets.
func (f *Feed) Analyze() Analysis {
	f.mu.Lock()
	defer f.mu.Unlock()

	a := Analysis{
		Sentiment:     f.pick(Sentiments),
		Confidence:    f.uniform(0.6, 0.95),
		Predictions:   make(map[string]Prediction, len(assets)),
		BattleEffects: make(map[string]BattleEffect, len(assets)),
	}
	for _, as := range assets {
		a.Predictions[as.archetype] = Prediction{
			Trend:      f.pick(Trends),
			Confidence: f.uniform(0.5, 0.9),
			Volatility: f.uniform(0.1, 0.8),
		}
	}
	for _, as := range assets {
		a.BattleEffects[as.archetype] = BattleEffect{
			AttackBonus:   f.intn(-5, 10),
			DefenseBonus:  f.intn(-3, 8),
			SpecialChance: f.uniform(0.1, 0.3),
		}
	}
	return a
}

var _ arena.MarketFeed = (*Feed)(nil)
