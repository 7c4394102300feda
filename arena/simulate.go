package arena

import (
	"fmt"
	"time"
)

// DefaultMaxRounds bounds offline simulations. Damage is guaranteed to end a
// battle long before this in practice.
const DefaultMaxRounds = 500

// Simulate runs a standalone battle from seed until it completes or maxRounds
// rounds have been resolved. Timestamps are derived from a fixed epoch so the
// result depends only on the inputs.
func Simulate(seed int64, a1, a2 AgentDescriptor, maxRounds int) (BattleSnapshot, error) {
	if err := a1.Validate(); err != nil {
		return BattleSnapshot{}, err
	}
	if err := a2.Validate(); err != nil {
		return BattleSnapshot{}, err
	}
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}

	epoch := time.Unix(0, 0).UTC()
	b := newBattle(fmt.Sprintf("sim_%d", seed), "", a1, a2, seed, nil, epoch)
	for i := 0; i < maxRounds && b.status == StatusActive; i++ {
		if _, err := b.advance(epoch.Add(time.Duration(i+1) * time.Second)); err != nil {
			return BattleSnapshot{}, err
		}
	}
	return b.snapshot(), nil
}
