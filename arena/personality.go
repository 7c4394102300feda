package arena

// PersonalityProfile holds the trait coefficients that shape a DecisionPolicy.
type PersonalityProfile struct {
	Aggression    float64 `json:"aggression"`    // 0.0–1.0: weight of attack, finishing pressure
	Defense       float64 `json:"defense"`       // 0.0–1.0: weight of block, block-vs-dodge when critical
	Speed         float64 `json:"speed"`         // 0.0–1.0: weight of dodge
	Intelligence  float64 `json:"intelligence"`  // 0.0–1.0: reserved
	RiskTolerance float64 `json:"riskTolerance"` // 0.0–1.0: reserved
}

const (
	ArchetypeBitcoin    = "bitcoin"
	ArchetypeEthereum   = "ethereum"
	ArchetypeAltcoin    = "altcoin"
	ArchetypeStablecoin = "stablecoin"
)

var archetypeOrder = []string{ArchetypeBitcoin, ArchetypeEthereum, ArchetypeAltcoin, ArchetypeStablecoin}

var profiles = map[string]PersonalityProfile{
	ArchetypeBitcoin: {
		Aggression:    0.3,
		Defense:       0.8,
		Speed:         0.4,
		Intelligence:  0.7,
		RiskTolerance: 0.2,
	},
	ArchetypeEthereum: {
		Aggression:    0.7,
		Defense:       0.5,
		Speed:         0.8,
		Intelligence:  0.9,
		RiskTolerance: 0.6,
	},
	ArchetypeAltcoin: {
		Aggression:    0.9,
		Defense:       0.2,
		Speed:         0.9,
		Intelligence:  0.4,
		RiskTolerance: 0.9,
	},
	ArchetypeStablecoin: {
		Aggression:    0.4,
		Defense:       0.7,
		Speed:         0.5,
		Intelligence:  0.6,
		RiskTolerance: 0.1,
	},
}

// ProfileFor returns the profile for an archetype. Unknown archetypes get the
// bitcoin profile.
func ProfileFor(archetype string) PersonalityProfile {
	if p, ok := profiles[archetype]; ok {
		return p
	}
	return profiles[ArchetypeBitcoin]
}

// Archetypes returns the known archetypes in canonical order.
func Archetypes() []string {
	return append([]string(nil), archetypeOrder...)
}

func IsKnownArchetype(archetype string) bool {
	_, ok := profiles[archetype]
	return ok
}
