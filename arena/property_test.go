package arena

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestProperty_DamageNonNegative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		action := rapid.SampledFrom(Actions).Draw(t, "action")
		profile := PersonalityProfile{
			Aggression: rapid.Float64Range(0, 1).Draw(t, "aggression"),
			Defense:    rapid.Float64Range(0, 1).Draw(t, "defense"),
			Speed:      rapid.Float64Range(0, 1).Draw(t, "speed"),
		}
		jitter := rapid.Float64Range(0, 0.999999).Draw(t, "jitter")

		dmg := NewCombatResolver(fixedRand(jitter)).ComputeDamage(action, profile)
		if dmg < 0 {
			t.Fatalf("negative damage %d", dmg)
		}
		if (action == ActionBlock || action == ActionDodge) && dmg != 0 {
			t.Fatalf("%s dealt %d", action, dmg)
		}
	})
}

func TestProperty_PolicyAlwaysReturnsValidAction(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		archetype := rapid.SampledFrom(Archetypes()).Draw(t, "archetype")
		view := CombatView{
			Health:         rapid.IntRange(0, MaxHealth).Draw(t, "health"),
			Stamina:        rapid.IntRange(0, MaxStamina).Draw(t, "stamina"),
			OpponentHealth: rapid.IntRange(0, MaxHealth).Draw(t, "opponent"),
		}
		draw := rapid.Float64Range(0, 0.999999).Draw(t, "draw")
		if got := NewDecisionPolicy(ProfileFor(archetype), fixedRand(draw)).Decide(view); !got.Valid() {
			t.Fatalf("invalid action %q", got)
		}
	})
}

func TestProperty_UnknownArchetypeUsesBitcoin(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.String().Draw(t, "archetype")
		if IsKnownArchetype(name) {
			return
		}
		if ProfileFor(name) != ProfileFor(ArchetypeBitcoin) {
			t.Fatalf("ProfileFor(%q) did not fall back to bitcoin", name)
		}
	})
}

func TestProperty_BattleStatsBoundedAndMonotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Int64().Draw(t, "seed")
		a1 := AgentDescriptor{ID: "a", Name: "a", Type: rapid.SampledFrom(Archetypes()).Draw(t, "type1")}
		a2 := AgentDescriptor{ID: "b", Name: "b", Type: rapid.SampledFrom(Archetypes()).Draw(t, "type2")}

		b := newBattle("prop", "", a1, a2, seed, nil, time.Unix(0, 0))
		prevH1, prevH2, prevS1, prevS2 := MaxHealth, MaxHealth, MaxStamina, MaxStamina
		for i := 0; i < DefaultMaxRounds; i++ {
			res, err := b.advance(time.Unix(int64(i), 0))
			if err != nil {
				t.Fatalf("advance: %v", err)
			}
			for _, v := range []int{res.Agent1Health, res.Agent2Health, res.Agent1Stamina, res.Agent2Stamina} {
				if v < 0 || v > 100 {
					t.Fatalf("stat out of range at round %d: %+v", res.Round, res)
				}
			}
			if res.Agent1Health > prevH1 || res.Agent2Health > prevH2 ||
				res.Agent1Stamina > prevS1 || res.Agent2Stamina > prevS2 {
				t.Fatalf("stat increased at round %d", res.Round)
			}
			prevH1, prevH2, prevS1, prevS2 = res.Agent1Health, res.Agent2Health, res.Agent1Stamina, res.Agent2Stamina

			done := res.Agent1Health == 0 || res.Agent2Health == 0
			if s := b.snapshot(); (s.Status == StatusCompleted) != done {
				t.Fatalf("status %s inconsistent with healths %d/%d", s.Status, res.Agent1Health, res.Agent2Health)
			}
			if done {
				return
			}
		}
	})
}

type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }
