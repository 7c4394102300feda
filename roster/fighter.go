// Package roster holds the named fighters that can be entered into battles.
package roster

import "agent-arena/arena"

// Fighter is a named, owned agent. Its Type selects the combat personality.
type Fighter struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Owner       string `json:"owner,omitempty" yaml:"owner,omitempty"`
	Level       int    `json:"level" yaml:"level"`
	SpecialMove string `json:"specialMove,omitempty" yaml:"specialMove,omitempty"`
	Color       string `json:"color,omitempty" yaml:"color,omitempty"`
}

func (f Fighter) Descriptor() arena.AgentDescriptor {
	return arena.AgentDescriptor{ID: f.ID, Name: f.Name, Type: f.Type, Level: f.Level}
}

// Personality is the combat profile the fighter's type maps to.
func (f Fighter) Personality() arena.PersonalityProfile {
	return arena.ProfileFor(f.Type)
}

var specialMoves = map[string]string{
	arena.ArchetypeBitcoin:    "Diamond Hands",
	arena.ArchetypeEthereum:   "Gas Optimization",
	arena.ArchetypeAltcoin:    "Moon Shot",
	arena.ArchetypeStablecoin: "Peg Stability",
}

var colors = map[string]string{
	arena.ArchetypeBitcoin:    "#f7931a",
	arena.ArchetypeEthereum:   "#627eea",
	arena.ArchetypeAltcoin:    "#ff6b6b",
	arena.ArchetypeStablecoin: "#51cf66",
}

// withTypeDefaults fills the cosmetic fields a roster file may leave out.
func (f Fighter) withTypeDefaults() Fighter {
	if f.SpecialMove == "" {
		f.SpecialMove = specialMoves[f.Type]
	}
	if f.Color == "" {
		f.Color = colors[f.Type]
	}
	if f.Level <= 0 {
		f.Level = 1
	}
	return f
}

// Defaults is the built-in roster used when no roster file is configured.
func Defaults() []Fighter {
	return []Fighter{
		{ID: "tyler-durden", Name: "Tyler Durden", Type: arena.ArchetypeBitcoin, Owner: "tyler_durden", Level: 100, SpecialMove: "Diamond Hands", Color: "#f7931a"},
		{ID: "marla-singer", Name: "Marla Singer", Type: arena.ArchetypeEthereum, Owner: "marla_singer", Level: 85, SpecialMove: "Gas Optimization", Color: "#627eea"},
		{ID: "robert-paulson", Name: "Robert Paulson", Type: arena.ArchetypeStablecoin, Owner: "bob", Level: 40, SpecialMove: "Peg Stability", Color: "#51cf66"},
		{ID: "angel-face", Name: "Angel Face", Type: arena.ArchetypeAltcoin, Owner: "angel_face", Level: 25, SpecialMove: "Moon Shot", Color: "#ff6b6b"},
	}
}
