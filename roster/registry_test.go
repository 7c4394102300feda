package roster

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"agent-arena/arena"
)

func TestDefaultRegistry_HasCanonicalFighters(t *testing.T) {
	r := NewDefaultRegistry()
	if r.Count() != len(Defaults()) {
		t.Fatalf("count = %d", r.Count())
	}
	tyler, ok := r.Get("tyler-durden")
	if !ok || tyler.Type != arena.ArchetypeBitcoin || tyler.SpecialMove != "Diamond Hands" {
		t.Fatalf("unexpected tyler: %+v", tyler)
	}
	d, ok := r.Descriptor("marla-singer")
	if !ok || d.Type != arena.ArchetypeEthereum || d.Name != "Marla Singer" {
		t.Fatalf("unexpected descriptor: %+v", d)
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("default descriptor invalid: %v", err)
	}
	for _, f := range Defaults() {
		if !arena.IsKnownArchetype(f.Type) {
			t.Fatalf("default fighter %s has unknown type %s", f.ID, f.Type)
		}
	}
}

func TestLoadFromYAML_ListAndDefaults(t *testing.T) {
	r := NewRegistry()
	data := []byte(`
- id: jack
  name: Jack
  type: altcoin
- id: "   "
  name: ghost
  type: bitcoin
- id: narrator
  type: stablecoin
  level: 7
  color: "#000000"
`)
	if err := r.LoadFromYAML(data); err != nil {
		t.Fatalf("LoadFromYAML: %v", err)
	}
	if r.Count() != 2 {
		t.Fatalf("expected blank ids skipped, count = %d", r.Count())
	}
	jack, _ := r.Get("jack")
	if jack.SpecialMove != "Moon Shot" || jack.Color != "#ff6b6b" || jack.Level != 1 {
		t.Fatalf("type defaults not applied: %+v", jack)
	}
	narrator, _ := r.Get("narrator")
	if narrator.Name != "narrator" || narrator.Level != 7 || narrator.Color != "#000000" {
		t.Fatalf("unexpected narrator: %+v", narrator)
	}
}

func TestLoadFromYAML_FightersDocument(t *testing.T) {
	r := NewRegistry()
	data := []byte(`
fighters:
  - id: a
    name: A
    type: bitcoin
  - id: b
    name: B
    type: bitcoin
  - id: c
    name: C
    type: ethereum
`)
	if err := r.LoadFromYAML(data); err != nil {
		t.Fatalf("LoadFromYAML: %v", err)
	}
	if got := len(r.ByType(arena.ArchetypeBitcoin)); got != 2 {
		t.Fatalf("ByType(bitcoin) = %d", got)
	}
	all := r.All()
	if len(all) != 3 || all[0].ID != "a" || all[2].ID != "c" {
		t.Fatalf("All not sorted: %+v", all)
	}
}

func TestLoadFromYAML_JSONAccepted(t *testing.T) {
	r := NewRegistry()
	if err := r.LoadFromYAML([]byte(`[{"id":"x","name":"X","type":"ethereum"}]`)); err != nil {
		t.Fatalf("LoadFromYAML: %v", err)
	}
	if _, ok := r.Get("x"); !ok {
		t.Fatalf("json roster not loaded")
	}
}

func TestLoadFromYAML_UnknownTypeRejectsDocument(t *testing.T) {
	r := NewRegistry()
	err := r.LoadFromYAML([]byte(`
- id: ok
  name: OK
  type: bitcoin
- id: bad
  name: Bad
  type: dogecoin
`))
	if err == nil || !strings.Contains(err.Error(), "dogecoin") {
		t.Fatalf("expected unknown type error, got %v", err)
	}
	if r.Count() != 0 {
		t.Fatalf("partial load applied: count = %d", r.Count())
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	if err := os.WriteFile(path, []byte("- {id: z, name: Z, type: stablecoin}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := NewRegistry()
	if err := r.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if f, ok := r.Get("z"); !ok || f.Personality() != arena.ProfileFor(arena.ArchetypeStablecoin) {
		t.Fatalf("unexpected fighter: %+v", f)
	}
	if err := r.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
