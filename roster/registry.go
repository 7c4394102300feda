package roster

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"agent-arena/arena"
)

// Registry holds all fighter definitions.
type Registry struct {
	mu       sync.RWMutex
	fighters map[string]Fighter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		fighters: make(map[string]Fighter),
	}
}

// NewDefaultRegistry creates a registry seeded with Defaults.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, f := range Defaults() {
		r.fighters[f.ID] = f
	}
	return r
}

// LoadFromFile loads fighters from a YAML (or JSON) file.
func (r *Registry) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read roster file: %w", err)
	}
	return r.LoadFromYAML(data)
}

type rosterFile struct {
	Fighters []Fighter `yaml:"fighters"`
}

// LoadFromYAML accepts either a top-level list or a document with a
// "fighters" key. Entries without an id are skipped. The load is
// all-or-nothing: one unknown type rejects the whole document.
func (r *Registry) LoadFromYAML(data []byte) error {
	var list []Fighter
	if err := yaml.Unmarshal(data, &list); err != nil {
		var doc rosterFile
		if docErr := yaml.Unmarshal(data, &doc); docErr != nil {
			return fmt.Errorf("parse roster YAML: %w", err)
		}
		list = doc.Fighters
	}

	accepted := make([]Fighter, 0, len(list))
	for _, f := range list {
		f.ID = strings.TrimSpace(f.ID)
		if f.ID == "" {
			continue
		}
		if !arena.IsKnownArchetype(f.Type) {
			return fmt.Errorf("fighter %s: unknown type %q", f.ID, f.Type)
		}
		if strings.TrimSpace(f.Name) == "" {
			f.Name = f.ID
		}
		accepted = append(accepted, f.withTypeDefaults())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range accepted {
		r.fighters[f.ID] = f
	}
	return nil
}

// Get returns a fighter by ID.
func (r *Registry) Get(id string) (Fighter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fighters[id]
	return f, ok
}

// Descriptor returns the battle descriptor for a registered fighter.
func (r *Registry) Descriptor(id string) (arena.AgentDescriptor, bool) {
	f, ok := r.Get(id)
	if !ok {
		return arena.AgentDescriptor{}, false
	}
	return f.Descriptor(), true
}

// All returns every fighter sorted by ID.
func (r *Registry) All() []Fighter {
	r.mu.RLock()
	out := make([]Fighter, 0, len(r.fighters))
	for _, f := range r.fighters {
		out = append(out, f)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ByType returns all fighters of the given archetype, sorted by ID.
func (r *Registry) ByType(archetype string) []Fighter {
	var out []Fighter
	for _, f := range r.All() {
		if f.Type == archetype {
			out = append(out, f)
		}
	}
	return out
}

// Count returns the total number of registered fighters.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.fighters)
}
