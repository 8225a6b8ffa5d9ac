package habit

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	ErrNotFound  = errors.New("habit not found")
	ErrDuplicate = errors.New("habit already defined")
)

// Registry holds the habit definitions, backed by a YAML file. Reads return
// copies so an in-flight interpretation never sees a concurrent edit.
type Registry struct {
	path string
	mu   sync.RWMutex
	defs []Definition
}

type registryFile struct {
	Habits []Definition `yaml:"habits"`
}

// LoadRegistry reads the registry file. A missing file yields an empty
// registry rather than an error.
func LoadRegistry(path string) (*Registry, error) {
	r := &Registry{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return r, nil
		}
		return nil, fmt.Errorf("read habit registry %q: %w", path, err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse habit registry %q: %w", path, err)
	}

	seen := make(map[string]string, len(file.Habits))
	for _, def := range file.Habits {
		name := strings.ToLower(strings.TrimSpace(def.Name))
		if name == "" {
			return nil, fmt.Errorf("habit registry %q: definition with empty name", path)
		}
		if prev, exists := seen[name]; exists {
			return nil, fmt.Errorf("duplicate habit %q in %s (already defined as %q)", def.Name, path, prev)
		}
		seen[name] = def.Name
	}

	r.defs = file.Habits
	return r, nil
}

func (r *Registry) save() error {
	if r.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	data, err := yaml.Marshal(registryFile{Habits: r.defs})
	if err != nil {
		return fmt.Errorf("marshal habit registry: %w", err)
	}
	return os.WriteFile(r.path, data, 0644)
}

// Definitions returns a snapshot of all habit definitions, sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) Get(id string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, def := range r.defs {
		if def.ID == id {
			return def, true
		}
	}
	return Definition{}, false
}

// FindByTerm resolves a name or alias to its definition.
func (r *Registry) FindByTerm(term string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, def := range r.defs {
		if def.Matches(term) {
			return def, true
		}
	}
	return Definition{}, false
}

// Add registers a new habit and persists the registry. Name and alias
// collisions, against existing habits or within the new definition itself,
// are rejected.
func (r *Registry) Add(def Definition) error {
	if strings.TrimSpace(def.Name) == "" {
		return fmt.Errorf("habit name is required")
	}
	if def.ID == "" {
		def.ID = slug(def.Name)
	}
	if def.Unit == "" {
		def.Unit = UnitCount
	}

	// The definition must not collide with itself either: an alias equal to
	// the name, or the same alias given twice.
	own := map[string]bool{strings.ToLower(strings.TrimSpace(def.Name)): true}
	for _, alias := range def.Aliases {
		a := strings.ToLower(strings.TrimSpace(alias))
		if own[a] {
			return fmt.Errorf("%w: alias %q repeats another term of %s", ErrDuplicate, alias, def.Name)
		}
		own[a] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.defs {
		if existing.ID == def.ID || existing.Matches(def.Name) {
			return fmt.Errorf("%w: %s", ErrDuplicate, def.Name)
		}
		for _, alias := range def.Aliases {
			if existing.Matches(alias) {
				return fmt.Errorf("%w: alias %q collides with %s", ErrDuplicate, alias, existing.Name)
			}
		}
	}
	r.defs = append(r.defs, def)
	return r.save()
}

// Remove deletes a habit by id or name.
func (r *Registry) Remove(idOrName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, def := range r.defs {
		if def.ID == idOrName || def.Matches(idOrName) {
			r.defs = append(r.defs[:i], r.defs[i+1:]...)
			return r.save()
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, idOrName)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

func slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(s, " ", "-")
}
