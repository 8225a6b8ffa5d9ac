package habit

import "strings"

// Unit kinds a habit definition may expect.
const (
	UnitCount    = "count"
	UnitDuration = "duration"
	UnitBoolean  = "boolean"
)

// Definition is one tracked habit. Immutable during a parse: the registry
// hands out snapshots, never live pointers into its own state.
type Definition struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Aliases    []string `yaml:"aliases,omitempty"`
	Unit       string   `yaml:"unit,omitempty"`
	WeeklyGoal int      `yaml:"weeklyGoal,omitempty"`
	Category   string   `yaml:"category,omitempty"`
}

// Terms returns the canonical name plus all aliases, lowercased.
func (d Definition) Terms() []string {
	terms := make([]string, 0, len(d.Aliases)+1)
	terms = append(terms, strings.ToLower(d.Name))
	for _, a := range d.Aliases {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			terms = append(terms, a)
		}
	}
	return terms
}

// Matches reports whether term equals the name or any alias,
// case-insensitively.
func (d Definition) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	for _, t := range d.Terms() {
		if t == term {
			return true
		}
	}
	return false
}
