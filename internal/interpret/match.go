package interpret

import (
	"sort"
	"strings"

	"habitvoice/internal/habit"
)

// aliasMatch is the outcome of matching one clause against the registry.
// Distance 0 means an exact case-insensitive hit.
type aliasMatch struct {
	Def      habit.Definition
	Term     string
	Distance int
	Pos      int
}

// Words never considered for fuzzy matching on their own; they only match
// as part of a longer exact alias ("did yoga").
var fuzzyStopwords = map[string]bool{
	"i": true, "a": true, "an": true, "the": true, "my": true, "me": true,
	"did": true, "do": true, "done": true, "for": true, "of": true, "to": true,
	"some": true, "went": true, "had": true, "got": true, "was": true,
	"and": true, "with": true, "today": true, "yesterday": true,
}

// matchAliases resolves a clause to a habit definition.
//
// Exact case-insensitive matches always win over fuzzy ones. Among fuzzy
// matches the lowest edit distance wins; a tie between distinct habits at
// equal distance returns all tied candidates so the caller can emit an
// unresolved event instead of picking arbitrarily.
func matchAliases(clause string, defs []habit.Definition, tolerance int) (best *aliasMatch, tied []aliasMatch) {
	words := clauseWords(clause)
	if len(words) == 0 || len(defs) == 0 {
		return nil, nil
	}

	var matches []aliasMatch
	for _, def := range defs {
		if m, ok := exactMatch(words, def); ok {
			matches = append(matches, m)
		}
	}
	if len(matches) > 0 {
		sort.Slice(matches, func(i, j int) bool {
			if matches[i].Pos != matches[j].Pos {
				return matches[i].Pos < matches[j].Pos
			}
			if len(matches[i].Term) != len(matches[j].Term) {
				return len(matches[i].Term) > len(matches[j].Term)
			}
			return matches[i].Def.Name < matches[j].Def.Name
		})
		m := matches[0]
		return &m, nil
	}

	if tolerance <= 0 {
		return nil, nil
	}

	bestDist := tolerance + 1
	var fuzzy []aliasMatch
	for _, def := range defs {
		m, ok := fuzzyMatch(words, def, tolerance)
		if !ok {
			continue
		}
		if m.Distance < bestDist {
			bestDist = m.Distance
			fuzzy = fuzzy[:0]
			fuzzy = append(fuzzy, m)
		} else if m.Distance == bestDist {
			fuzzy = append(fuzzy, m)
		}
	}

	switch len(fuzzy) {
	case 0:
		return nil, nil
	case 1:
		m := fuzzy[0]
		return &m, nil
	default:
		sort.Slice(fuzzy, func(i, j int) bool { return fuzzy[i].Def.Name < fuzzy[j].Def.Name })
		return nil, fuzzy
	}
}

func clauseWords(clause string) []string {
	raw := strings.Fields(strings.ToLower(clause))
	words := make([]string, 0, len(raw))
	for _, w := range raw {
		w = strings.Trim(w, ",.!?\"'")
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}

// exactMatch looks for any term of the definition as a contiguous word
// sequence in the clause.
func exactMatch(words []string, def habit.Definition) (aliasMatch, bool) {
	bestPos := -1
	bestTerm := ""
	for _, term := range def.Terms() {
		termWords := strings.Fields(term)
		if len(termWords) == 0 {
			continue
		}
		for i := 0; i+len(termWords) <= len(words); i++ {
			hit := true
			for j, tw := range termWords {
				if words[i+j] != tw {
					hit = false
					break
				}
			}
			if hit {
				if bestPos == -1 || i < bestPos || (i == bestPos && len(term) > len(bestTerm)) {
					bestPos = i
					bestTerm = term
				}
				break
			}
		}
	}
	if bestPos == -1 {
		return aliasMatch{}, false
	}
	return aliasMatch{Def: def, Term: bestTerm, Distance: 0, Pos: bestPos}, true
}

// fuzzyMatch compares clause words (and adjacent word pairs, for multi-word
// aliases) against the definition's terms within the edit-distance budget.
func fuzzyMatch(words []string, def habit.Definition, tolerance int) (aliasMatch, bool) {
	best := aliasMatch{Distance: tolerance + 1}
	for _, term := range def.Terms() {
		multiWord := strings.Contains(term, " ")
		for i, w := range words {
			candidate := w
			if multiWord {
				if i+1 >= len(words) {
					continue
				}
				candidate = w + " " + words[i+1]
			} else if fuzzyStopwords[w] {
				continue
			}
			d := editDistance(candidate, term, tolerance)
			if d < 0 {
				continue
			}
			if d < best.Distance || (d == best.Distance && i < best.Pos) {
				best = aliasMatch{Def: def, Term: term, Distance: d, Pos: i}
			}
		}
	}
	if best.Distance > tolerance {
		return aliasMatch{}, false
	}
	return best, true
}

// editDistance is Levenshtein with a cutoff; returns -1 when the distance
// exceeds max.
func editDistance(a, b string, max int) int {
	if a == b {
		return 0
	}
	la, lb := len(a), len(b)
	if la-lb > max || lb-la > max {
		return -1
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			if curr[j] < rowMin {
				rowMin = curr[j]
			}
		}
		if rowMin > max {
			return -1
		}
		prev, curr = curr, prev
	}
	if prev[lb] > max {
		return -1
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
