package interpret

import "strings"

// Coordinating conjunctions that separate habit clauses. Longest first so
// "and then" is consumed before "and".
var conjunctions = []string{"and then", "then", "and", "plus", "also"}

// Unit vocabulary, grouped by family. Used both for quantity extraction and
// for the segmentation tie-break.
var unitFamilies = map[string]string{
	"second": "duration", "seconds": "duration", "sec": "duration", "secs": "duration",
	"minute": "duration", "minutes": "duration", "min": "duration", "mins": "duration",
	"hour": "duration", "hours": "duration", "hr": "duration", "hrs": "duration",
	"mile": "distance", "miles": "distance",
	"kilometer": "distance", "kilometers": "distance", "km": "distance",
	"meter": "distance", "meters": "distance",
	"step": "distance", "steps": "distance",
	"time": "count", "times": "count",
	"rep": "count", "reps": "count",
	"set": "count", "sets": "count",
	"lap": "count", "laps": "count",
	"page": "count", "pages": "count",
	"glass": "count", "glasses": "count",
	"cup": "count", "cups": "count",
	"session": "count", "sessions": "count",
}

func unitFamily(word string) (string, bool) {
	fam, ok := unitFamilies[strings.ToLower(word)]
	return fam, ok
}

// segment splits an utterance into candidate clauses on sentence boundaries
// and coordinating conjunctions. A segment that is nothing but a quantity
// phrase ("2 sets") modifies the clause before it rather than starting a new
// one, so it is merged back instead of split off.
func segment(text string) []string {
	sentences := splitSentences(text)

	var clauses []string
	for _, sentence := range sentences {
		parts := splitConjunctions(sentence)
		for _, part := range parts {
			part = strings.TrimSpace(strings.Trim(part, ","))
			if part == "" {
				continue
			}
			if len(clauses) > 0 && isQuantityOnly(part) {
				clauses[len(clauses)-1] = clauses[len(clauses)-1] + " and " + part
				continue
			}
			clauses = append(clauses, part)
		}
	}
	return clauses
}

// splitSentences splits on sentence boundaries. A period between two
// digits is a decimal point ("3.5 miles"), not a boundary.
func splitSentences(text string) []string {
	runes := []rune(text)
	var out []string
	var cur []rune
	for i, r := range runes {
		switch r {
		case '!', '?', ';', '\n':
			out = appendSentence(out, cur)
			cur = cur[:0]
		case '.':
			if i > 0 && i+1 < len(runes) && isDigit(runes[i-1]) && isDigit(runes[i+1]) {
				cur = append(cur, r)
				continue
			}
			out = appendSentence(out, cur)
			cur = cur[:0]
		default:
			cur = append(cur, r)
		}
	}
	return appendSentence(out, cur)
}

func appendSentence(out []string, cur []rune) []string {
	if s := strings.TrimSpace(string(cur)); s != "" {
		out = append(out, s)
	}
	return out
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func splitConjunctions(sentence string) []string {
	words := strings.Fields(sentence)
	var parts []string
	var current []string

	for i := 0; i < len(words); i++ {
		matched := 0
		for _, conj := range conjunctions {
			conjWords := strings.Fields(conj)
			if matchWords(words, i, conjWords) {
				matched = len(conjWords)
				break
			}
		}
		if matched > 0 {
			if len(current) > 0 {
				parts = append(parts, strings.Join(current, " "))
				current = current[:0]
			}
			i += matched - 1
			continue
		}

		// A trailing comma acts like a conjunction: "did yoga, ran"
		trailingComma := strings.HasSuffix(words[i], ",")
		current = append(current, strings.TrimSuffix(words[i], ","))
		if trailingComma {
			parts = append(parts, strings.Join(current, " "))
			current = current[:0]
		}
	}
	if len(current) > 0 {
		parts = append(parts, strings.Join(current, " "))
	}
	return parts
}

func matchWords(words []string, at int, want []string) bool {
	if at+len(want) > len(words) {
		return false
	}
	for j, w := range want {
		if !strings.EqualFold(strings.Trim(words[at+j], ","), w) {
			return false
		}
	}
	return true
}

// isQuantityOnly reports whether a segment consists solely of a quantity
// phrase and a unit word, e.g. "2 sets" or "thirty minutes".
func isQuantityOnly(segment string) bool {
	words := strings.Fields(strings.ToLower(segment))
	if len(words) == 0 {
		return false
	}
	sawNumber := false
	sawUnit := false
	for _, w := range words {
		w = strings.Trim(w, ",.")
		if isNumberWord(w) {
			sawNumber = true
			continue
		}
		if _, ok := unitFamily(w); ok {
			sawUnit = true
			continue
		}
		if w == "a" || w == "an" || w == "of" || w == "half" || w == "quarter" {
			continue
		}
		return false
	}
	return sawNumber && sawUnit
}
