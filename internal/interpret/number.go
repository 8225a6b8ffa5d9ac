package interpret

import (
	"strconv"
	"strings"
)

var spelledNumbers = map[string]float64{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19, "twenty": 20,
}

var fractions = map[string]float64{
	"half":    0.5,
	"quarter": 0.25,
}

func isNumberWord(word string) bool {
	word = strings.Trim(strings.ToLower(word), ",.")
	if _, err := strconv.ParseFloat(word, 64); err == nil {
		return true
	}
	if _, ok := spelledNumbers[word]; ok {
		return true
	}
	_, ok := fractions[word]
	return ok
}

// extractQuantity scans a clause left to right and returns the first
// quantity phrase along with its unit word, if one immediately follows.
// Recognized: digits (with decimals), spelled numbers one through twenty,
// simple fractions ("half", "quarter", "two and a half"). The first match
// wins; the phrase is consumed so it cannot feed a second event.
func extractQuantity(clause string) (qty *float64, unit string) {
	words := strings.Fields(strings.ToLower(clause))

	for i := 0; i < len(words); i++ {
		w := strings.Trim(words[i], ",.")

		var value float64
		var ok bool
		if parsed, err := strconv.ParseFloat(w, 64); err == nil {
			value, ok = parsed, true
		} else if spelled, found := spelledNumbers[w]; found {
			value, ok = spelled, true
		} else if frac, found := fractions[w]; found {
			// "half an hour", "quarter of an hour"
			value, ok = frac, true
		}
		if !ok {
			continue
		}

		next := i + 1
		// "two and a half" / "2 and a quarter"
		if next+2 < len(words) && words[next] == "and" &&
			(words[next+1] == "a" || words[next+1] == "an") {
			if frac, found := fractions[strings.Trim(words[next+2], ",.")]; found {
				value += frac
				next += 3
			}
		}

		// Skip filler between number and unit: "half an hour", "3 of them"
		for next < len(words) {
			w2 := strings.Trim(words[next], ",.")
			if w2 == "a" || w2 == "an" || w2 == "of" {
				next++
				continue
			}
			break
		}
		if next < len(words) {
			if _, isUnit := unitFamily(strings.Trim(words[next], ",.")); isUnit {
				unit = strings.Trim(words[next], ",.")
			}
		}

		v := value
		return &v, unit
	}
	return nil, ""
}
