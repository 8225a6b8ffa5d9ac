package interpret

import (
	"strconv"
	"strings"
	"time"
)

// Clock positions used when a phrase names a part of day.
const (
	morningHour   = 8
	afternoonHour = 15
	eveningHour   = 20
	nightHour     = 22
)

// resolveTimeRef detects a relative-time phrase in the clause and resolves
// it against the reference time. Without a phrase the reference time is
// returned unchanged, so occurred_at defaults to the utterance's received
// timestamp.
func resolveTimeRef(clause string, ref time.Time) time.Time {
	lower := strings.ToLower(clause)

	at := func(base time.Time, hour int) time.Time {
		return time.Date(base.Year(), base.Month(), base.Day(), hour, 0, 0, 0, base.Location())
	}

	switch {
	case strings.Contains(lower, "yesterday morning"):
		return at(ref.AddDate(0, 0, -1), morningHour)
	case strings.Contains(lower, "yesterday evening"):
		return at(ref.AddDate(0, 0, -1), eveningHour)
	case strings.Contains(lower, "yesterday"):
		return ref.AddDate(0, 0, -1)
	case strings.Contains(lower, "last night"):
		return at(ref.AddDate(0, 0, -1), nightHour)
	case strings.Contains(lower, "this morning"):
		return at(ref, morningHour)
	case strings.Contains(lower, "this afternoon"):
		return at(ref, afternoonHour)
	case strings.Contains(lower, "this evening"), strings.Contains(lower, "tonight"):
		return at(ref, eveningHour)
	}

	if days, ok := daysAgo(lower); ok {
		return ref.AddDate(0, 0, -days)
	}

	if wd, ok := lastWeekday(lower); ok {
		delta := int(ref.Weekday()) - int(wd)
		if delta <= 0 {
			delta += 7
		}
		return ref.AddDate(0, 0, -delta)
	}

	return ref
}

// daysAgo matches "N days ago" and "a day ago".
func daysAgo(lower string) (int, bool) {
	words := strings.Fields(lower)
	for i := 0; i+2 < len(words); i++ {
		if (words[i+1] == "days" || words[i+1] == "day") && strings.Trim(words[i+2], ",.") == "ago" {
			w := strings.Trim(words[i], ",.")
			if w == "a" || w == "an" {
				return 1, true
			}
			if n, err := strconv.Atoi(w); err == nil && n > 0 {
				return n, true
			}
			if spelled, ok := spelledNumbers[w]; ok {
				return int(spelled), true
			}
		}
	}
	return 0, false
}

var weekdays = map[string]time.Weekday{
	"monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday, "sunday": time.Sunday,
}

func lastWeekday(lower string) (time.Weekday, bool) {
	words := strings.Fields(lower)
	for i := 0; i+1 < len(words); i++ {
		if words[i] != "last" && words[i] != "on" {
			continue
		}
		if wd, ok := weekdays[strings.Trim(words[i+1], ",.")]; ok {
			return wd, true
		}
	}
	return 0, false
}
