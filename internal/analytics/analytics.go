package analytics

import (
	"fmt"
	"sort"
	"time"

	"habitvoice/internal/store"
)

const dayFormat = "2006-01-02"

// Progress statuses for weekly goals.
const (
	StatusCompleted  = "completed"
	StatusInProgress = "in_progress"
	StatusNotStarted = "not_started"
)

// HabitProgress is one habit's standing against its weekly goal.
type HabitProgress struct {
	Habit      string
	Completed  int
	Target     int
	Percentage float64
	Status     string
}

// Service computes streaks and goal progress over the event store. All
// methods take an explicit "now" so results are reproducible in tests.
type Service struct {
	store *store.Store
}

func New(s *store.Store) *Service {
	return &Service{store: s}
}

// CurrentStreaks returns the consecutive-day streak per habit, counting
// backwards from today. A streak that ended yesterday still counts: missing
// today does not zero it until a full day has lapsed.
func (s *Service) CurrentStreaks(now time.Time) (map[string]int, error) {
	days, err := s.store.EventDays()
	if err != nil {
		return nil, fmt.Errorf("load event days: %w", err)
	}

	today := now.Format(dayFormat)
	yesterday := now.AddDate(0, 0, -1).Format(dayFormat)

	streaks := make(map[string]int)
	for habit, dates := range days {
		sorted := append([]string(nil), dates...)
		sort.Sort(sort.Reverse(sort.StringSlice(sorted)))

		if len(sorted) == 0 {
			continue
		}
		if sorted[0] != today && sorted[0] != yesterday {
			continue
		}

		streak := 1
		prev, _ := time.Parse(dayFormat, sorted[0])
		for _, d := range sorted[1:] {
			cur, err := time.Parse(dayFormat, d)
			if err != nil {
				continue
			}
			if prev.Sub(cur) == 24*time.Hour {
				streak++
				prev = cur
				continue
			}
			break
		}
		streaks[habit] = streak
	}
	return streaks, nil
}

// LongestStreaks returns the longest consecutive-day run ever recorded per
// habit.
func (s *Service) LongestStreaks() (map[string]int, error) {
	days, err := s.store.EventDays()
	if err != nil {
		return nil, fmt.Errorf("load event days: %w", err)
	}

	longest := make(map[string]int)
	for habit, dates := range days {
		sorted := append([]string(nil), dates...)
		sort.Strings(sorted)
		if len(sorted) == 0 {
			continue
		}

		maxStreak, current := 1, 1
		prev, _ := time.Parse(dayFormat, sorted[0])
		for _, d := range sorted[1:] {
			cur, err := time.Parse(dayFormat, d)
			if err != nil {
				continue
			}
			if cur.Sub(prev) == 24*time.Hour {
				current++
				if current > maxStreak {
					maxStreak = current
				}
			} else {
				current = 1
			}
			prev = cur
		}
		longest[habit] = maxStreak
	}
	return longest, nil
}

// WeekStart returns the Monday midnight opening the week containing now.
func WeekStart(now time.Time) time.Time {
	daysSinceMonday := (int(now.Weekday()) + 6) % 7
	start := now.AddDate(0, 0, -daysSinceMonday)
	return time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
}

// WeeklyProgress reports completions this week against each stored goal.
func (s *Service) WeeklyProgress(now time.Time) (map[string]HabitProgress, error) {
	goals, err := s.store.Goals()
	if err != nil {
		return nil, fmt.Errorf("load goals: %w", err)
	}
	if len(goals) == 0 {
		return map[string]HabitProgress{}, nil
	}

	counts, err := s.store.WeeklyCounts(WeekStart(now))
	if err != nil {
		return nil, fmt.Errorf("load weekly counts: %w", err)
	}

	progress := make(map[string]HabitProgress, len(goals))
	for _, goal := range goals {
		completed := counts[goal.Habit]
		p := HabitProgress{
			Habit:     goal.Habit,
			Completed: completed,
			Target:    goal.TargetPerWeek,
		}
		if goal.TargetPerWeek > 0 {
			p.Percentage = float64(completed) / float64(goal.TargetPerWeek) * 100
			if p.Percentage > 100 {
				p.Percentage = 100
			}
		}
		switch {
		case completed >= goal.TargetPerWeek && goal.TargetPerWeek > 0:
			p.Status = StatusCompleted
		case completed > 0:
			p.Status = StatusInProgress
		default:
			p.Status = StatusNotStarted
		}
		progress[goal.Habit] = p
	}
	return progress, nil
}
