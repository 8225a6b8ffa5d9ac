package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"habitvoice/internal/analytics"
	"habitvoice/internal/store"
)

// Exporter renders the event store as CSV, JSON, or a plain-text progress
// report.
type Exporter struct {
	store     *store.Store
	analytics *analytics.Service
}

func New(s *store.Store, a *analytics.Service) *Exporter {
	return &Exporter{store: s, analytics: a}
}

var csvHeader = []string{"id", "habit_id", "habit", "quantity", "unit", "occurred_at", "confidence", "raw_span", "source", "unresolved", "needs_confirmation"}

func (e *Exporter) CSV(w io.Writer) error {
	events, err := e.store.AllEvents()
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, ev := range events {
		qty := ""
		if ev.Quantity != nil {
			qty = strconv.FormatFloat(*ev.Quantity, 'f', -1, 64)
		}
		record := []string{
			ev.ID, ev.HabitID, ev.Habit, qty, ev.Unit,
			ev.OccurredAt.UTC().Format(time.RFC3339),
			strconv.FormatFloat(ev.Confidence, 'f', 2, 64),
			ev.RawSpan, ev.Source,
			strconv.FormatBool(ev.Unresolved),
			strconv.FormatBool(ev.NeedsConfirmation),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

type jsonBackup struct {
	User       string         `json:"user,omitempty"`
	ExportDate string         `json:"export_date"`
	Events     []store.Event  `json:"events"`
	Goals      []store.Goal   `json:"goals"`
	Summary    backupSummary  `json:"summary"`
}

type backupSummary struct {
	TotalCompletions int            `json:"total_completions"`
	UniqueHabits     int            `json:"unique_habits"`
	CurrentStreaks   map[string]int `json:"current_streaks"`
}

func (e *Exporter) JSON(w io.Writer, user string, now time.Time) error {
	events, err := e.store.AllEvents()
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	goals, err := e.store.Goals()
	if err != nil {
		return fmt.Errorf("load goals: %w", err)
	}
	streaks, err := e.analytics.CurrentStreaks(now)
	if err != nil {
		return fmt.Errorf("compute streaks: %w", err)
	}

	habits := make(map[string]bool)
	completions := 0
	for _, ev := range events {
		if !ev.Unresolved {
			completions++
			habits[ev.Habit] = true
		}
	}

	backup := jsonBackup{
		User:       user,
		ExportDate: now.UTC().Format(time.RFC3339),
		Events:     events,
		Goals:      goals,
		Summary: backupSummary{
			TotalCompletions: completions,
			UniqueHabits:     len(habits),
			CurrentStreaks:   streaks,
		},
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(backup)
}

// Report writes a human-readable progress summary.
func (e *Exporter) Report(w io.Writer, user string, now time.Time) error {
	events, err := e.store.AllEvents()
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	current, err := e.analytics.CurrentStreaks(now)
	if err != nil {
		return fmt.Errorf("compute current streaks: %w", err)
	}
	longest, err := e.analytics.LongestStreaks()
	if err != nil {
		return fmt.Errorf("compute longest streaks: %w", err)
	}
	progress, err := e.analytics.WeeklyProgress(now)
	if err != nil {
		return fmt.Errorf("compute weekly progress: %w", err)
	}

	habits := make(map[string]bool)
	days := make(map[string]bool)
	completions := 0
	for _, ev := range events {
		if ev.Unresolved {
			continue
		}
		completions++
		habits[ev.Habit] = true
		days[ev.OccurredAt.Format("2006-01-02")] = true
	}
	totalStreak := 0
	for _, v := range current {
		totalStreak += v
	}

	var sb strings.Builder
	sb.WriteString("HABITVOICE PROGRESS REPORT\n")
	if user != "" {
		fmt.Fprintf(&sb, "User: %s\n", user)
	}
	fmt.Fprintf(&sb, "Generated: %s\n\n", now.Format("2006-01-02 15:04:05"))

	sb.WriteString("==================== SUMMARY ====================\n")
	fmt.Fprintf(&sb, "Total Completions: %d\n", completions)
	fmt.Fprintf(&sb, "Unique Habits: %d\n", len(habits))
	fmt.Fprintf(&sb, "Days Active: %d\n", len(days))
	fmt.Fprintf(&sb, "Total Streak Days: %d\n\n", totalStreak)

	sb.WriteString("==================== CURRENT STREAKS ====================\n")
	writeStreaks(&sb, current, "No active streaks")

	sb.WriteString("\n==================== LONGEST STREAKS ====================\n")
	writeStreaks(&sb, longest, "No streak records yet")

	sb.WriteString("\n==================== WEEKLY PROGRESS ====================\n")
	if len(progress) == 0 {
		sb.WriteString("No weekly goals set\n")
	} else {
		names := make([]string, 0, len(progress))
		for name := range progress {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p := progress[name]
			fmt.Fprintf(&sb, "%s: %d/%d (%.0f%%)\n", p.Habit, p.Completed, p.Target, p.Percentage)
		}
	}

	_, err = io.WriteString(w, sb.String())
	return err
}

func writeStreaks(sb *strings.Builder, streaks map[string]int, empty string) {
	if len(streaks) == 0 {
		sb.WriteString(empty + "\n")
		return
	}
	type pair struct {
		habit string
		days  int
	}
	pairs := make([]pair, 0, len(streaks))
	for habit, days := range streaks {
		pairs = append(pairs, pair{habit, days})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].days != pairs[j].days {
			return pairs[i].days > pairs[j].days
		}
		return pairs[i].habit < pairs[j].habit
	})
	for _, p := range pairs {
		fmt.Fprintf(sb, "%s: %d days\n", p.habit, p.days)
	}
}
