package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"habitvoice/internal/interpret"
)

// Store persists parsed habit events and weekly goals in sqlite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Event is one persisted habit event row.
type Event struct {
	ID                string
	HabitID           string
	Habit             string
	Quantity          *float64
	Unit              string
	OccurredAt        time.Time
	Confidence        float64
	RawSpan           string
	Source            string
	Unresolved        bool
	NeedsConfirmation bool
	CreatedAt         string
}

// Goal is a weekly target for one habit.
type Goal struct {
	HabitID       string
	Habit         string
	TargetPerWeek int
	Category      string
	CreatedAt     string
}

func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			habit_id TEXT NOT NULL DEFAULT '',
			habit TEXT NOT NULL,
			quantity REAL,
			unit TEXT NOT NULL DEFAULT '',
			occurred_at TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			raw_span TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT 'text',
			unresolved INTEGER NOT NULL DEFAULT 0,
			needs_confirmation INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_habit ON events(habit_id, occurred_at)`,
		`CREATE TABLE IF NOT EXISTS goals (
			habit_id TEXT PRIMARY KEY,
			habit TEXT NOT NULL,
			target_per_week INTEGER NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordEvents inserts parsed events, preserving their order. Replays of
// the same utterance are idempotent because event IDs are deterministic.
func (s *Store) RecordEvents(events []interpret.ParsedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, ev := range events {
		_, err := tx.Exec(
			`INSERT OR REPLACE INTO events
			 (id, habit_id, habit, quantity, unit, occurred_at, confidence, raw_span, source, unresolved, needs_confirmation)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, ev.HabitID, ev.Habit, ev.Quantity, ev.Unit,
			ev.OccurredAt.UTC().Format(time.RFC3339), ev.Confidence, ev.RawSpan,
			string(ev.Source), boolToInt(ev.Unresolved), boolToInt(ev.NeedsConfirmation),
		)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return tx.Commit()
}

// ConfirmEvent clears the needs_confirmation flag after the user accepts a
// low-confidence entry.
func (s *Store) ConfirmEvent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`UPDATE events SET needs_confirmation = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("confirm event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("confirm event: no row %s", id)
	}
	return nil
}

func (s *Store) DeleteEvent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// DeleteHabitEvents removes all events for a habit and returns how many
// rows went away.
func (s *Store) DeleteHabitEvents(habitID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM events WHERE habit_id = ?`, habitID)
	if err != nil {
		return 0, fmt.Errorf("delete habit events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// AllEvents returns every recorded event, oldest first.
func (s *Store) AllEvents() ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT id, habit_id, habit, quantity, unit, occurred_at, confidence, raw_span, source, unresolved, needs_confirmation, created_at
		 FROM events ORDER BY occurred_at ASC, created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// EventsByHabit returns up to limit most recent events for one habit.
func (s *Store) EventsByHabit(habitID string, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT id, habit_id, habit, quantity, unit, occurred_at, confidence, raw_span, source, unresolved, needs_confirmation, created_at
		 FROM events WHERE habit_id = ? ORDER BY occurred_at DESC LIMIT ?`, habitID, limit)
	if err != nil {
		return nil, fmt.Errorf("query habit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// EventDays returns, per habit name, the distinct calendar days the habit
// was logged on. Unresolved events do not count toward streaks.
func (s *Store) EventDays() (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT DISTINCT habit, substr(occurred_at, 1, 10) AS day
		 FROM events WHERE unresolved = 0 ORDER BY habit, day`)
	if err != nil {
		return nil, fmt.Errorf("query event days: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var habit, day string
		if err := rows.Scan(&habit, &day); err != nil {
			return nil, fmt.Errorf("scan event day: %w", err)
		}
		out[habit] = append(out[habit], day)
	}
	return out, rows.Err()
}

// WeeklyCounts returns completions per habit name since the given instant.
func (s *Store) WeeklyCounts(since time.Time) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT habit, COUNT(*) FROM events
		 WHERE unresolved = 0 AND occurred_at >= ?
		 GROUP BY habit`, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("query weekly counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var habit string
		var count int
		if err := rows.Scan(&habit, &count); err != nil {
			return nil, fmt.Errorf("scan weekly count: %w", err)
		}
		out[habit] = count
	}
	return out, rows.Err()
}

func (s *Store) SetGoal(goal Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO goals (habit_id, habit, target_per_week, category)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(habit_id) DO UPDATE SET target_per_week = excluded.target_per_week, category = excluded.category`,
		goal.HabitID, goal.Habit, goal.TargetPerWeek, goal.Category)
	if err != nil {
		return fmt.Errorf("set goal: %w", err)
	}
	return nil
}

func (s *Store) RemoveGoal(habitID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM goals WHERE habit_id = ?`, habitID)
	if err != nil {
		return fmt.Errorf("remove goal: %w", err)
	}
	return nil
}

func (s *Store) Goals() ([]Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT habit_id, habit, target_per_week, category, created_at FROM goals ORDER BY habit`)
	if err != nil {
		return nil, fmt.Errorf("query goals: %w", err)
	}
	defer rows.Close()

	var goals []Goal
	for rows.Next() {
		var g Goal
		if err := rows.Scan(&g.HabitID, &g.Habit, &g.TargetPerWeek, &g.Category, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// Stats is a compact snapshot used by status reporting.
type Stats struct {
	TotalEvents      int
	UnresolvedEvents int
	PendingEvents    int
	Goals            int
}

func (s *Store) Stats() (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &Stats{}
	row := s.db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(unresolved), 0),
		        COALESCE(SUM(needs_confirmation), 0)
		 FROM events`)
	if err := row.Scan(&st.TotalEvents, &st.UnresolvedEvents, &st.PendingEvents); err != nil {
		return nil, fmt.Errorf("scan event stats: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM goals`).Scan(&st.Goals); err != nil {
		return nil, fmt.Errorf("scan goal stats: %w", err)
	}
	return st, nil
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var ev Event
		var occurredAt string
		var quantity sql.NullFloat64
		var unresolved, pending int
		if err := rows.Scan(&ev.ID, &ev.HabitID, &ev.Habit, &quantity, &ev.Unit, &occurredAt,
			&ev.Confidence, &ev.RawSpan, &ev.Source, &unresolved, &pending, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if quantity.Valid {
			v := quantity.Float64
			ev.Quantity = &v
		}
		if t, err := time.Parse(time.RFC3339, occurredAt); err == nil {
			ev.OccurredAt = t
		}
		ev.Unresolved = unresolved != 0
		ev.NeedsConfirmation = pending != 0
		events = append(events, ev)
	}
	return events, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
