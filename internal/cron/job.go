package cron

import (
	"time"

	"github.com/google/uuid"
)

// Job kinds the gateway knows how to execute.
const (
	KindWeeklyReport = "weekly-report"
	KindReminder     = "reminder"
)

// Schedule is either a cron expression (with seconds) or a fixed interval.
type Schedule struct {
	Kind    string `json:"kind"` // "cron" or "every"
	Expr    string `json:"expr,omitempty"`
	EveryMs int64  `json:"everyMs,omitempty"`
}

// Payload tells the job handler what to do and where to deliver the result.
type Payload struct {
	Kind    string `json:"kind"`
	Habit   string `json:"habit,omitempty"`
	Message string `json:"message,omitempty"`
	Channel string `json:"channel,omitempty"`
	To      string `json:"to,omitempty"`
}

type JobState struct {
	LastRunAtMs int64  `json:"lastRunAtMs,omitempty"`
	LastStatus  string `json:"lastStatus,omitempty"`
	LastError   string `json:"lastError,omitempty"`
}

type Job struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Enabled   bool     `json:"enabled"`
	Schedule  Schedule `json:"schedule"`
	Payload   Payload  `json:"payload"`
	State     JobState `json:"state"`
	CreatedAt int64    `json:"createdAtMs"`
}

func NewJob(name string, schedule Schedule, payload Payload) Job {
	return Job{
		ID:        uuid.NewString(),
		Name:      name,
		Enabled:   true,
		Schedule:  schedule,
		Payload:   payload,
		CreatedAt: time.Now().UnixMilli(),
	}
}
