package interpret

import (
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyInput is returned when an utterance is empty after trimming.
// Fatal to the call and non-retryable; callers should re-prompt the user.
var ErrEmptyInput = errors.New("empty utterance")

// Utterance sources.
type Source string

const (
	SourceText  Source = "text"
	SourceVoice Source = "voice"
)

// RawUtterance is one unit of raw user input submitted for interpretation.
type RawUtterance struct {
	Text       string
	Source     Source
	ReceivedAt time.Time
}

// ParsedEvent is one structured habit event extracted from an utterance.
// Uncertainty is carried in-band: an event that could not be matched is
// emitted Unresolved rather than dropped, and any event whose confidence
// falls below the acceptance threshold is flagged NeedsConfirmation.
type ParsedEvent struct {
	ID                string     `json:"id"`
	HabitID           string     `json:"habit_id,omitempty"`
	Habit             string     `json:"habit,omitempty"`
	Quantity          *float64   `json:"quantity,omitempty"`
	Unit              string     `json:"unit,omitempty"`
	OccurredAt        time.Time  `json:"occurred_at"`
	Confidence        float64    `json:"confidence"`
	RawSpan           string     `json:"raw_span"`
	Unresolved        bool       `json:"unresolved,omitempty"`
	NeedsConfirmation bool       `json:"needs_confirmation,omitempty"`
	Candidates        []string   `json:"candidates,omitempty"`
	Source            Source     `json:"source,omitempty"`
}

// Result is the outcome of interpreting one utterance. Warnings report
// degraded clauses (classifier unreachable, timeout) without failing the
// call; the affected events are still present, marked unresolved.
type Result struct {
	Events   []ParsedEvent
	Warnings []error
}

// eventNamespace seeds deterministic event IDs so that interpreting the
// same utterance twice yields bit-identical results.
var eventNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

func eventID(utterance string, received time.Time, clauseIndex int) string {
	seed := utterance + "|" + received.UTC().Format(time.RFC3339Nano) + "|" + strconv.Itoa(clauseIndex)
	return uuid.NewSHA1(eventNamespace, []byte(seed)).String()
}
