package interpret

import (
	"context"
	"fmt"
	"strings"
	"time"

	"habitvoice/internal/habit"
)

// maxClassifierConfidence caps what the external semantic collaborator can
// claim; its inference is unverified, so it never outranks a direct alias
// match.
const maxClassifierConfidence = 0.7

// Confidence penalty per point of edit distance on fuzzy alias matches.
const fuzzyPenalty = 0.25

// Options tune a single interpretation pass.
type Options struct {
	// FuzzyTolerance bounds the edit distance for alias matching: 0, 1 or 2.
	FuzzyTolerance int
	// AcceptThreshold is the confidence below which an event is flagged
	// NeedsConfirmation.
	AcceptThreshold float64
	// ClassifierTimeout bounds the external classification call per clause.
	ClassifierTimeout time.Duration
}

// Interpreter maps free-form text to structured habit events. It holds no
// mutable state across calls; concurrent Interpret invocations are
// independent.
type Interpreter struct {
	classifier Classifier // nil disables the semantic fallback
	opts       Options
}

func New(classifier Classifier, opts Options) *Interpreter {
	if opts.FuzzyTolerance < 0 || opts.FuzzyTolerance > 2 {
		opts.FuzzyTolerance = 1
	}
	if opts.AcceptThreshold <= 0 || opts.AcceptThreshold > 1 {
		opts.AcceptThreshold = 0.6
	}
	if opts.ClassifierTimeout <= 0 {
		opts.ClassifierTimeout = 5 * time.Second
	}
	return &Interpreter{classifier: classifier, opts: opts}
}

// Interpret converts an utterance into zero or more ParsedEvents, in clause
// order. No clause is lost: clauses that match nothing become unresolved
// events. Classifier failures degrade the affected clause to unresolved
// with confidence 0 and are reported in Result.Warnings; they never abort
// the utterance. The only hard failure is ErrEmptyInput.
func (it *Interpreter) Interpret(ctx context.Context, u RawUtterance, known []habit.Definition) (*Result, error) {
	text := strings.TrimSpace(u.Text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	ref := u.ReceivedAt
	if ref.IsZero() {
		ref = time.Now()
	}

	clauses := segment(text)
	res := &Result{Events: make([]ParsedEvent, 0, len(clauses))}

	for i, clause := range clauses {
		ev := ParsedEvent{
			ID:         eventID(text, ref, i),
			OccurredAt: resolveTimeRef(clause, ref),
			RawSpan:    clause,
			Source:     u.Source,
		}
		ev.Quantity, ev.Unit = extractQuantity(clause)

		best, tied := matchAliases(clause, known, it.opts.FuzzyTolerance)
		switch {
		case best != nil:
			ev.HabitID = best.Def.ID
			ev.Habit = best.Def.Name
			ev.Confidence = 1.0 - fuzzyPenalty*float64(best.Distance)
		case len(tied) > 0:
			// Equal-distance fuzzy candidates: never pick arbitrarily. The
			// confidence reflects the shared distance; resolution waits on the
			// user.
			ev.Unresolved = true
			ev.Confidence = 1.0 - fuzzyPenalty*float64(tied[0].Distance)
			for _, m := range tied {
				ev.Candidates = append(ev.Candidates, m.Def.Name)
			}
		default:
			it.classify(ctx, clause, known, &ev, res)
		}

		// Unresolved events always wait for the user, whatever the
		// confidence of the tied candidates.
		if ev.Unresolved || ev.Confidence < it.opts.AcceptThreshold {
			ev.NeedsConfirmation = true
		}
		res.Events = append(res.Events, ev)
	}

	return res, nil
}

// classify delegates an unmatched clause to the external semantic
// collaborator and folds the guess back into the event.
func (it *Interpreter) classify(ctx context.Context, clause string, known []habit.Definition, ev *ParsedEvent, res *Result) {
	if it.classifier == nil {
		ev.Unresolved = true
		ev.Confidence = 0
		return
	}

	names := make([]string, 0, len(known))
	for _, def := range known {
		names = append(names, def.Name)
	}

	cctx, cancel := context.WithTimeout(ctx, it.opts.ClassifierTimeout)
	defer cancel()

	guess, err := it.classifier.Classify(cctx, clause, names)
	if err != nil {
		ev.Unresolved = true
		ev.Confidence = 0
		res.Warnings = append(res.Warnings, fmt.Errorf("classify %q: %w", clause, err))
		return
	}

	conf := guess.Confidence
	if conf <= 0 || conf > maxClassifierConfidence {
		conf = maxClassifierConfidence
	}

	if guess.Habit == "" {
		ev.Unresolved = true
		ev.Confidence = 0
		return
	}

	if ev.Quantity == nil && guess.Quantity != nil {
		ev.Quantity = guess.Quantity
		if ev.Unit == "" {
			ev.Unit = guess.Unit
		}
	}

	for _, def := range known {
		if def.Matches(guess.Habit) {
			ev.HabitID = def.ID
			ev.Habit = def.Name
			ev.Confidence = conf
			return
		}
	}

	// Guess named something outside the registry: keep the phrase, stay
	// unresolved.
	ev.Unresolved = true
	ev.Habit = guess.Habit
	ev.Confidence = conf
}
