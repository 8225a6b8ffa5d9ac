package interpret

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"habitvoice/internal/habit"
)

func testDefs() []habit.Definition {
	return []habit.Definition{
		{ID: "running", Name: "running", Aliases: []string{"ran", "run"}},
		{ID: "yoga", Name: "yoga", Aliases: []string{"did yoga"}},
		{ID: "water", Name: "drinking water", Aliases: []string{"water", "drank water"}},
		{ID: "reading", Name: "reading", Aliases: []string{"read"}},
	}
}

// stubClassifier returns a fixed classification or error.
type stubClassifier struct {
	result *Classification
	err    error
	calls  int
}

func (s *stubClassifier) Classify(ctx context.Context, clause string, knownHabits []string) (*Classification, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

// blockingClassifier never answers until the context is cancelled.
type blockingClassifier struct{}

func (b *blockingClassifier) Classify(ctx context.Context, clause string, knownHabits []string) (*Classification, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestInterpret_EmptyInput(t *testing.T) {
	it := New(nil, Options{})
	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := it.Interpret(context.Background(), RawUtterance{Text: text}, testDefs())
		if !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Interpret(%q) err = %v, want ErrEmptyInput", text, err)
		}
	}
}

func TestInterpret_SingleExactMatch(t *testing.T) {
	it := New(nil, Options{})
	received := time.Date(2025, 3, 10, 18, 30, 0, 0, time.UTC)

	res, err := it.Interpret(context.Background(), RawUtterance{
		Text:       "I ran 3 miles",
		Source:     SourceText,
		ReceivedAt: received,
	}, testDefs())
	if err != nil {
		t.Fatalf("Interpret error: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(res.Events))
	}

	ev := res.Events[0]
	if ev.HabitID != "running" {
		t.Errorf("habitID = %q, want running", ev.HabitID)
	}
	if ev.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", ev.Confidence)
	}
	if ev.NeedsConfirmation {
		t.Error("exact match should not need confirmation")
	}
	if ev.Quantity == nil || *ev.Quantity != 3 {
		t.Errorf("quantity = %v, want 3", ev.Quantity)
	}
	if ev.Unit != "miles" {
		t.Errorf("unit = %q, want miles", ev.Unit)
	}
	if !ev.OccurredAt.Equal(received) {
		t.Errorf("occurredAt = %v, want %v", ev.OccurredAt, received)
	}
	if ev.Source != SourceText {
		t.Errorf("source = %q, want text", ev.Source)
	}
}

func TestInterpret_DecimalQuantity(t *testing.T) {
	it := New(nil, Options{})
	res, err := it.Interpret(context.Background(), RawUtterance{
		Text:       "I ran 3.5 miles",
		ReceivedAt: time.Now(),
	}, testDefs())
	if err != nil {
		t.Fatalf("Interpret error: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(res.Events))
	}

	ev := res.Events[0]
	if ev.HabitID != "running" {
		t.Errorf("habitID = %q, want running", ev.HabitID)
	}
	if ev.RawSpan != "I ran 3.5 miles" {
		t.Errorf("rawSpan = %q, want the clause intact", ev.RawSpan)
	}
	if ev.Quantity == nil || *ev.Quantity != 3.5 {
		t.Errorf("quantity = %v, want 3.5", ev.Quantity)
	}
	if ev.Unit != "miles" {
		t.Errorf("unit = %q, want miles", ev.Unit)
	}
}

func TestInterpret_MultipleClausesInOrder(t *testing.T) {
	it := New(nil, Options{})
	res, err := it.Interpret(context.Background(), RawUtterance{
		Text:       "did yoga and drank 2 glasses of water",
		ReceivedAt: time.Now(),
	}, testDefs())
	if err != nil {
		t.Fatalf("Interpret error: %v", err)
	}
	if len(res.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(res.Events))
	}

	if res.Events[0].HabitID != "yoga" {
		t.Errorf("first habit = %q, want yoga", res.Events[0].HabitID)
	}
	if res.Events[1].HabitID != "water" {
		t.Errorf("second habit = %q, want water", res.Events[1].HabitID)
	}
	if res.Events[1].Quantity == nil || *res.Events[1].Quantity != 2 {
		t.Errorf("second quantity = %v, want 2", res.Events[1].Quantity)
	}
	if res.Events[1].Unit != "glasses" {
		t.Errorf("second unit = %q, want glasses", res.Events[1].Unit)
	}
}

func TestInterpret_Deterministic(t *testing.T) {
	it := New(nil, Options{})
	u := RawUtterance{
		Text:       "I ran 3 miles and did yoga",
		Source:     SourceText,
		ReceivedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}

	first, err := it.Interpret(context.Background(), u, testDefs())
	if err != nil {
		t.Fatal(err)
	}
	second, err := it.Interpret(context.Background(), u, testDefs())
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(first.Events, second.Events) {
		t.Errorf("replay differs:\nfirst:  %+v\nsecond: %+v", first.Events, second.Events)
	}
	if first.Events[0].ID == first.Events[1].ID {
		t.Error("clause IDs within one utterance must differ")
	}
}

func TestInterpret_FuzzyMatchPenalty(t *testing.T) {
	it := New(nil, Options{FuzzyTolerance: 1})
	res, err := it.Interpret(context.Background(), RawUtterance{
		Text:       "did yogga this morning",
		ReceivedAt: time.Now(),
	}, testDefs())
	if err != nil {
		t.Fatal(err)
	}
	ev := res.Events[0]
	if ev.HabitID != "yoga" {
		t.Fatalf("habitID = %q, want yoga", ev.HabitID)
	}
	if ev.Confidence != 0.75 {
		t.Errorf("confidence = %v, want 0.75", ev.Confidence)
	}
	if ev.NeedsConfirmation {
		t.Error("distance-1 fuzzy match at default threshold should not need confirmation")
	}
}

func TestInterpret_FuzzyTieYieldsCandidates(t *testing.T) {
	defs := []habit.Definition{
		{ID: "biking", Name: "biking"},
		{ID: "hiking", Name: "hiking"},
	}
	it := New(nil, Options{FuzzyTolerance: 1})
	res, err := it.Interpret(context.Background(), RawUtterance{
		Text:       "went miking",
		ReceivedAt: time.Now(),
	}, defs)
	if err != nil {
		t.Fatal(err)
	}
	ev := res.Events[0]
	if !ev.Unresolved {
		t.Error("tied fuzzy match should stay unresolved")
	}
	if !ev.NeedsConfirmation {
		t.Error("tied fuzzy match should need confirmation")
	}
	want := []string{"biking", "hiking"}
	if !reflect.DeepEqual(ev.Candidates, want) {
		t.Errorf("candidates = %v, want %v", ev.Candidates, want)
	}
	if ev.Confidence != 0.75 {
		t.Errorf("confidence = %v, want 0.75 for a distance-1 tie", ev.Confidence)
	}
}

func TestInterpret_NoMatchWithoutClassifier(t *testing.T) {
	it := New(nil, Options{})
	res, err := it.Interpret(context.Background(), RawUtterance{
		Text:       "flombuzzled the quibbits",
		ReceivedAt: time.Now(),
	}, testDefs())
	if err != nil {
		t.Fatal(err)
	}
	ev := res.Events[0]
	if !ev.Unresolved {
		t.Error("unmatched clause should be unresolved, not dropped")
	}
	if ev.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", ev.Confidence)
	}
	if !ev.NeedsConfirmation {
		t.Error("zero-confidence event should need confirmation")
	}
	if ev.RawSpan != "flombuzzled the quibbits" {
		t.Errorf("rawSpan = %q", ev.RawSpan)
	}
}

func TestInterpret_ClassifierResolves(t *testing.T) {
	qty := 20.0
	stub := &stubClassifier{result: &Classification{
		Habit:      "running",
		Quantity:   &qty,
		Unit:       "minutes",
		Confidence: 0.9,
	}}
	it := New(stub, Options{})

	res, err := it.Interpret(context.Background(), RawUtterance{
		Text:       "went for a quick sprint outside",
		ReceivedAt: time.Now(),
	}, testDefs())
	if err != nil {
		t.Fatal(err)
	}
	if stub.calls != 1 {
		t.Errorf("classifier calls = %d, want 1", stub.calls)
	}
	ev := res.Events[0]
	if ev.HabitID != "running" {
		t.Fatalf("habitID = %q, want running", ev.HabitID)
	}
	if ev.Confidence != 0.7 {
		t.Errorf("confidence = %v, want capped 0.7", ev.Confidence)
	}
	if ev.NeedsConfirmation {
		t.Error("capped classifier confidence is above the default threshold")
	}
	if ev.Quantity == nil || *ev.Quantity != 20 {
		t.Errorf("quantity = %v, want 20 from classifier", ev.Quantity)
	}
	if ev.Unit != "minutes" {
		t.Errorf("unit = %q, want minutes", ev.Unit)
	}
}

func TestInterpret_ClassifierUnknownGuess(t *testing.T) {
	stub := &stubClassifier{result: &Classification{Habit: "swimming", Confidence: 0.8}}
	it := New(stub, Options{})

	res, err := it.Interpret(context.Background(), RawUtterance{
		Text:       "splashed around at the pool",
		ReceivedAt: time.Now(),
	}, testDefs())
	if err != nil {
		t.Fatal(err)
	}
	ev := res.Events[0]
	if !ev.Unresolved {
		t.Error("guess outside the registry should stay unresolved")
	}
	if ev.Habit != "swimming" {
		t.Errorf("habit = %q, want the guessed phrase kept", ev.Habit)
	}
	if ev.HabitID != "" {
		t.Errorf("habitID = %q, want empty", ev.HabitID)
	}
}

func TestInterpret_ClassifierErrorDegrades(t *testing.T) {
	stub := &stubClassifier{err: fmt.Errorf("connection refused")}
	it := New(stub, Options{})

	res, err := it.Interpret(context.Background(), RawUtterance{
		Text:       "mystery activity",
		ReceivedAt: time.Now(),
	}, testDefs())
	if err != nil {
		t.Fatalf("classifier failure must not abort the call: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("warnings = %d, want 1", len(res.Warnings))
	}
	ev := res.Events[0]
	if !ev.Unresolved || ev.Confidence != 0 {
		t.Errorf("event = %+v, want unresolved with confidence 0", ev)
	}
	if ev.RawSpan != "mystery activity" {
		t.Errorf("rawSpan = %q, must be preserved", ev.RawSpan)
	}
}

func TestInterpret_ClassifierTimeout(t *testing.T) {
	it := New(&blockingClassifier{}, Options{ClassifierTimeout: 50 * time.Millisecond})

	start := time.Now()
	res, err := it.Interpret(context.Background(), RawUtterance{
		Text:       "mystery activity",
		ReceivedAt: time.Now(),
	}, testDefs())
	if err != nil {
		t.Fatalf("timeout must not abort the call: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout not enforced, took %v", elapsed)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("warnings = %d, want 1", len(res.Warnings))
	}
	ev := res.Events[0]
	if !ev.Unresolved || ev.Confidence != 0 {
		t.Errorf("event = %+v, want unresolved with confidence 0", ev)
	}
}

func TestInterpret_MatchedClausesSkipClassifier(t *testing.T) {
	stub := &stubClassifier{result: &Classification{Habit: "running"}}
	it := New(stub, Options{})

	_, err := it.Interpret(context.Background(), RawUtterance{
		Text:       "I ran 3 miles",
		ReceivedAt: time.Now(),
	}, testDefs())
	if err != nil {
		t.Fatal(err)
	}
	if stub.calls != 0 {
		t.Errorf("classifier calls = %d, want 0 for an exact alias match", stub.calls)
	}
}

func TestInterpret_ThresholdFlagsLowConfidence(t *testing.T) {
	it := New(nil, Options{FuzzyTolerance: 2, AcceptThreshold: 0.9})
	res, err := it.Interpret(context.Background(), RawUtterance{
		Text:       "did yogga",
		ReceivedAt: time.Now(),
	}, testDefs())
	if err != nil {
		t.Fatal(err)
	}
	ev := res.Events[0]
	if ev.HabitID != "yoga" {
		t.Fatalf("habitID = %q, want yoga", ev.HabitID)
	}
	if !ev.NeedsConfirmation {
		t.Error("confidence 0.75 under threshold 0.9 should need confirmation")
	}
}

func TestEventID_VariesByClauseIndex(t *testing.T) {
	received := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	a := eventID("text", received, 0)
	b := eventID("text", received, 1)
	if a == b {
		t.Error("different clause indices must yield different IDs")
	}
	if a != eventID("text", received, 0) {
		t.Error("same inputs must yield the same ID")
	}
}
