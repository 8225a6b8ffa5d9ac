package gateway

import (
	"context"
	"strings"
	"testing"
	"time"

	"habitvoice/internal/bus"
	"habitvoice/internal/config"
	"habitvoice/internal/cron"
	"habitvoice/internal/habit"
	"habitvoice/internal/interpret"
)

type stubClassifier struct {
	result *interpret.Classification
	err    error
}

func (s *stubClassifier) Classify(ctx context.Context, clause string, knownHabits []string) (*interpret.Classification, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubTranscriber struct {
	text string
	err  error
}

func (s *stubTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

func newTestGateway(t *testing.T, opts Options) *Gateway {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("HABITVOICE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	registry, err := habit.LoadRegistry(config.RegistryPath())
	if err != nil {
		t.Fatal(err)
	}
	for _, def := range []habit.Definition{
		{ID: "running", Name: "running", Aliases: []string{"ran", "run"}, Unit: habit.UnitCount},
		{ID: "yoga", Name: "yoga", Aliases: []string{"did yoga"}, Unit: habit.UnitDuration},
		{ID: "water", Name: "drinking water", Aliases: []string{"water", "drank water"}, Unit: habit.UnitCount},
	} {
		if err := registry.Add(def); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.DefaultConfig()
	cfg.Interpreter.ClassifierEnabled = false

	g, err := NewWithOptions(cfg, opts)
	if err != nil {
		t.Fatalf("create gateway: %v", err)
	}
	t.Cleanup(func() { g.Shutdown() })
	return g
}

func textUtterance(text string) bus.InboundUtterance {
	return bus.InboundUtterance{
		Channel:    "webui",
		SenderID:   "u1",
		ChatID:     "u1",
		Text:       text,
		Source:     bus.SourceText,
		ReceivedAt: time.Now(),
	}
}

func TestHandleUtterance_LogsExactMatch(t *testing.T) {
	g := newTestGateway(t, Options{})

	reply := g.HandleUtterance(context.Background(), textUtterance("I ran 3 miles"))
	if !strings.Contains(reply, "Logged: running") {
		t.Errorf("reply = %q, want logged running", reply)
	}

	events, err := g.store.AllEvents()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].HabitID != "running" {
		t.Errorf("events = %+v", events)
	}
}

func TestHandleUtterance_MultipleClauses(t *testing.T) {
	g := newTestGateway(t, Options{})

	reply := g.HandleUtterance(context.Background(), textUtterance("did yoga and drank 2 glasses of water"))
	if !strings.Contains(reply, "yoga") || !strings.Contains(reply, "drinking water") {
		t.Errorf("reply = %q, want both habits logged", reply)
	}

	events, _ := g.store.AllEvents()
	if len(events) != 2 {
		t.Errorf("events = %d, want 2", len(events))
	}
}

func TestHandleUtterance_EmptyInput(t *testing.T) {
	g := newTestGateway(t, Options{})
	reply := g.HandleUtterance(context.Background(), textUtterance("   "))
	if !strings.Contains(reply, "didn't catch") {
		t.Errorf("reply = %q, want re-prompt", reply)
	}
}

func TestHandleUtterance_ConfirmationFlow(t *testing.T) {
	g := newTestGateway(t, Options{})
	g.interp = interpret.New(nil, interpret.Options{FuzzyTolerance: 1, AcceptThreshold: 0.9})

	reply := g.HandleUtterance(context.Background(), textUtterance("did yogga"))
	if !strings.Contains(reply, "yes/no") {
		t.Fatalf("reply = %q, want confirmation prompt", reply)
	}
	if events, _ := g.store.AllEvents(); len(events) != 0 {
		t.Fatalf("events = %d before confirmation, want 0", len(events))
	}

	reply = g.HandleUtterance(context.Background(), textUtterance("yes"))
	if !strings.Contains(reply, "Logged:") {
		t.Errorf("reply = %q, want logged after yes", reply)
	}

	events, _ := g.store.AllEvents()
	if len(events) != 1 {
		t.Fatalf("events = %d after confirmation, want 1", len(events))
	}
	if events[0].NeedsConfirmation {
		t.Error("confirmed event should not be flagged pending")
	}
}

func TestHandleUtterance_ConfirmationRejected(t *testing.T) {
	g := newTestGateway(t, Options{})
	g.interp = interpret.New(nil, interpret.Options{FuzzyTolerance: 1, AcceptThreshold: 0.9})

	g.HandleUtterance(context.Background(), textUtterance("did yogga"))
	reply := g.HandleUtterance(context.Background(), textUtterance("no"))
	if !strings.Contains(reply, "nothing was logged") {
		t.Errorf("reply = %q, want cancellation", reply)
	}
	if events, _ := g.store.AllEvents(); len(events) != 0 {
		t.Errorf("events = %d after rejection, want 0", len(events))
	}
}

func TestHandleUtterance_PendingExpires(t *testing.T) {
	g := newTestGateway(t, Options{})
	g.interp = interpret.New(nil, interpret.Options{FuzzyTolerance: 1, AcceptThreshold: 0.9})

	g.HandleUtterance(context.Background(), textUtterance("did yogga"))

	session := "webui:u1"
	g.pendingMu.Lock()
	g.pending[session].createdAt = time.Now().Add(-time.Hour)
	g.pendingMu.Unlock()

	// A stale "yes" is interpreted as a fresh utterance, not a confirmation
	g.HandleUtterance(context.Background(), textUtterance("yes"))
	if events, _ := g.store.AllEvents(); len(events) != 1 || events[0].HabitID != "" {
		// "yes" itself becomes one unresolved event; the lapsed pending entry
		// must not have been logged
		for _, ev := range events {
			if ev.HabitID == "yoga" {
				t.Error("expired pending entry was logged")
			}
		}
	}
}

func TestHandleUtterance_UnresolvedRecordedForAudit(t *testing.T) {
	g := newTestGateway(t, Options{})

	reply := g.HandleUtterance(context.Background(), textUtterance("flombuzzled the quibbits"))
	if !strings.Contains(reply, "couldn't match") {
		t.Errorf("reply = %q, want unmatched notice", reply)
	}

	events, _ := g.store.AllEvents()
	if len(events) != 1 || !events[0].Unresolved {
		t.Errorf("events = %+v, want one unresolved event kept for audit", events)
	}
}

func TestHandleUtterance_StreakQuery(t *testing.T) {
	g := newTestGateway(t, Options{})

	g.HandleUtterance(context.Background(), textUtterance("I ran today"))
	reply := g.HandleUtterance(context.Background(), textUtterance("what's my running streak?"))
	if !strings.Contains(reply, "running streak is 1") {
		t.Errorf("reply = %q, want running streak of 1", reply)
	}
}

func TestHandleUtterance_GoalAndProgress(t *testing.T) {
	g := newTestGateway(t, Options{})

	reply := g.HandleUtterance(context.Background(), textUtterance("set goal for running 3 times per week"))
	if !strings.Contains(reply, "Goal set: running 3 times per week") {
		t.Fatalf("reply = %q, want goal confirmation", reply)
	}

	g.HandleUtterance(context.Background(), textUtterance("I ran today"))
	reply = g.HandleUtterance(context.Background(), textUtterance("how am I doing this week?"))
	if !strings.Contains(reply, "running: 1/3") {
		t.Errorf("reply = %q, want weekly progress", reply)
	}
}

func TestHandleUtterance_GoalUnknownHabit(t *testing.T) {
	g := newTestGateway(t, Options{})
	reply := g.HandleUtterance(context.Background(), textUtterance("set goal for juggling 3 times per week"))
	if !strings.Contains(reply, "don't know the habit") {
		t.Errorf("reply = %q, want unknown-habit notice", reply)
	}
}

func TestHandleUtterance_Help(t *testing.T) {
	g := newTestGateway(t, Options{})
	reply := g.HandleUtterance(context.Background(), textUtterance("help"))
	if !strings.Contains(reply, "what you can say") {
		t.Errorf("reply = %q, want help text", reply)
	}
}

func TestHandleUtterance_VoiceTranscribed(t *testing.T) {
	g := newTestGateway(t, Options{Transcriber: &stubTranscriber{text: "I ran 3 miles"}})

	msg := bus.InboundUtterance{
		Channel:    "telegram",
		SenderID:   "42",
		ChatID:     "42",
		Source:     bus.SourceVoice,
		Audio:      []byte("fake"),
		AudioMIME:  "audio/ogg",
		ReceivedAt: time.Now(),
	}
	reply := g.HandleUtterance(context.Background(), msg)
	if !strings.Contains(reply, "Logged: running") {
		t.Errorf("reply = %q, want logged running", reply)
	}

	events, _ := g.store.AllEvents()
	if len(events) != 1 || events[0].Source != "voice" {
		t.Errorf("events = %+v, want one voice event", events)
	}
}

func TestHandleUtterance_VoiceWithoutTranscriber(t *testing.T) {
	g := newTestGateway(t, Options{})
	msg := bus.InboundUtterance{
		Channel: "telegram", ChatID: "42",
		Source: bus.SourceVoice, Audio: []byte("fake"),
	}
	reply := g.HandleUtterance(context.Background(), msg)
	if !strings.Contains(reply, "not enabled") {
		t.Errorf("reply = %q, want voice-disabled notice", reply)
	}
}

func TestHandleJob_WeeklyReport(t *testing.T) {
	g := newTestGateway(t, Options{})
	g.cfg.Reports.Channel = "telegram"
	g.cfg.Reports.To = "42"

	g.HandleUtterance(context.Background(), textUtterance("I ran today"))

	job := cron.NewJob("weekly", cron.Schedule{Kind: "cron", Expr: "0 0 9 * * 1"}, cron.Payload{Kind: cron.KindWeeklyReport})
	if _, err := g.handleJob(job); err != nil {
		t.Fatalf("handleJob error: %v", err)
	}

	select {
	case reply := <-g.bus.Outbound:
		if reply.Channel != "telegram" || reply.ChatID != "42" {
			t.Errorf("reply routing = %+v", reply)
		}
		if !strings.Contains(reply.Content, "HABITVOICE PROGRESS REPORT") {
			t.Errorf("content = %q, want report", reply.Content)
		}
	default:
		t.Fatal("no outbound report")
	}
}

func TestHandleJob_Reminder(t *testing.T) {
	g := newTestGateway(t, Options{})

	job := cron.NewJob("nudge", cron.Schedule{Kind: "every", EveryMs: 60000}, cron.Payload{
		Kind: cron.KindReminder, Habit: "yoga", Channel: "webui", To: "u1",
	})
	if _, err := g.handleJob(job); err != nil {
		t.Fatalf("handleJob error: %v", err)
	}

	select {
	case reply := <-g.bus.Outbound:
		if !strings.Contains(reply.Content, "yoga") {
			t.Errorf("content = %q, want yoga reminder", reply.Content)
		}
	default:
		t.Fatal("no outbound reminder")
	}
}

func TestHandleJob_UnknownKind(t *testing.T) {
	g := newTestGateway(t, Options{})
	job := cron.NewJob("odd", cron.Schedule{Kind: "every", EveryMs: 1000}, cron.Payload{Kind: "bogus"})
	if _, err := g.handleJob(job); err == nil {
		t.Error("expected error for unknown job kind")
	}
}
