package gateway

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"habitvoice/internal/analytics"
	"habitvoice/internal/bus"
	"habitvoice/internal/channel"
	"habitvoice/internal/config"
	"habitvoice/internal/cron"
	"habitvoice/internal/export"
	"habitvoice/internal/habit"
	"habitvoice/internal/interpret"
	"habitvoice/internal/store"
	"habitvoice/internal/voice"
)

// Options allow injecting collaborators for testing.
type Options struct {
	Classifier  interpret.Classifier
	Transcriber voice.Transcriber
	SignalChan  chan os.Signal
}

// pendingEntry holds low-confidence events awaiting a yes/no from the user.
type pendingEntry struct {
	events    []interpret.ParsedEvent
	createdAt time.Time
}

// Gateway wires channels, the interpreter, the store and the scheduler
// together: utterances in, structured habit events down, replies out.
type Gateway struct {
	cfg         *config.Config
	bus         *bus.MessageBus
	registry    *habit.Registry
	store       *store.Store
	interp      *interpret.Interpreter
	transcriber voice.Transcriber
	analytics   *analytics.Service
	exporter    *export.Exporter
	channels    *channel.Manager
	cron        *cron.Service

	pendingMu sync.Mutex
	pending   map[string]*pendingEntry

	signalChan chan os.Signal
}

func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{
		cfg:     cfg,
		pending: make(map[string]*pendingEntry),
	}

	g.bus = bus.NewMessageBus(config.DefaultBufSize)

	registry, err := habit.LoadRegistry(config.RegistryPath())
	if err != nil {
		return nil, fmt.Errorf("load habit registry: %w", err)
	}
	g.registry = registry

	dbPath := strings.TrimSpace(cfg.Store.DBPath)
	if dbPath == "" {
		dbPath = filepath.Join(config.ConfigDir(), "data", "habits.db")
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	g.store = st

	classifier := opts.Classifier
	if classifier == nil && cfg.Interpreter.ClassifierEnabled && cfg.Provider.APIKey != "" {
		classifier = interpret.NewClassifier(cfg)
	}
	g.interp = interpret.New(classifier, interpret.Options{
		FuzzyTolerance:    cfg.Interpreter.FuzzyTolerance,
		AcceptThreshold:   cfg.Interpreter.AcceptThreshold,
		ClassifierTimeout: time.Duration(cfg.Interpreter.ClassifierTimeoutMs) * time.Millisecond,
	})

	g.transcriber = opts.Transcriber
	if g.transcriber == nil && cfg.Transcription.Enabled && cfg.Provider.APIKey != "" {
		g.transcriber = voice.NewTranscriber(cfg)
	}

	g.analytics = analytics.New(st)
	g.exporter = export.New(st, g.analytics)

	cronStorePath := filepath.Join(config.ConfigDir(), "data", "cron", "jobs.json")
	g.cron = cron.NewService(cronStorePath)
	g.cron.OnJob = g.handleJob

	chMgr, err := channel.NewManager(cfg.Channels, cfg.Gateway, g.bus)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	g.signalChan = opts.SignalChan
	return g, nil
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Info().Str("component", "gateway").Strs("channels", g.channels.EnabledChannels()).Msg("channels started")

	if err := g.cron.Start(ctx); err != nil {
		log.Warn().Str("component", "gateway").Err(err).Msg("cron start warning")
	}
	if err := g.ensureWeeklyReportJob(); err != nil {
		log.Warn().Str("component", "gateway").Err(err).Msg("ensure weekly report job warning")
	}

	go g.processLoop(ctx)

	log.Info().Str("component", "gateway").Str("host", g.cfg.Gateway.Host).Int("port", g.cfg.Gateway.Port).Msg("running")

	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Info().Str("component", "gateway").Msg("shutting down")
	return g.Shutdown()
}

func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			reply := g.HandleUtterance(ctx, msg)
			if reply != "" {
				g.bus.Outbound <- bus.OutboundReply{
					Channel: msg.Channel,
					ChatID:  msg.ChatID,
					Content: reply,
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// HandleUtterance runs the full pipeline for one inbound utterance and
// returns the rendered reply.
func (g *Gateway) HandleUtterance(ctx context.Context, msg bus.InboundUtterance) string {
	text := msg.Text
	source := interpret.SourceText
	if msg.Source == bus.SourceVoice {
		source = interpret.SourceVoice
	}

	if text == "" && len(msg.Audio) > 0 {
		if g.transcriber == nil {
			return "Voice notes are not enabled. Please type your habit instead."
		}
		transcribed, err := g.transcriber.Transcribe(ctx, msg.Audio, msg.AudioMIME)
		if err != nil {
			log.Warn().Str("component", "gateway").Err(err).Msg("transcription failed")
			return "I couldn't understand that voice note. Please try again or type it."
		}
		text = transcribed
	}

	log.Info().Str("component", "gateway").
		Str("channel", msg.Channel).Str("sender", msg.SenderID).
		Str("text", truncate(text, 80)).Msg("inbound")

	session := msg.SessionKey()
	lower := strings.ToLower(strings.TrimSpace(text))

	if reply, handled := g.handleConfirmation(session, lower); handled {
		return reply
	}
	if reply, handled := g.handleQuery(lower); handled {
		return reply
	}
	if reply, handled := g.handleGoalSetting(lower); handled {
		return reply
	}

	received := msg.ReceivedAt
	if received.IsZero() {
		received = time.Now()
	}
	res, err := g.interp.Interpret(ctx, interpret.RawUtterance{
		Text:       text,
		Source:     source,
		ReceivedAt: received,
	}, g.registry.Definitions())
	if err != nil {
		if err == interpret.ErrEmptyInput {
			return "I didn't catch anything. Try something like \"I did yoga for 30 minutes\"."
		}
		log.Error().Str("component", "gateway").Err(err).Msg("interpret failed")
		return "Sorry, something went wrong while processing that."
	}
	for _, warn := range res.Warnings {
		log.Warn().Str("component", "gateway").Err(warn).Msg("interpreter warning")
	}

	return g.applyEvents(session, res)
}

// applyEvents records confident events immediately, parks uncertain ones
// for confirmation, and renders the reply.
func (g *Gateway) applyEvents(session string, res *interpret.Result) string {
	var recorded, uncertain, unresolved []interpret.ParsedEvent

	for _, ev := range res.Events {
		switch {
		case !ev.Unresolved && !ev.NeedsConfirmation:
			recorded = append(recorded, ev)
		case ev.NeedsConfirmation && (ev.HabitID != "" || len(ev.Candidates) > 0):
			uncertain = append(uncertain, ev)
		default:
			unresolved = append(unresolved, ev)
		}
	}

	if len(recorded) > 0 {
		if err := g.store.RecordEvents(recorded); err != nil {
			log.Error().Str("component", "gateway").Err(err).Msg("record events failed")
			return "Sorry, I couldn't save that entry."
		}
	}
	// Unresolved clauses are persisted too: nothing the user said gets
	// silently dropped.
	if len(unresolved) > 0 {
		if err := g.store.RecordEvents(unresolved); err != nil {
			log.Warn().Str("component", "gateway").Err(err).Msg("record unresolved events failed")
		}
	}

	var sb strings.Builder
	for _, ev := range recorded {
		sb.WriteString("Logged: ")
		sb.WriteString(describeEvent(ev))
		sb.WriteString("\n")
	}

	if len(uncertain) > 0 {
		g.setPending(session, uncertain)
		for _, ev := range uncertain {
			if len(ev.Candidates) > 0 {
				fmt.Fprintf(&sb, "Did you mean one of %s for %q? (yes to log the first, no to skip)\n",
					strings.Join(ev.Candidates, " / "), ev.RawSpan)
			} else {
				fmt.Fprintf(&sb, "Should I log %s for %q? (yes/no)\n", describeEvent(ev), ev.RawSpan)
			}
		}
	}

	for _, ev := range unresolved {
		fmt.Fprintf(&sb, "I couldn't match %q to any habit. Add it with: add habit <name>\n", ev.RawSpan)
	}

	reply := strings.TrimRight(sb.String(), "\n")
	if reply == "" {
		reply = "Nothing to log there. Try \"I did yoga\" or ask \"what's my streak?\""
	}
	return reply
}

func (g *Gateway) setPending(session string, events []interpret.ParsedEvent) {
	g.pendingMu.Lock()
	defer g.pendingMu.Unlock()
	g.pending[session] = &pendingEntry{events: events, createdAt: time.Now()}
}

var (
	affirmatives = []string{"yes", "yep", "yeah", "confirm", "correct", "that's right", "do it"}
	negatives    = []string{"no", "nope", "cancel", "wrong", "not correct", "skip"}
)

// handleConfirmation resolves a pending yes/no. Pending entries lapse after
// the configured expiry so a stale "yes" never logs something unexpected.
func (g *Gateway) handleConfirmation(session, lower string) (string, bool) {
	g.pendingMu.Lock()
	entry, ok := g.pending[session]
	if ok {
		expiry := time.Duration(g.cfg.Gateway.PendingExpirySec) * time.Second
		if time.Since(entry.createdAt) > expiry {
			delete(g.pending, session)
			entry, ok = nil, false
		}
	}
	g.pendingMu.Unlock()

	if !ok {
		return "", false
	}

	if matchesAny(lower, affirmatives) {
		g.pendingMu.Lock()
		delete(g.pending, session)
		g.pendingMu.Unlock()

		confirmed := make([]interpret.ParsedEvent, 0, len(entry.events))
		for _, ev := range entry.events {
			ev.NeedsConfirmation = false
			if ev.HabitID == "" && len(ev.Candidates) > 0 {
				// First candidate wins once the user has said yes.
				if def, found := g.registry.FindByTerm(ev.Candidates[0]); found {
					ev.HabitID = def.ID
					ev.Habit = def.Name
					ev.Unresolved = false
				}
			}
			confirmed = append(confirmed, ev)
		}
		if err := g.store.RecordEvents(confirmed); err != nil {
			log.Error().Str("component", "gateway").Err(err).Msg("record confirmed events failed")
			return "Sorry, I couldn't save that entry.", true
		}

		var sb strings.Builder
		for _, ev := range confirmed {
			sb.WriteString("Logged: ")
			sb.WriteString(describeEvent(ev))
			sb.WriteString("\n")
		}
		return strings.TrimRight(sb.String(), "\n"), true
	}

	if matchesAny(lower, negatives) {
		g.pendingMu.Lock()
		delete(g.pending, session)
		g.pendingMu.Unlock()
		return "Okay, nothing was logged.", true
	}

	return "", false
}

var (
	streakKeywords   = []string{"streak", "how many days", "in a row", "consecutive"}
	progressKeywords = []string{"how am i doing", "weekly progress", "my progress", "progress report", "this week"}
	helpKeywords     = []string{"help", "what can i say", "instructions"}
)

func (g *Gateway) handleQuery(lower string) (string, bool) {
	switch {
	case matchesAny(lower, helpKeywords):
		return helpText, true
	case matchesAny(lower, streakKeywords):
		return g.renderStreaks(lower), true
	case matchesAny(lower, progressKeywords):
		return g.renderProgress(), true
	}
	return "", false
}

func (g *Gateway) renderStreaks(lower string) string {
	streaks, err := g.analytics.CurrentStreaks(time.Now())
	if err != nil {
		log.Error().Str("component", "gateway").Err(err).Msg("compute streaks failed")
		return "Sorry, I couldn't compute your streaks."
	}

	// A habit named in the question narrows the answer to that habit.
	for _, def := range g.registry.Definitions() {
		for _, term := range def.Terms() {
			if strings.Contains(lower, term) {
				if days, ok := streaks[def.Name]; ok {
					return fmt.Sprintf("Your %s streak is %d day(s).", def.Name, days)
				}
				return fmt.Sprintf("No active streak for %s yet. Log it today to start one!", def.Name)
			}
		}
	}

	if len(streaks) == 0 {
		return "No active streaks yet. Log a habit today to start one!"
	}

	names := make([]string, 0, len(streaks))
	for name := range streaks {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("Current streaks:\n")
	for _, name := range names {
		fmt.Fprintf(&sb, "- %s: %d day(s)\n", name, streaks[name])
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (g *Gateway) renderProgress() string {
	progress, err := g.analytics.WeeklyProgress(time.Now())
	if err != nil {
		log.Error().Str("component", "gateway").Err(err).Msg("compute progress failed")
		return "Sorry, I couldn't compute your weekly progress."
	}
	if len(progress) == 0 {
		return "No weekly goals set. Try: \"set goal for reading 5 times per week\"."
	}

	names := make([]string, 0, len(progress))
	for name := range progress {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("This week:\n")
	for _, name := range names {
		p := progress[name]
		fmt.Fprintf(&sb, "- %s: %d/%d (%.0f%%)\n", p.Habit, p.Completed, p.Target, p.Percentage)
	}
	return strings.TrimRight(sb.String(), "\n")
}

var goalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`set (?:a )?goal (?:for )?([a-z ]+?) (?:to )?(\d+) times? (?:per|a|each) week`),
	regexp.MustCompile(`goal for ([a-z ]+?) is (\d+) (?:per|a|each) week`),
	regexp.MustCompile(`i want to do ([a-z ]+?) (\d+) times? (?:per|a|each) week`),
	regexp.MustCompile(`([a-z ]+?) goal (\d+) times? weekly`),
}

func (g *Gateway) handleGoalSetting(lower string) (string, bool) {
	for _, pattern := range goalPatterns {
		m := pattern.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		term := strings.TrimSpace(m[1])
		target, err := strconv.Atoi(m[2])
		if err != nil || target <= 0 {
			continue
		}

		def, found := g.registry.FindByTerm(term)
		if !found {
			return fmt.Sprintf("I don't know the habit %q. Add it first with: add habit %s", term, term), true
		}
		if err := g.store.SetGoal(store.Goal{
			HabitID:       def.ID,
			Habit:         def.Name,
			TargetPerWeek: target,
			Category:      def.Category,
		}); err != nil {
			log.Error().Str("component", "gateway").Err(err).Msg("set goal failed")
			return "Sorry, I couldn't save that goal.", true
		}
		return fmt.Sprintf("Goal set: %s %d times per week.", def.Name, target), true
	}
	return "", false
}

// handleJob executes scheduled jobs: weekly reports and reminders.
func (g *Gateway) handleJob(job cron.Job) (string, error) {
	switch job.Payload.Kind {
	case cron.KindWeeklyReport:
		var sb strings.Builder
		if err := g.exporter.Report(&sb, g.cfg.Reports.User, time.Now()); err != nil {
			return "", err
		}
		g.deliver(job.Payload, sb.String())
		return "ok", nil
	case cron.KindReminder:
		message := job.Payload.Message
		if message == "" && job.Payload.Habit != "" {
			message = fmt.Sprintf("Reminder: time for %s!", job.Payload.Habit)
		}
		g.deliver(job.Payload, message)
		return "ok", nil
	default:
		return "", fmt.Errorf("unknown job kind %q", job.Payload.Kind)
	}
}

func (g *Gateway) deliver(payload cron.Payload, content string) {
	channelName := payload.Channel
	to := payload.To
	if channelName == "" {
		channelName = g.cfg.Reports.Channel
	}
	if to == "" {
		to = g.cfg.Reports.To
	}
	if channelName == "" || content == "" {
		return
	}
	g.bus.Outbound <- bus.OutboundReply{
		Channel: channelName,
		ChatID:  to,
		Content: content,
	}
}

const weeklyReportJobName = "weekly-progress-report"

func (g *Gateway) ensureWeeklyReportJob() error {
	if g.cfg.Reports.Channel == "" {
		return nil
	}
	for _, job := range g.cron.ListJobs() {
		if job.Name == weeklyReportJobName {
			return nil
		}
	}
	// Monday 09:00
	_, err := g.cron.AddJob(weeklyReportJobName,
		cron.Schedule{Kind: "cron", Expr: "0 0 9 * * 1"},
		cron.Payload{Kind: cron.KindWeeklyReport})
	return err
}

func (g *Gateway) Shutdown() error {
	g.cron.Stop()
	if g.store != nil {
		if err := g.store.Close(); err != nil {
			log.Warn().Str("component", "gateway").Err(err).Msg("close store warning")
		}
	}
	_ = g.channels.StopAll()
	log.Info().Str("component", "gateway").Msg("shutdown complete")
	return nil
}

// Store exposes the event store (used by the CLI verbs).
func (g *Gateway) Store() *store.Store {
	return g.store
}

func describeEvent(ev interpret.ParsedEvent) string {
	name := ev.Habit
	if name == "" {
		name = ev.RawSpan
	}
	var sb strings.Builder
	sb.WriteString(name)
	if ev.Quantity != nil {
		fmt.Fprintf(&sb, " (%s", strconv.FormatFloat(*ev.Quantity, 'f', -1, 64))
		if ev.Unit != "" {
			sb.WriteString(" " + ev.Unit)
		}
		sb.WriteString(")")
	}
	fmt.Fprintf(&sb, " on %s", ev.OccurredAt.Format("Jan 2"))
	return sb.String()
}

func matchesAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

const helpText = `Here's what you can say:
- Log habits: "I did reading for 1 hour", "ran 3 miles and drank water"
- Set goals: "set goal for reading 5 times per week"
- Check streaks: "what's my reading streak?"
- Weekly progress: "how am I doing this week?"
- Manage habits from the CLI: habitvoice habits list|add|remove`
