package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"habitvoice/internal/analytics"
	"habitvoice/internal/config"
	"habitvoice/internal/export"
	"habitvoice/internal/gateway"
	"habitvoice/internal/habit"
	"habitvoice/internal/interpret"
	"habitvoice/internal/store"
)

// InterpretOptions for running the interpreter with custom dependencies
type InterpretOptions struct {
	Classifier interpret.Classifier
	Stdout     io.Writer
	Stderr     io.Writer
}

var rootCmd = &cobra.Command{
	Use:   "habitvoice",
	Short: "habitvoice - natural language habit tracker",
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the full gateway (channels + scheduler)",
	RunE:  runGateway,
}

var interpretCmd = &cobra.Command{
	Use:   "interpret",
	Short: "Interpret a habit statement and print the parsed events as JSON",
	RunE:  runInterpret,
}

var habitsCmd = &cobra.Command{
	Use:   "habits",
	Short: "Manage habit definitions",
}

var habitsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known habits",
	RunE:  runHabitsList,
}

var habitsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a habit",
	Args:  cobra.ExactArgs(1),
	RunE:  runHabitsAdd,
}

var habitsRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a habit",
	Args:  cobra.ExactArgs(1),
	RunE:  runHabitsRemove,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export logged events (csv or json)",
	RunE:  runExport,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a progress report",
	RunE:  runReport,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show habitvoice status",
	RunE:  runStatus,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and seed the habit registry",
	RunE:  runOnboard,
}

var (
	messageFlag    string
	formatFlag     string
	aliasesFlag    []string
	unitFlag       string
	weeklyGoalFlag int
	categoryFlag   string
)

func init() {
	interpretCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Statement to interpret")
	exportCmd.Flags().StringVar(&formatFlag, "format", "csv", "Export format: csv or json")
	habitsAddCmd.Flags().StringSliceVar(&aliasesFlag, "alias", nil, "Alias for the habit (repeatable)")
	habitsAddCmd.Flags().StringVar(&unitFlag, "unit", habit.UnitCount, "Unit: count, duration or boolean")
	habitsAddCmd.Flags().IntVar(&weeklyGoalFlag, "goal", 0, "Default weekly goal")
	habitsAddCmd.Flags().StringVar(&categoryFlag, "category", "", "Category label")

	habitsCmd.AddCommand(habitsListCmd, habitsAddCmd, habitsRemoveCmd)
	rootCmd.AddCommand(gatewayCmd, interpretCmd, habitsCmd, exportCmd, reportCmd, statusCmd, onboardCmd)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runInterpret(cmd *cobra.Command, args []string) error {
	return runInterpretWithOptions(InterpretOptions{})
}

// runInterpretWithOptions runs the interpreter with injectable dependencies for testing
func runInterpretWithOptions(opts InterpretOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	text := strings.TrimSpace(messageFlag)
	if text == "" {
		return fmt.Errorf("no statement given, use -m \"I did yoga for 30 minutes\"")
	}

	registry, err := habit.LoadRegistry(config.RegistryPath())
	if err != nil {
		return fmt.Errorf("load habit registry: %w", err)
	}

	classifier := opts.Classifier
	if classifier == nil && cfg.Interpreter.ClassifierEnabled && cfg.Provider.APIKey != "" {
		classifier = interpret.NewClassifier(cfg)
	}

	interp := interpret.New(classifier, interpret.Options{
		FuzzyTolerance:    cfg.Interpreter.FuzzyTolerance,
		AcceptThreshold:   cfg.Interpreter.AcceptThreshold,
		ClassifierTimeout: time.Duration(cfg.Interpreter.ClassifierTimeoutMs) * time.Millisecond,
	})

	res, err := interp.Interpret(context.Background(), interpret.RawUtterance{
		Text:       text,
		Source:     interpret.SourceText,
		ReceivedAt: time.Now(),
	}, registry.Definitions())
	if err != nil {
		return fmt.Errorf("interpret: %w", err)
	}

	for _, warn := range res.Warnings {
		fmt.Fprintf(stderr, "warning: %v\n", warn)
	}

	data, err := json.MarshalIndent(res.Events, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}
	fmt.Fprintln(stdout, string(data))
	return nil
}

func runHabitsList(cmd *cobra.Command, args []string) error {
	registry, err := habit.LoadRegistry(config.RegistryPath())
	if err != nil {
		return fmt.Errorf("load habit registry: %w", err)
	}

	defs := registry.Definitions()
	if len(defs) == 0 {
		fmt.Println("No habits defined. Run 'habitvoice onboard' to seed the starter set.")
		return nil
	}

	for _, def := range defs {
		line := fmt.Sprintf("%-18s unit=%-8s", def.Name, def.Unit)
		if def.WeeklyGoal > 0 {
			line += fmt.Sprintf(" goal=%d/wk", def.WeeklyGoal)
		}
		if def.Category != "" {
			line += " [" + def.Category + "]"
		}
		if len(def.Aliases) > 0 {
			line += "  aka: " + strings.Join(def.Aliases, ", ")
		}
		fmt.Println(line)
	}
	return nil
}

func runHabitsAdd(cmd *cobra.Command, args []string) error {
	registry, err := habit.LoadRegistry(config.RegistryPath())
	if err != nil {
		return fmt.Errorf("load habit registry: %w", err)
	}

	switch unitFlag {
	case habit.UnitCount, habit.UnitDuration, habit.UnitBoolean:
	default:
		return fmt.Errorf("invalid unit %q (want count, duration or boolean)", unitFlag)
	}

	if err := registry.Add(habit.Definition{
		Name:       args[0],
		Aliases:    aliasesFlag,
		Unit:       unitFlag,
		WeeklyGoal: weeklyGoalFlag,
		Category:   categoryFlag,
	}); err != nil {
		return fmt.Errorf("add habit: %w", err)
	}

	fmt.Printf("Added habit %q\n", args[0])
	return nil
}

func runHabitsRemove(cmd *cobra.Command, args []string) error {
	registry, err := habit.LoadRegistry(config.RegistryPath())
	if err != nil {
		return fmt.Errorf("load habit registry: %w", err)
	}

	def, found := registry.FindByTerm(args[0])
	if !found {
		return fmt.Errorf("habit %q not found", args[0])
	}
	if err := registry.Remove(def.ID); err != nil {
		return fmt.Errorf("remove habit: %w", err)
	}

	fmt.Printf("Removed habit %q\n", def.Name)
	return nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	dbPath := strings.TrimSpace(cfg.Store.DBPath)
	if dbPath == "" {
		dbPath = filepath.Join(config.ConfigDir(), "data", "habits.db")
	}
	return store.Open(dbPath)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	exporter := export.New(st, analytics.New(st))

	switch formatFlag {
	case "csv":
		return exporter.CSV(os.Stdout)
	case "json":
		return exporter.JSON(os.Stdout, cfg.Reports.User, time.Now())
	default:
		return fmt.Errorf("unknown format %q (want csv or json)", formatFlag)
	}
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	exporter := export.New(st, analytics.New(st))
	return exporter.Report(os.Stdout, cfg.Reports.User, time.Now())
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Registry: %s\n", config.RegistryPath())
	fmt.Printf("Model: %s\n", cfg.Provider.Model)
	if cfg.Provider.APIKey != "" && len(cfg.Provider.APIKey) > 8 {
		masked := cfg.Provider.APIKey[:4] + "..." + cfg.Provider.APIKey[len(cfg.Provider.APIKey)-4:]
		fmt.Printf("API Key: %s\n", masked)
	} else if cfg.Provider.APIKey != "" {
		fmt.Println("API Key: set")
	} else {
		fmt.Println("API Key: not set (classifier fallback disabled)")
	}
	fmt.Printf("Classifier: enabled=%v threshold=%.2f tolerance=%d\n",
		cfg.Interpreter.ClassifierEnabled, cfg.Interpreter.AcceptThreshold, cfg.Interpreter.FuzzyTolerance)
	fmt.Printf("Transcription: enabled=%v\n", cfg.Transcription.Enabled)
	fmt.Printf("Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)
	fmt.Printf("WebUI: enabled=%v port=%d\n", cfg.Channels.WebUI.Enabled, cfg.Gateway.Port)

	registry, err := habit.LoadRegistry(config.RegistryPath())
	if err != nil {
		fmt.Printf("Habits: error (%v)\n", err)
	} else {
		fmt.Printf("Habits: %d defined\n", registry.Len())
	}

	st, err := openStore(cfg)
	if err != nil {
		fmt.Printf("Store: error (%v)\n", err)
		return nil
	}
	defer st.Close()

	stats, err := st.Stats()
	if err != nil {
		fmt.Printf("Store: error (%v)\n", err)
		return nil
	}
	fmt.Printf("Events: %d total, %d unresolved, %d pending\n",
		stats.TotalEvents, stats.UnresolvedEvents, stats.PendingEvents)
	fmt.Printf("Goals: %d\n", stats.Goals)
	return nil
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	registry, err := habit.LoadRegistry(config.RegistryPath())
	if err != nil {
		return fmt.Errorf("load habit registry: %w", err)
	}

	if registry.Len() == 0 {
		seeded := 0
		for _, def := range habit.SeedDefinitions() {
			if err := registry.Add(def); err != nil {
				fmt.Printf("  skipped %q: %v\n", def.Name, err)
				continue
			}
			seeded++
		}
		fmt.Printf("Seeded %d habits: %s\n", seeded, config.RegistryPath())
	} else {
		fmt.Printf("Registry already has %d habits: %s\n", registry.Len(), config.RegistryPath())
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key (or set OPENAI_API_KEY)\n", cfgPath)
	fmt.Println("  2. Run 'habitvoice interpret -m \"I ran 3 miles\"' to test")
	fmt.Println("  3. Run 'habitvoice gateway' to start the channels")

	return nil
}
