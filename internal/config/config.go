package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel              = "gpt-4o-mini"
	DefaultBaseURL            = "https://api.openai.com/v1"
	DefaultTranscriptionModel = "whisper-1"
	DefaultFuzzyTolerance     = 1
	DefaultAcceptThreshold    = 0.6
	DefaultClassifierTimeout  = 5000 // milliseconds
	DefaultHost               = "0.0.0.0"
	DefaultPort               = 18890
	DefaultBufSize            = 100
	DefaultPendingExpiry      = 300 // seconds before an unconfirmed entry lapses
)

type Config struct {
	Provider      ProviderConfig      `json:"provider"`
	Interpreter   InterpreterConfig   `json:"interpreter"`
	Transcription TranscriptionConfig `json:"transcription"`
	Channels      ChannelsConfig      `json:"channels"`
	Gateway       GatewayConfig       `json:"gateway"`
	Store         StoreConfig         `json:"store"`
	Reports       ReportsConfig       `json:"reports"`
}

// ProviderConfig points at an OpenAI-compatible API used for the semantic
// classifier fallback and, when enabled, voice transcription.
type ProviderConfig struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
	Model   string `json:"model,omitempty"`
}

type InterpreterConfig struct {
	FuzzyTolerance      int     `json:"fuzzyTolerance"`
	AcceptThreshold     float64 `json:"acceptThreshold"`
	ClassifierTimeoutMs int     `json:"classifierTimeoutMs"`
	ClassifierEnabled   bool    `json:"classifierEnabled"`
}

type TranscriptionConfig struct {
	Enabled bool   `json:"enabled"`
	Model   string `json:"model,omitempty"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	WebUI    WebUIConfig    `json:"webui"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty"`
}

type WebUIConfig struct {
	Enabled   bool     `json:"enabled"`
	AllowFrom []string `json:"allowFrom"`
}

type GatewayConfig struct {
	Host             string `json:"host"`
	Port             int    `json:"port"`
	PendingExpirySec int    `json:"pendingExpirySec"`
}

type StoreConfig struct {
	DBPath string `json:"dbPath,omitempty"`
}

// ReportsConfig names the channel and chat that scheduled reports and
// reminders are delivered to.
type ReportsConfig struct {
	Channel string `json:"channel,omitempty"`
	To      string `json:"to,omitempty"`
	User    string `json:"user,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			BaseURL: DefaultBaseURL,
			Model:   DefaultModel,
		},
		Interpreter: InterpreterConfig{
			FuzzyTolerance:      DefaultFuzzyTolerance,
			AcceptThreshold:     DefaultAcceptThreshold,
			ClassifierTimeoutMs: DefaultClassifierTimeout,
			ClassifierEnabled:   true,
		},
		Transcription: TranscriptionConfig{
			Enabled: false,
			Model:   DefaultTranscriptionModel,
		},
		Channels: ChannelsConfig{},
		Gateway: GatewayConfig{
			Host:             DefaultHost,
			Port:             DefaultPort,
			PendingExpirySec: DefaultPendingExpiry,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".habitvoice")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// RegistryPath is the YAML file holding the habit definitions.
func RegistryPath() string {
	return filepath.Join(ConfigDir(), "habits.yaml")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("HABITVOICE_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if url := os.Getenv("HABITVOICE_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("HABITVOICE_MODEL"); model != "" {
		cfg.Provider.Model = model
	}
	if token := os.Getenv("HABITVOICE_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if dbPath := os.Getenv("HABITVOICE_DB_PATH"); dbPath != "" {
		cfg.Store.DBPath = dbPath
	}
	if tol := os.Getenv("HABITVOICE_FUZZY_TOLERANCE"); tol != "" {
		if parsed, err := strconv.Atoi(tol); err == nil {
			cfg.Interpreter.FuzzyTolerance = parsed
		}
	}
	if thr := os.Getenv("HABITVOICE_ACCEPT_THRESHOLD"); thr != "" {
		if parsed, err := strconv.ParseFloat(thr, 64); err == nil {
			cfg.Interpreter.AcceptThreshold = parsed
		}
	}
	if enabled := os.Getenv("HABITVOICE_TRANSCRIPTION_ENABLED"); enabled != "" {
		if parsed, err := strconv.ParseBool(enabled); err == nil {
			cfg.Transcription.Enabled = parsed
		}
	}

	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = DefaultBaseURL
	}
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = DefaultModel
	}
	if cfg.Transcription.Model == "" {
		cfg.Transcription.Model = DefaultTranscriptionModel
	}
	if cfg.Interpreter.FuzzyTolerance < 0 || cfg.Interpreter.FuzzyTolerance > 2 {
		cfg.Interpreter.FuzzyTolerance = DefaultFuzzyTolerance
	}
	if cfg.Interpreter.AcceptThreshold <= 0 || cfg.Interpreter.AcceptThreshold > 1 {
		cfg.Interpreter.AcceptThreshold = DefaultAcceptThreshold
	}
	if cfg.Interpreter.ClassifierTimeoutMs <= 0 {
		cfg.Interpreter.ClassifierTimeoutMs = DefaultClassifierTimeout
	}
	if cfg.Gateway.PendingExpirySec <= 0 {
		cfg.Gateway.PendingExpirySec = DefaultPendingExpiry
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
