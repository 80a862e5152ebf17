// Package config holds the user settings for lingomorph: language pair,
// AnkiConnect endpoint, completion provider credentials and the current
// vocabulary fingerprint.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ErrConfig marks configuration problems that must be fixed by the user
// before any network call is attempted.
var ErrConfig = errors.New("configuration error")

// Provider selects the text-completion backend.
type Provider string

const (
	ProviderGoogle    Provider = "google"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderOllama    Provider = "ollama"
)

// Providers lists every supported backend in display order.
var Providers = []Provider{ProviderGoogle, ProviderOpenAI, ProviderAnthropic, ProviderOllama}

// IsValid reports whether p is a supported provider.
func (p Provider) IsValid() bool {
	switch p {
	case ProviderGoogle, ProviderOpenAI, ProviderAnthropic, ProviderOllama:
		return true
	}
	return false
}

// NeedsAPIKey reports whether the backend refuses to start without a key.
// Ollama runs locally and is keyless.
func (p Provider) NeedsAPIKey() bool {
	return p != ProviderOllama
}

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// ProviderSettings are the credentials and model for one backend.
type ProviderSettings struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	// BaseURL overrides the backend's default endpoint. Empty keeps the default.
	BaseURL string `yaml:"base_url,omitempty"`
}

// Settings is the per-user settings object. It is passed by value into every
// component; there is no package-level instance.
type Settings struct {
	Provider       Provider `yaml:"provider"`
	AnkiConnectURL string   `yaml:"anki_connect_url"`
	TargetLanguage string   `yaml:"target_language"`
	NativeLanguage string   `yaml:"native_language"`

	// AutoSync makes `serve` run a vocabulary sync at startup.
	AutoSync              bool `yaml:"auto_sync"`
	EnableAINormalization bool `yaml:"enable_ai_normalization"`

	// Note type and fields used when adding a word to the flashcard tool.
	AnkiNoteType   string `yaml:"anki_note_type"`
	AnkiFrontField string `yaml:"anki_front_field"`
	AnkiBackField  string `yaml:"anki_back_field"`

	DailyGoal int `yaml:"daily_goal"`

	// Fingerprint is the learner profile generated by the last sync.
	Fingerprint string `yaml:"fingerprint"`

	Providers map[Provider]ProviderSettings `yaml:"providers"`

	// RequestTimeout bounds every external call (completion and AnkiConnect).
	// Zero disables the envelope.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	LogLevel LogLevel `yaml:"log_level"`
}

// Default returns the settings used when no file exists yet.
func Default() Settings {
	return Settings{
		Provider:              ProviderGoogle,
		AnkiConnectURL:        "http://127.0.0.1:8765",
		TargetLanguage:        "Spanish",
		NativeLanguage:        "English",
		EnableAINormalization: false,
		AnkiNoteType:          "Basic",
		AnkiFrontField:        "Front",
		AnkiBackField:         "Back",
		DailyGoal:             10,
		Providers: map[Provider]ProviderSettings{
			ProviderGoogle:    {Model: "gemini-2.5-flash"},
			ProviderOpenAI:    {Model: "gpt-5-mini"},
			ProviderAnthropic: {Model: "claude-sonnet-4-5"},
			ProviderOllama:    {Model: "llama3.1", BaseURL: "http://127.0.0.1:11434"},
		},
		RequestTimeout: 60 * time.Second,
		LogLevel:       LogInfo,
	}
}

// Active returns the settings of the selected provider.
func (s Settings) Active() ProviderSettings {
	return s.Providers[s.Provider]
}

// Validate checks that s is coherent. All failures are joined.
func Validate(s Settings) error {
	var errs []error

	if !s.Provider.IsValid() {
		errs = append(errs, fmt.Errorf("provider %q is invalid; valid values: google, openai, anthropic, ollama", s.Provider))
	}
	if strings.TrimSpace(s.TargetLanguage) == "" {
		errs = append(errs, errors.New("target_language is required"))
	}
	if strings.TrimSpace(s.NativeLanguage) == "" {
		errs = append(errs, errors.New("native_language is required"))
	}
	if u, err := url.Parse(s.AnkiConnectURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("anki_connect_url %q must be an absolute http URL", s.AnkiConnectURL))
	}
	if s.DailyGoal < 0 {
		errs = append(errs, fmt.Errorf("daily_goal %d must not be negative", s.DailyGoal))
	}
	if s.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request_timeout %s must not be negative", s.RequestTimeout))
	}
	if s.LogLevel != "" && !s.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", s.LogLevel))
	}
	for p := range s.Providers {
		if !p.IsValid() {
			errs = append(errs, fmt.Errorf("providers.%s is not a supported provider", p))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
}
