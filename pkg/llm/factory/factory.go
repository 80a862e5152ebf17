// Package factory selects and builds the llm.Completer named by the user's
// settings.
package factory

import (
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/japaniel/lingomorph/pkg/config"
	"github.com/japaniel/lingomorph/pkg/llm"
	"github.com/japaniel/lingomorph/pkg/llm/anyllm"
	"github.com/japaniel/lingomorph/pkg/llm/openai"
	"github.com/japaniel/lingomorph/pkg/observe"
)

// New returns the Completer for s.Provider, wrapped with the request
// timeout and, when m is non-nil, metrics. Missing credentials or model are
// reported as config.ErrConfig before any network call.
func New(s config.Settings, m *observe.Metrics) (llm.Completer, error) {
	if !s.Provider.IsValid() {
		return nil, fmt.Errorf("%w: unknown provider %q", config.ErrConfig, s.Provider)
	}
	ps := s.Active()
	if s.Provider.NeedsAPIKey() && strings.TrimSpace(ps.APIKey) == "" {
		return nil, fmt.Errorf("%w: providers.%s.api_key is required", config.ErrConfig, s.Provider)
	}
	if strings.TrimSpace(ps.Model) == "" {
		return nil, fmt.Errorf("%w: providers.%s.model is required", config.ErrConfig, s.Provider)
	}

	c, err := build(s.Provider, ps)
	if err != nil {
		return nil, err
	}
	return llm.WithTimeout(observe.Instrument(string(s.Provider), c, m), s.RequestTimeout), nil
}

func build(p config.Provider, ps config.ProviderSettings) (llm.Completer, error) {
	switch p {
	case config.ProviderOpenAI:
		var opts []openai.Option
		if ps.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(ps.BaseURL))
		}
		return openai.New(ps.APIKey, ps.Model, opts...)
	case config.ProviderGoogle:
		return anyllm.New("gemini", ps.Model, anyOptions(ps)...)
	case config.ProviderAnthropic:
		return anyllm.New("anthropic", ps.Model, anyOptions(ps)...)
	case config.ProviderOllama:
		return anyllm.New("ollama", ps.Model, anyOptions(ps)...)
	}
	return nil, fmt.Errorf("%w: unknown provider %q", config.ErrConfig, p)
}

func anyOptions(ps config.ProviderSettings) []anyllmlib.Option {
	var opts []anyllmlib.Option
	if ps.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(ps.APIKey))
	}
	if ps.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(ps.BaseURL))
	}
	return opts
}
