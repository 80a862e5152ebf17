// Package anyllm provides a Completer backed by
// github.com/mozilla-ai/any-llm-go, which speaks to Anthropic, Gemini,
// Ollama and OpenAI behind one interface.
//
// Usage:
//
//	c, err := anyllm.New("anthropic", "claude-sonnet-4-5", anyllmlib.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/japaniel/lingomorph/pkg/llm"
)

// Completer implements llm.Completer by wrapping an any-llm-go provider.
type Completer struct {
	backend  anyllmlib.Provider
	provider string
	model    string
}

// New creates a Completer for providerName, one of "anthropic", "gemini",
// "ollama" or "openai".
//
// opts are any-llm-go options such as anyllmlib.WithAPIKey and
// anyllmlib.WithBaseURL.
func New(providerName, model string, opts ...anyllmlib.Option) (*Completer, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}
	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}
	return &Completer{backend: backend, provider: strings.ToLower(providerName), model: model}, nil
}

func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "openai":
		return anyllmoai.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: anthropic, gemini, ollama, openai", providerName)
	}
}

// Complete implements llm.Completer.
func (c *Completer) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	resp, err := c.backend.Completion(ctx, buildParams(c.model, req))
	if err != nil {
		return nil, llm.Wrap(c.provider, fmt.Errorf("completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, llm.Wrap(c.provider, llm.ErrEmptyResponse)
	}
	return &llm.Response{Text: resp.Choices[0].Message.ContentString()}, nil
}

func buildParams(model string, req llm.Request) anyllmlib.CompletionParams {
	var messages []anyllmlib.Message
	if req.SystemPrompt != "" {
		messages = append(messages, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, anyllmlib.Message{Role: anyllmlib.RoleUser, Content: req.Prompt})
	return anyllmlib.CompletionParams{Model: model, Messages: messages}
}
