// Package llm defines the text-completion capability shared by the batch
// normalizer, the fingerprint generator and the adaptation service.
//
// A Completer takes a prompt and optional system prompt and returns text.
// Backends live in sub-packages (openai, anyllm, mock) and are selected by
// the factory package from the user's settings.
package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Request is a single-turn completion request.
type Request struct {
	Prompt string
	// SystemPrompt is optional framing sent before Prompt.
	SystemPrompt string
}

// Response carries the generated text.
type Response struct {
	Text string
}

// Completer is the only capability lingomorph needs from a language model.
//
// Implementations must be safe for concurrent use.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (*Response, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// ProviderError is returned for every backend failure, transport or API.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Wrap returns err as a *ProviderError for provider. A nil err stays nil and
// an error that already is a ProviderError is returned unchanged.
func Wrap(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: provider, Err: err}
}

// ErrEmptyResponse is returned when a backend answers with no choices.
var ErrEmptyResponse = errors.New("empty response")

var (
	fenceOpen  = regexp.MustCompile("^```[a-zA-Z]*\\s*")
	fenceClose = regexp.MustCompile("\\s*```$")
)

// StripCodeFence removes a surrounding markdown code fence (```json ... ```)
// that models like to add even when asked not to, and trims whitespace.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = fenceOpen.ReplaceAllString(s, "")
	s = fenceClose.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// WithTimeout bounds every call on c to d. A non-positive d returns c.
func WithTimeout(c Completer, d time.Duration) Completer {
	if d <= 0 {
		return c
	}
	return CompleterFunc(func(ctx context.Context, req Request) (*Response, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return c.Complete(ctx, req)
	})
}

// Unavailable returns a Completer whose every call fails with err. It lets
// callers keep running a pipeline whose optional AI steps degrade to their
// fallbacks when no backend could be configured.
func Unavailable(err error) Completer {
	return CompleterFunc(func(context.Context, Request) (*Response, error) {
		return nil, err
	})
}
