package normalize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/japaniel/lingomorph/pkg/config"
	"github.com/japaniel/lingomorph/pkg/llm"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
)

const batchPrompt = `You are a linguistic expert for %s.
Convert each word in the list below to its dictionary form (lemma).

Rules:
1. Remove parenthetical grammar markers like "(을/를)", "(이/가)", "(하다)".
2. Convert conjugated or inflected forms to the dictionary form (e.g. "정리하거나" -> "정리하다", "comiendo" -> "comer").
3. Words already in dictionary form stay unchanged.
4. Return ONLY a JSON object mapping each input word to its lemma. No markdown, no extra text.

Input Words: %s`

// Memo caches resolved word to lemma pairs across batches and syncs.
type Memo = ristretto.Cache[string, string]

// NewMemo returns a memo holding roughly maxWords entries.
func NewMemo(maxWords int64) (*Memo, error) {
	return ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: maxWords * 10,
		MaxCost:     maxWords,
		BufferItems: 64,
		// Cost is counted in words.
		IgnoreInternalCost: true,
	})
}

// BatchNormalizer resolves lemmas for a batch of words with one completion
// call, retrying with exponential backoff.
type BatchNormalizer struct {
	Completer llm.Completer
	// Language is the target language named in the prompt.
	Language string

	// MaxAttempts defaults to 3. BaseDelay defaults to one second and
	// doubles after each failed attempt.
	MaxAttempts int
	BaseDelay   time.Duration

	// Sleep waits between attempts. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// Memo is optional. Words found in it are not sent to the model.
	Memo *Memo

	Logger *slog.Logger
}

// NormalizeBatch returns a lemma for each word the model resolved. An empty
// batch returns an empty map without calling the model. After the last
// failed attempt the error is returned and no partial result is kept.
// Configuration errors are returned unchanged after the first attempt.
func (b *BatchNormalizer) NormalizeBatch(ctx context.Context, words []string) (map[string]string, error) {
	out := make(map[string]string, len(words))
	var pending []string
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		if seen[w] {
			continue
		}
		seen[w] = true
		if b.Memo != nil {
			if lemma, ok := b.Memo.Get(b.memoKey(w)); ok {
				out[w] = lemma
				continue
			}
		}
		pending = append(pending, w)
	}
	if len(pending) == 0 {
		return out, nil
	}

	resolved, err := b.resolve(ctx, pending)
	if err != nil {
		return nil, err
	}
	for w, lemma := range resolved {
		out[w] = lemma
		if b.Memo != nil {
			b.Memo.Set(b.memoKey(w), lemma, 1)
		}
	}
	return out, nil
}

func (b *BatchNormalizer) resolve(ctx context.Context, words []string) (map[string]string, error) {
	list, err := json.Marshal(words)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	lang := b.Language
	if lang == "" {
		lang = "the target language"
	}
	req := llm.Request{Prompt: fmt.Sprintf(batchPrompt, lang, list)}

	attempts := b.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	delay := b.BaseDelay
	if delay <= 0 {
		delay = defaultBaseDelay
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			wait := delay << (attempt - 2)
			b.logger().Warn("retrying AI normalization", "attempt", attempt, "delay", wait, "error", lastErr)
			if err := b.sleep(ctx, wait); err != nil {
				return nil, fmt.Errorf("normalize batch: %w", err)
			}
		}
		resp, err := b.Completer.Complete(ctx, req)
		if errors.Is(err, config.ErrConfig) {
			// Retrying cannot fix a missing key or model.
			return nil, err
		}
		if err != nil {
			lastErr = err
			continue
		}
		parsed, err := ParseLemmaMap(resp.Text)
		if err != nil {
			lastErr = err
			continue
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("normalize batch failed after %d attempts: %w", attempts, lastErr)
}

// ParseLemmaMap decodes a JSON object of word to lemma, tolerating a
// surrounding markdown fence. Non-string and empty values are dropped.
func ParseLemmaMap(raw string) (map[string]string, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(llm.StripCodeFence(raw)), &obj); err != nil {
		return nil, fmt.Errorf("parse lemma map: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("parse lemma map: not a JSON object")
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out[k] = s
		}
	}
	return out, nil
}

func (b *BatchNormalizer) memoKey(word string) string {
	return strings.ToLower(b.Language) + "\x00" + word
}

func (b *BatchNormalizer) sleep(ctx context.Context, d time.Duration) error {
	if b.Sleep != nil {
		return b.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (b *BatchNormalizer) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}
