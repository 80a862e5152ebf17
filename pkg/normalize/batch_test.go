package normalize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/lingomorph/pkg/config"
	"github.com/japaniel/lingomorph/pkg/llm"
	"github.com/japaniel/lingomorph/pkg/llm/mock"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func TestNormalizeBatchEmpty(t *testing.T) {
	c := &mock.Completer{}
	b := &BatchNormalizer{Completer: c}
	got, err := b.NormalizeBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, c.CallCount())
}

func TestNormalizeBatchParsesFencedJSON(t *testing.T) {
	c := &mock.Completer{Responses: []string{"```json\n{\"정리하거나\": \"정리하다\", \"책(을)\": \"책\"}\n```"}}
	b := &BatchNormalizer{Completer: c, Language: "Korean"}

	got, err := b.NormalizeBatch(context.Background(), []string{"정리하거나", "책(을)"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"정리하거나": "정리하다", "책(을)": "책"}, got)

	reqs := c.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Prompt, `["정리하거나","책(을)"]`)
	assert.Contains(t, reqs[0].Prompt, "Korean")
}

func TestNormalizeBatchRetriesWithBackoff(t *testing.T) {
	c := &mock.Completer{Func: func(_ context.Context, call int, _ llm.Request) (*llm.Response, error) {
		switch call {
		case 0:
			return nil, errors.New("transport down")
		case 1:
			return &llm.Response{Text: "not json"}, nil
		}
		return &llm.Response{Text: `{"comiendo":"comer"}`}, nil
	}}
	rec := &sleepRecorder{}
	b := &BatchNormalizer{Completer: c, Sleep: rec.Sleep}

	got, err := b.NormalizeBatch(context.Background(), []string{"comiendo"})
	require.NoError(t, err)
	assert.Equal(t, "comer", got["comiendo"])
	assert.Equal(t, 3, c.CallCount())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
}

func TestNormalizeBatchGivesUpAfterThreeAttempts(t *testing.T) {
	base := errors.New("rate limited")
	c := &mock.Completer{Err: base}
	rec := &sleepRecorder{}
	b := &BatchNormalizer{Completer: c, Sleep: rec.Sleep}

	got, err := b.NormalizeBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, 3, c.CallCount())
	assert.Len(t, rec.delays, 2)
}

func TestNormalizeBatchConfigErrorIsNotRetried(t *testing.T) {
	cfgErr := fmt.Errorf("%w: providers.openai.api_key is required", config.ErrConfig)
	rec := &sleepRecorder{}
	b := &BatchNormalizer{Completer: llm.Unavailable(cfgErr), Sleep: rec.Sleep}

	got, err := b.NormalizeBatch(context.Background(), []string{"comiendo"})
	require.Error(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, config.ErrConfig)
	assert.Equal(t, cfgErr.Error(), err.Error())
	assert.Empty(t, rec.delays)
}

func TestNormalizeBatchStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &mock.Completer{Func: func(context.Context, int, llm.Request) (*llm.Response, error) {
		cancel()
		return nil, errors.New("fail")
	}}
	b := &BatchNormalizer{Completer: c, BaseDelay: time.Hour}

	_, err := b.NormalizeBatch(ctx, []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, c.CallCount())
}

func TestNormalizeBatchUsesMemo(t *testing.T) {
	memo, err := NewMemo(1000)
	require.NoError(t, err)
	defer memo.Close()

	c := &mock.Completer{Responses: []string{`{"comiendo":"comer","fui":"ir"}`}}
	b := &BatchNormalizer{Completer: c, Language: "Spanish", Memo: memo}

	_, err = b.NormalizeBatch(context.Background(), []string{"comiendo", "fui"})
	require.NoError(t, err)
	memo.Wait()

	got, err := b.NormalizeBatch(context.Background(), []string{"fui", "comiendo"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"comiendo": "comer", "fui": "ir"}, got)
	assert.Equal(t, 1, c.CallCount(), "second batch should be served from the memo")
}

func TestParseLemmaMap(t *testing.T) {
	got, err := ParseLemmaMap(`{"a":"x","b":3,"c":"  ","d":" y "}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "x", "d": "y"}, got)

	for _, bad := range []string{"", "null", "[1,2]", "hello"} {
		_, err := ParseLemmaMap(bad)
		assert.Error(t, err, bad)
	}
	_, err = ParseLemmaMap(strings.Repeat(" ", 3) + "{}")
	assert.NoError(t, err)
}
