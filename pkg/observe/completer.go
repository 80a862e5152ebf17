package observe

import (
	"context"
	"time"

	"github.com/japaniel/lingomorph/pkg/llm"
)

// Instrument wraps c so every call is recorded in m under provider.
// A nil m returns c unchanged.
func Instrument(provider string, c llm.Completer, m *Metrics) llm.Completer {
	if m == nil {
		return c
	}
	return llm.CompleterFunc(func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		start := time.Now()
		resp, err := c.Complete(ctx, req)
		m.RecordCompletion(ctx, provider, time.Since(start).Seconds(), err)
		return resp, err
	})
}
