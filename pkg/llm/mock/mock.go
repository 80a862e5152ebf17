// Package mock provides a test double for the llm.Completer interface.
//
// Responses are served in order; once exhausted the last one repeats. Set
// Err to fail every call, or Func for full control. All calls are recorded.
//
// Example:
//
//	c := &mock.Completer{Responses: []string{"Hola."}}
//	resp, err := c.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/japaniel/lingomorph/pkg/llm"
)

// Completer is a scripted llm.Completer.
type Completer struct {
	mu sync.Mutex

	// Responses are returned one per call.
	Responses []string

	// Err, if non-nil, is returned from every call.
	Err error

	// Func, if set, handles the call after it is recorded. The call index
	// starts at 0.
	Func func(ctx context.Context, call int, req llm.Request) (*llm.Response, error)

	// Calls records every request in order.
	Calls []llm.Request
}

// Complete records req and returns the next scripted response.
func (c *Completer) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	n := len(c.Calls)
	c.Calls = append(c.Calls, req)
	fn, err := c.Func, c.Err
	var text string
	if len(c.Responses) > 0 {
		i := n
		if i >= len(c.Responses) {
			i = len(c.Responses) - 1
		}
		text = c.Responses[i]
	}
	c.mu.Unlock()

	if fn != nil {
		return fn(ctx, n, req)
	}
	if err != nil {
		return nil, llm.Wrap("mock", err)
	}
	return &llm.Response{Text: text}, nil
}

// CallCount returns how many times Complete was called.
func (c *Completer) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Requests returns a copy of the recorded requests.
func (c *Completer) Requests() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.Request, len(c.Calls))
	copy(out, c.Calls)
	return out
}
