// Package anki is a client for the AnkiConnect JSON RPC add-on.
//
// Every call POSTs {"action", "version", "params"} and expects a response
// object with exactly two fields, "result" and "error".
package anki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// APIVersion is the AnkiConnect protocol version sent with every request.
const APIVersion = 6

// ErrProtocol is returned when a response does not have the expected shape.
var ErrProtocol = errors.New("ankiconnect: protocol error")

// RPCError is a non-null "error" field returned by AnkiConnect.
type RPCError struct {
	Action  string
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("ankiconnect %s: %s", e.Action, e.Message)
}

// Client talks to one AnkiConnect endpoint. It is safe for concurrent use.
type Client struct {
	url        string
	httpClient *http.Client
	timeout    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each call. Zero means no per-call bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient returns a Client for the AnkiConnect server at url.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{url: url, httpClient: http.DefaultClient}
	for _, o := range opts {
		o(c)
	}
	return c
}

type request struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
}

// Invoke calls action with params and decodes the result into out, which
// may be nil.
func (c *Client) Invoke(ctx context.Context, action string, params, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(request{Action: action, Version: APIVersion, Params: params})
	if err != nil {
		return fmt.Errorf("ankiconnect %s: encode: %w", action, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ankiconnect %s: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ankiconnect %s: %w", action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ankiconnect %s: read: %w", action, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s: http status %d", ErrProtocol, action, resp.StatusCode)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrProtocol, action, err)
	}
	if len(envelope) != 2 {
		return fmt.Errorf("%w: %s: response has %d fields, want 2", ErrProtocol, action, len(envelope))
	}
	rawErr, okErr := envelope["error"]
	rawResult, okResult := envelope["result"]
	if !okErr || !okResult {
		return fmt.Errorf("%w: %s: response is missing required error or result field", ErrProtocol, action)
	}

	if !isNull(rawErr) {
		var msg string
		if err := json.Unmarshal(rawErr, &msg); err != nil {
			msg = string(rawErr)
		}
		return &RPCError{Action: action, Message: msg}
	}
	if out == nil || isNull(rawResult) {
		return nil
	}
	if err := json.Unmarshal(rawResult, out); err != nil {
		return fmt.Errorf("%w: %s: decode result: %v", ErrProtocol, action, err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
