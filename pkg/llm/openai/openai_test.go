package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/lingomorph/pkg/llm"
)

func TestNew_Validation(t *testing.T) {
	_, err := New("", "gpt-5-mini")
	require.Error(t, err)
	_, err = New("sk-test", "")
	require.Error(t, err)
}

func TestBuildParams(t *testing.T) {
	c, err := New("sk-test", "gpt-5-mini")
	require.NoError(t, err)

	p := c.buildParams(llm.Request{SystemPrompt: "You are a tutor.", Prompt: "Hola"})
	require.Len(t, p.Messages, 2)
	assert.NotNil(t, p.Messages[0].OfSystem)
	assert.NotNil(t, p.Messages[1].OfUser)
	assert.Equal(t, "gpt-5-mini", string(p.Model))

	p = c.buildParams(llm.Request{Prompt: "Hola"})
	require.Len(t, p.Messages, 1)
}

func TestComplete_AgainstFakeServer(t *testing.T) {
	var gotModel string
	var gotMessages int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Model    string            `json:"model"`
			Messages []json.RawMessage `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel = body.Model
		gotMessages = len(body.Messages)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-5-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Yo como manzanas."}}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 4, "total_tokens": 7}
		}`))
	}))
	defer srv.Close()

	c, err := New("sk-test", "gpt-5-mini", WithBaseURL(srv.URL+"/v1/"))
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), llm.Request{SystemPrompt: "sys", Prompt: "I eat apples."})
	require.NoError(t, err)
	assert.Equal(t, "Yo como manzanas.", resp.Text)
	assert.Equal(t, "gpt-5-mini", gotModel)
	assert.Equal(t, 2, gotMessages)
}

func TestComplete_ErrorIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	c, err := New("sk-bad", "gpt-5-mini", WithBaseURL(srv.URL+"/v1/"))
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), llm.Request{Prompt: "x"})
	require.Error(t, err)
	var pe *llm.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "openai", pe.Provider)
}
