// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-chat/internal/model"
)

func sse(w http.ResponseWriter, payloads ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, p := range payloads {
		fmt.Fprintf(w, "data: %s\n\n", p)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func TestStreamComplete(t *testing.T) {
	var req struct {
		Model    string `json:"model"`
		Stream   bool   `json:"stream"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		StreamOptions struct {
			IncludeUsage bool `json:"include_usage"`
		} `json:"stream_options"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		sse(w,
			`{"id":"1","object":"chat.completion.chunk","model":"gpt-test","choices":[{"index":0,"delta":{"role":"assistant","content":""}}]}`,
			`{"id":"1","object":"chat.completion.chunk","model":"gpt-test","choices":[{"index":0,"delta":{"content":"Hi"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","model":"gpt-test","choices":[{"index":0,"delta":{"content":" there"},"finish_reason":"stop"}]}`,
			`{"id":"1","object":"chat.completion.chunk","model":"gpt-test","choices":[],"usage":{"prompt_tokens":9,"completion_tokens":2,"total_tokens":11}}`,
		)
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1", Model: "gpt-test", SystemPrompt: "be brief"})

	var got []string
	usage, err := client.StreamComplete(context.Background(),
		[]*model.Message{{Role: model.RoleUser, Content: "Hello"}},
		func(c model.StreamChunk) error {
			got = append(got, c.Content)
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hi", " there"}, got)
	assert.Equal(t, model.Usage{InputTokens: 9, OutputTokens: 2, Model: "gpt-test"}, usage)

	assert.True(t, req.Stream)
	assert.True(t, req.StreamOptions.IncludeUsage)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "Hello", req.Messages[1].Content)
}

func TestStreamCompleteCallbackError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sse(w,
			`{"id":"1","choices":[{"index":0,"delta":{"content":"a"}}]}`,
			`{"id":"1","choices":[{"index":0,"delta":{"content":"b"}}]}`,
		)
	}))
	defer srv.Close()

	stop := errors.New("stop")
	calls := 0
	_, err := NewClient(Config{BaseURL: srv.URL}).StreamComplete(context.Background(), nil, func(model.StreamChunk) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestStreamCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).StreamComplete(context.Background(), nil, func(model.StreamChunk) error { return nil })

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "slow down")
}

func TestStreamCompleteCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(Config{BaseURL: "http://127.0.0.1:1"}).StreamComplete(ctx, nil, func(model.StreamChunk) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{})
	assert.Equal(t, DefaultModel, c.Model())
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, "openai", c.Name())
}
