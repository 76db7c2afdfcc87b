// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-chat/internal/model"
)

// =============================================================================
// STREAM READER TESTS
// =============================================================================

func TestStreamReaderProcess(t *testing.T) {
	input := strings.Join([]string{
		`{"model":"m","message":{"role":"assistant","content":"Hi"},"done":false}`,
		``,
		`not json`,
		`{"model":"m","message":{"role":"assistant","content":" there"},"done":false}`,
		`{"model":"m","message":{"role":"assistant","content":""},"done":true,"prompt_eval_count":7,"eval_count":2}`,
		`{"model":"m","message":{"role":"assistant","content":"ignored"},"done":false}`,
	}, "\n")

	var chunks []StreamChunk
	r := NewStreamReader(strings.NewReader(input))
	err := r.Process(context.Background(), func(c StreamChunk) error {
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	assert.Equal(t, "Hi", chunks[0].Content)
	assert.True(t, chunks[2].Done)
	assert.Equal(t, 7, chunks[2].PromptTokens)
	assert.Equal(t, 2, chunks[2].CompletionTokens)
	assert.Equal(t, "m", chunks[1].Model)
}

func TestStreamReaderCallbackErrorStops(t *testing.T) {
	input := `{"message":{"content":"a"}}` + "\n" + `{"message":{"content":"b"}}` + "\n"
	stop := errors.New("stop")

	calls := 0
	err := NewStreamReader(strings.NewReader(input)).Process(context.Background(), func(StreamChunk) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestStreamReaderErrorLine(t *testing.T) {
	input := `{"message":{"content":"a"}}` + "\n" + `{"error":"model crashed"}` + "\n"

	err := NewStreamReader(strings.NewReader(input)).Process(context.Background(), func(StreamChunk) error { return nil })
	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, "model crashed", clientErr.Message)
}

func TestStreamReaderCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewStreamReader(strings.NewReader(`{"message":{"content":"a"}}`+"\n")).Process(ctx, func(StreamChunk) error { return nil })
	assert.Equal(t, ErrTypeTimeout, errorType(err))
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// CLIENT TESTS
// =============================================================================

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClientWithConfig(&ClientConfig{BaseURL: srv.URL, DefaultModel: "test-model", SystemPrompt: "be brief"})
}

func TestStreamComplete(t *testing.T) {
	var got ChatRequest
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprintln(w, `{"model":"test-model","message":{"role":"assistant","content":"Hi"},"done":false}`)
		fmt.Fprintln(w, `{"model":"test-model","message":{"role":"assistant","content":" there"},"done":false}`)
		fmt.Fprintln(w, `{"model":"test-model","message":{"role":"assistant","content":""},"done":true,"prompt_eval_count":5,"eval_count":2}`)
	})

	history := []*model.Message{{Role: model.RoleUser, Content: "Hello"}}
	var contents []string
	usage, err := client.StreamComplete(context.Background(), history, func(c model.StreamChunk) error {
		contents = append(contents, c.Content)
		assert.Equal(t, model.RoleAssistant, c.Role)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hi", " there"}, contents)
	assert.Equal(t, model.Usage{InputTokens: 5, OutputTokens: 2, Model: "test-model"}, usage)

	assert.True(t, got.Stream)
	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, Message{Role: "user", Content: "Hello"}, got.Messages[1])
}

func TestChatStreamModelNotFound(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.StreamComplete(context.Background(), nil, func(model.StreamChunk) error { return nil })
	assert.True(t, IsModelNotFound(err))
}

func TestChatStreamServerError(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"out of memory"}`)
	})

	_, err := client.StreamComplete(context.Background(), nil, func(model.StreamChunk) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of memory")
}

func TestChatStreamNotRunning(t *testing.T) {
	client := NewClientWithConfig(&ClientConfig{BaseURL: "http://127.0.0.1:1"})
	err := client.ChatStream(context.Background(), "", nil, func(StreamChunk) error { return nil })
	assert.Equal(t, ErrTypeNotRunning, errorType(err))
}

func TestCheckRunningAndModel(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			fmt.Fprint(w, `{"models":[{"name":"llama3.2:latest","size":1024}]}`)
			return
		}
		fmt.Fprint(w, "Ollama is running")
	})

	require.NoError(t, client.CheckRunning(context.Background()))
	client.config.DefaultModel = "llama3.2"
	require.NoError(t, client.CheckModel(context.Background()))

	client.config.DefaultModel = "qwen3"
	err := client.CheckModel(context.Background())
	assert.True(t, IsModelNotFound(err))
	assert.Contains(t, err.Error(), `"qwen3"`)
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClientWithConfig(&ClientConfig{})
	assert.Equal(t, "http://127.0.0.1:11434", c.config.BaseURL)
	assert.Equal(t, "llama3.2", c.config.DefaultModel)
	assert.Equal(t, "ollama", c.Name())
}

func errorType(err error) ErrorType {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type
	}
	return -1
}
