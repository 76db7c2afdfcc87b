// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/rigrun-chat/internal/model"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the Ollama client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeModelNotFound
	ErrTypeConnection
	ErrTypeInvalidResponse
)

// Sentinel errors for easy checking.
var (
	ErrNotRunning    = &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running"}
	ErrTimeout       = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrModelNotFound = &ClientError{Type: ErrTypeModelNotFound, Message: "model not found"}
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the Ollama API base URL (default: http://127.0.0.1:11434)
	BaseURL string

	// Timeout for non-streaming requests (default: 30s). Streams are bounded
	// by the caller's context instead.
	Timeout time.Duration

	// DefaultModel to use if none specified
	DefaultModel string

	// SystemPrompt is sent ahead of the conversation history when set
	SystemPrompt string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:      "http://127.0.0.1:11434",
		Timeout:      30 * time.Second,
		DefaultModel: "llama3.2",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the Ollama API. Safe for concurrent use.
type Client struct {
	config       *ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient creates a new Ollama client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new Ollama client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.DefaultModel == "" {
		config.DefaultModel = defaults.DefaultModel
	}

	return &Client{
		config:       config,
		httpClient:   &http.Client{Timeout: config.Timeout},
		streamClient: &http.Client{},
	}
}

// Name identifies the provider in logs.
func (c *Client) Name() string {
	return "ollama"
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that Ollama is reachable and running.
func (c *Client) CheckRunning(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL, nil)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrNotRunning
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ClientError{Type: ErrTypeConnection, Message: "unexpected status from Ollama: " + resp.Status}
	}
	return nil
}

// ListModels retrieves all available models from Ollama.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ErrNotRunning
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to list models: " + resp.Status}
	}

	var result ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return result.Models, nil
}

// CheckModel verifies that the configured model is installed. Names match
// with or without the ":latest" tag.
func (c *Client) CheckModel(ctx context.Context) error {
	models, err := c.ListModels(ctx)
	if err != nil {
		return err
	}
	want := c.config.DefaultModel
	for _, m := range models {
		if m.Name == want || strings.TrimSuffix(m.Name, ":latest") == want {
			return nil
		}
	}
	return &ClientError{Type: ErrTypeModelNotFound, Message: fmt.Sprintf("model %q is not installed", want)}
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// StreamCallback is called for each chunk received during streaming.
// Returning an error stops the stream and ChatStream returns that error.
type StreamCallback func(chunk StreamChunk) error

// ChatStream sends a streaming chat request and calls the callback for each
// chunk, synchronously and in the order received.
func (c *Client) ChatStream(ctx context.Context, modelName string, messages []Message, callback StreamCallback) error {
	if modelName == "" {
		modelName = c.config.DefaultModel
	}

	body, err := json.Marshal(ChatRequest{Model: modelName, Messages: messages, Stream: true})
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &ClientError{Type: ErrTypeTimeout, Message: "request canceled", Cause: ctxErr}
		}
		return &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrModelNotFound
	}

	if resp.StatusCode != http.StatusOK {
		var ollamaErr OllamaError
		if err := json.NewDecoder(resp.Body).Decode(&ollamaErr); err == nil && ollamaErr.Error != "" {
			return &ClientError{Type: ErrTypeInvalidResponse, Message: ollamaErr.Error}
		}
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "stream request failed: " + resp.Status}
	}

	return NewStreamReader(resp.Body).Process(ctx, callback)
}

// StreamComplete streams a reply to the conversation history, passing each
// fragment to onChunk. It returns token usage once the stream is done.
func (c *Client) StreamComplete(ctx context.Context, history []*model.Message, onChunk func(model.StreamChunk) error) (model.Usage, error) {
	messages := make([]Message, 0, len(history)+1)
	if c.config.SystemPrompt != "" {
		messages = append(messages, NewSystemMessage(c.config.SystemPrompt))
	}
	for _, m := range history {
		messages = append(messages, Message{Role: string(m.Role), Content: m.Content})
	}

	usage := model.Usage{Model: c.config.DefaultModel}
	err := c.ChatStream(ctx, c.config.DefaultModel, messages, func(chunk StreamChunk) error {
		if chunk.Model != "" {
			usage.Model = chunk.Model
		}
		if chunk.Done {
			usage.InputTokens = chunk.PromptTokens
			usage.OutputTokens = chunk.CompletionTokens
		}
		if chunk.Content == "" {
			return nil
		}
		return onChunk(model.StreamChunk{Role: model.RoleAssistant, Content: chunk.Content})
	})
	return usage, err
}

// IsModelNotFound checks if an error is a model not found error.
func IsModelNotFound(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeModelNotFound
	}
	return false
}
