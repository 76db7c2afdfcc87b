// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud streams chat completions from OpenAI-compatible endpoints.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jeranaias/rigrun-chat/internal/model"
)

const (
	// DefaultBaseURL points at a local OpenAI-compatible gateway.
	DefaultBaseURL = "http://localhost:4141/v1"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-5"

	// DefaultTimeout bounds establishing a stream; the stream itself is
	// bounded by the caller's context.
	DefaultTimeout = 60 * time.Second
)

// =============================================================================
// ERRORS
// =============================================================================

// APIError is a failed call to the completion endpoint.
type APIError struct {
	StatusCode int
	Message    string
	Cause      error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("completion API returned %d: %s", e.StatusCode, e.Message)
	}
	return "completion API: " + e.Message
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// wrapError classifies errors from go-openai.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Cause: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{StatusCode: reqErr.HTTPStatusCode, Message: http.StatusText(reqErr.HTTPStatusCode), Cause: err}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &APIError{Message: "request canceled", Cause: err}
	}
	return &APIError{Message: "connection failed", Cause: err}
}

// =============================================================================
// CLIENT
// =============================================================================

// Config configures a Client.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Client streams completions through github.com/sashabaranov/go-openai.
type Client struct {
	api          *openai.Client
	model        string
	systemPrompt string
	baseURL      string
}

// NewClient creates a client. An empty BaseURL or Model uses the defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient != nil {
		config.HTTPClient = cfg.HTTPClient
	} else {
		config.HTTPClient = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: cfg.Timeout,
			},
		}
	}

	return &Client{
		api:          openai.NewClientWithConfig(config),
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		baseURL:      config.BaseURL,
	}
}

// Name identifies the provider in logs.
func (c *Client) Name() string {
	return "openai"
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// StreamComplete streams a reply to the conversation history, passing each
// non-empty delta to onChunk. Token usage is requested from the server and
// returned when the stream ends.
func (c *Client) StreamComplete(ctx context.Context, history []*model.Message, onChunk func(model.StreamChunk) error) (model.Usage, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if c.systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: c.systemPrompt})
	}
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	usage := model.Usage{Model: c.model}

	stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:         c.model,
		Messages:      messages,
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	})
	if err != nil {
		return usage, wrapError(err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return usage, nil
		}
		if err != nil {
			return usage, wrapError(err)
		}

		if resp.Model != "" {
			usage.Model = resp.Model
		}
		if resp.Usage != nil {
			usage.InputTokens = resp.Usage.PromptTokens
			usage.OutputTokens = resp.Usage.CompletionTokens
		}

		for _, choice := range resp.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := onChunk(model.StreamChunk{Role: model.RoleAssistant, Content: choice.Delta.Content}); err != nil {
				return usage, err
			}
		}
	}
}

// CheckRunning lists models to verify the endpoint answers.
func (c *Client) CheckRunning(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		log.Printf("MODEL_CHECK_FAILED | provider=openai base_url=%s error=%v", c.baseURL, err)
		return wrapError(err)
	}
	return nil
}
