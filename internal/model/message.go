// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"fmt"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// ParseRole validates a stored role value.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAssistant:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// =============================================================================
// MESSAGE STATUS
// =============================================================================

// Status tracks whether a message's content may still change.
type Status string

const (
	// StatusStreaming marks an assistant message whose content is still being
	// written by a completion run.
	StatusStreaming Status = "streaming"

	// StatusComplete marks a message whose content is final.
	StatusComplete Status = "complete"
)

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single persisted turn in a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`

	// ReplyTo is the user message an assistant message answers.
	ReplyTo string `json:"reply_to,omitempty"`

	// Set when the completion finishes.
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	ModelID      string `json:"model_id,omitempty"`
}

// IsComplete reports whether the message content is final.
func (m *Message) IsComplete() bool {
	return m.Status == StatusComplete
}

// TotalTokens returns input plus output tokens.
func (m *Message) TotalTokens() int {
	return m.InputTokens + m.OutputTokens
}

// =============================================================================
// STREAMING
// =============================================================================

// StreamChunk is one fragment yielded by a streaming model call.
// Chunks with empty Content carry no text and are ignored by consumers.
type StreamChunk struct {
	Role    Role
	Content string
}

// IsEmpty reports whether the chunk carries no text.
func (c StreamChunk) IsEmpty() bool {
	return c.Content == ""
}

// Usage is reported by a model call once its stream ends.
type Usage struct {
	InputTokens  int
	OutputTokens int
	Model        string
}
