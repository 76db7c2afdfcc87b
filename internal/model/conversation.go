// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// Conversation is a titled thread of messages owned by one user.
type Conversation struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	// Title is empty until set explicitly or derived from the first user
	// message. Once set it does not change.
	Title string `json:"title,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasTitle reports whether a title has been set.
func (c *Conversation) HasTitle() bool {
	return c.Title != ""
}

// OwnedBy reports whether userID owns the conversation.
func (c *Conversation) OwnedBy(userID string) bool {
	return userID != "" && c.UserID == userID
}
