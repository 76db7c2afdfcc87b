// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package typing shows and hides the "assistant is typing" indicator.
package typing

import (
	"sync"

	"github.com/jeranaias/rigrun-chat/internal/broadcast"
	"github.com/jeranaias/rigrun-chat/internal/render"
)

// Controller broadcasts typing-indicator state for conversations. It keeps
// no state of its own: each call replaces the indicator element.
type Controller struct {
	b broadcast.Broadcaster
	r *render.Renderer
}

// NewController creates a controller publishing through b.
func NewController(b broadcast.Broadcaster, r *render.Renderer) *Controller {
	return &Controller{b: b, r: r}
}

// SetVisible shows or hides the indicator in the conversation's stream.
// Repeating a call is harmless.
func (c *Controller) SetVisible(conversationID string, visible bool) {
	c.b.Replace(broadcast.ChatStream(conversationID), render.TypingTarget, c.r.Typing(visible))
}

// Begin returns an indicator owned by one completion run.
func (c *Controller) Begin(conversationID string) *Indicator {
	return &Indicator{c: c, conversationID: conversationID}
}

// Indicator is a run's handle on the typing state of its conversation.
// Callers defer Release so the indicator always ends hidden.
type Indicator struct {
	c              *Controller
	conversationID string

	mu      sync.Mutex
	visible bool
}

// Show makes the indicator visible.
func (i *Indicator) Show() {
	i.set(true)
}

// Hide hides the indicator.
func (i *Indicator) Hide() {
	i.set(false)
}

// Visible reports the last state this indicator broadcast.
func (i *Indicator) Visible() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.visible
}

// Release hides the indicator unconditionally. It broadcasts on every call,
// even if the indicator was already hidden, because a viewer may have missed
// the earlier hide.
func (i *Indicator) Release() {
	i.set(false)
}

func (i *Indicator) set(visible bool) {
	i.mu.Lock()
	i.visible = visible
	i.mu.Unlock()
	i.c.SetVisible(i.conversationID, visible)
}
