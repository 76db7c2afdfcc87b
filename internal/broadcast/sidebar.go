// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package broadcast

import (
	"github.com/jeranaias/rigrun-chat/internal/model"
	"github.com/jeranaias/rigrun-chat/internal/render"
)

// Sidebar keeps each user's conversation list live. It is registered on the
// store as its sidebar notifier.
type Sidebar struct {
	b Broadcaster
	r *render.Renderer
}

// NewSidebar creates a sidebar publisher.
func NewSidebar(b Broadcaster, r *render.Renderer) *Sidebar {
	return &Sidebar{b: b, r: r}
}

// ConversationCreated prepends the new conversation to the owner's list.
func (s *Sidebar) ConversationCreated(conv *model.Conversation, displayTitle string) {
	s.b.Prepend(SidebarStream(conv.UserID), render.SidebarTarget, s.r.SidebarItem(conv.ID, displayTitle))
}

// ConversationRenamed replaces the conversation's entry with its new title.
func (s *Sidebar) ConversationRenamed(conv *model.Conversation, displayTitle string) {
	s.b.Replace(SidebarStream(conv.UserID), render.SidebarItemTarget(conv.ID), s.r.SidebarItem(conv.ID, displayTitle))
}

// ConversationDeleted removes the conversation's entry.
func (s *Sidebar) ConversationDeleted(conv *model.Conversation) {
	s.b.Remove(SidebarStream(conv.UserID), render.SidebarItemTarget(conv.ID))
}
