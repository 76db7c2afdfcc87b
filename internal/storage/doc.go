// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides SQLite persistence for conversations and messages.
//
// Conversations are owned by one user and carry an optional title that is
// derived once from the first user message. Messages are totally ordered
// within a conversation. Assistant replies start in streaming status, take
// content updates while a completion runs, and become immutable once
// completed. Deleting a conversation cascades to its messages.
//
// # Key Types
//
//   - Store: The SQLite-backed conversation store
//   - ConversationSummary: Conversation plus resolved display title
//   - SidebarNotifier: Hook for live conversation-list updates
//   - StoreError: Comparable error classes (ErrNotFound, ErrImmutable, ...)
//
// # Usage
//
//	store, err := storage.Open(filepath.Join(dataDir, "chat.db"))
//	conv, err := store.CreateConversation(ctx, userID, "")
//	msg, err := store.CreateMessage(ctx, conv.ID, model.RoleUser, "Hello")
//	_, err = store.DeriveTitleFromFirstMessage(ctx, conv, msg)
//	title, err := store.DisplayTitle(ctx, conv)
package storage
