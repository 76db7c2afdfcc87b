// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Conversation: A thread owned by one user, with an optional title
//   - Message: One persisted turn (user or assistant) with streaming status
//   - StreamChunk: A transient fragment of a model reply
//   - Usage: Token counts reported at the end of a model call
//   - Role: Message role enumeration (user, assistant)
package model
