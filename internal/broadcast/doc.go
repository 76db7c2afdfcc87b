// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package broadcast delivers ordered DOM-update events to live viewers.
//
// Publishers name a stream (one per conversation, one per user's sidebar),
// a target element id, an action and an HTML fragment. Publishing is
// fire-and-forget: it never blocks and never reports viewer failures.
// Viewers connect over websocket and receive the events of one stream in
// publish order, as JSON or as <turbo-stream> elements.
//
// # Key Types
//
//   - Broadcaster: Publisher interface (append, prepend, update, replace, remove)
//   - Hub: In-process implementation with per-subscriber buffers
//   - Sidebar: Store notifier that keeps conversation lists live
//   - WebSocketHandler: Upgrades viewers and pumps a stream to them
//
// # Usage
//
//	hub := broadcast.NewHub(0)
//	hub.Update(broadcast.ChatStream(convID), render.ContentTarget(msgID), fragment)
//
//	ws := broadcast.NewWebSocketHandler(hub, nil)
//	ws.Serve(w, r, broadcast.ChatStream(convID))
package broadcast
