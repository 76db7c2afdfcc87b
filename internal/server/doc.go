// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the rigchat HTTP API.
//
// Endpoints:
//   - GET    /health                - Health check
//   - GET    /chats                 - List the user's conversations
//   - POST   /chats                 - Create a conversation
//   - GET    /chats/{id}            - Conversation with its messages
//   - DELETE /chats/{id}            - Delete a conversation
//   - POST   /chats/{id}/messages   - Send a message and schedule a reply
//   - GET    /chats/{id}/export     - Download as md, json or html
//   - GET    /chats/{id}/stream     - Websocket of live chat updates
//   - GET    /usage                 - Token usage per model
//   - GET    /tasks/{id}            - State of a scheduled reply
//   - DELETE /tasks/{id}            - Cancel a queued or running reply
//   - GET    /sidebar/stream        - Websocket of conversation list updates
//
// Every route except /health requires the user id header set by the
// fronting auth proxy, and a bearer token when one is configured. The
// header name and a client IP allowlist come from AuthConfig.
//
// Middleware covers panic recovery, request logging, security headers,
// CORS, per-IP rate limiting (golang.org/x/time/rate) and authentication.
//
// # Usage
//
//	srv := server.NewServer(":8787", store, dispatcher).
//	    WithStreamer(broadcast.NewWebSocketHandler(hub, nil)).
//	    WithModel(client)
//	err := srv.Run(ctx, 15*time.Second)
package server
