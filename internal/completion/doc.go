// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package completion runs one streamed model reply per user message.
//
// A run shows the typing indicator, streams the model's answer into a new
// assistant message while broadcasting each step to viewers, then stores the
// final message and broadcasts its finished form. Model failures become a
// visible error notice; the typing indicator is always hidden on exit.
//
// # Key Types
//
//   - Orchestrator: runs replies; Run is a tasks.Handler
//   - Model: the streaming model API (ollama.Client, cloud.Client)
//   - Store: persistence, implemented by storage.Store
//   - ModelCallError, PersistenceError: failure classes of a run
//
// # Usage
//
//	orch := completion.New(store, client, hub, typing.NewController(hub, r), r)
//	dispatcher := tasks.NewDispatcher(orch.Run, tasks.Options{})
package completion
