// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tasks provides the dispatch queue for completion runs.
//
// A request handler enqueues (conversation, message) pairs; a bounded pool of
// workers executes them asynchronously. Runs for the same conversation never
// overlap: a queued task waits while another task for its conversation is
// running.
//
// # Key Types
//
//   - Task: One run with status, timings and error
//   - Queue: Task list with per-conversation claiming and notifications
//   - Runner: Worker pool with per-run timeout and cancellation
//   - Dispatcher: Enqueue/Run facade used by the server
//
// # Usage
//
//	d := tasks.NewDispatcher(orch.Run, tasks.Options{Workers: 4, RunTimeout: 5 * time.Minute})
//	go d.Run(ctx)
//	task, err := d.Enqueue(ctx, conversationID, messageID)
package tasks
