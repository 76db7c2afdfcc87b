// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry tracks token usage of completion runs.
//
// # Key Types
//
//   - Tracker: in-memory per-model and per-day usage counters
//   - Run: one completion run that reached the model
//   - Summary: aggregated snapshot served by GET /usage
//
// # Usage
//
//	tracker := telemetry.NewTracker(telemetry.DefaultRetainDays)
//	orch.WithUsageRecorder(tracker)
//	summary := tracker.Summary()
//
// # Privacy
//
// Only token counts and durations are kept. Message content is never seen.
package telemetry
