// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tasks provides the dispatch queue for completion runs.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// TASK STATUS
// =============================================================================

// TaskStatus represents the current state of a dispatched run.
type TaskStatus string

const (
	// TaskStatusQueued indicates the task is waiting for a worker
	TaskStatusQueued TaskStatus = "Queued"

	// TaskStatusRunning indicates a worker is executing the run
	TaskStatusRunning TaskStatus = "Running"

	// TaskStatusComplete indicates the run finished without error
	TaskStatusComplete TaskStatus = "Complete"

	// TaskStatusFailed indicates the run returned an error
	TaskStatusFailed TaskStatus = "Failed"

	// TaskStatusCanceled indicates the run was canceled before finishing
	TaskStatusCanceled TaskStatus = "Canceled"
)

// String returns the string representation of the task status.
func (s TaskStatus) String() string {
	return string(s)
}

// =============================================================================
// TASK STRUCTURE
// =============================================================================

// Task is one enqueued completion run: answer MessageID in ConversationID.
type Task struct {
	// ID is a unique identifier for this task
	ID string

	// ConversationID is the conversation the run writes into
	ConversationID string

	// MessageID is the user message that triggered the run
	MessageID string

	// Status is the current state of the task
	Status TaskStatus

	// EnqueuedAt is when the task entered the queue
	EnqueuedAt time.Time

	// StartTime is when a worker picked the task up
	StartTime time.Time

	// EndTime is when the task completed, failed or was canceled
	EndTime time.Time

	// Error is the error message if the task failed
	Error string

	cancel context.CancelFunc
	mu     sync.RWMutex
}

// =============================================================================
// TASK CREATION
// =============================================================================

// NewTask creates a queued task for the given conversation and trigger message.
func NewTask(conversationID, messageID string) *Task {
	return &Task{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		MessageID:      messageID,
		Status:         TaskStatusQueued,
		EnqueuedAt:     time.Now(),
	}
}

// =============================================================================
// TASK METHODS
// =============================================================================

// SetStatus updates the task status (thread-safe).
// Valid transitions: Queued -> Running -> Complete/Failed/Canceled
func (t *Task) SetStatus(status TaskStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !isValidTransition(t.Status, status) {
		return fmt.Errorf("invalid status transition from %s to %s", t.Status, status)
	}

	t.Status = status
	return nil
}

func isValidTransition(from, to TaskStatus) bool {
	if from == to {
		return true
	}

	switch from {
	case TaskStatusQueued:
		return to == TaskStatusRunning || to == TaskStatusCanceled
	case TaskStatusRunning:
		return to == TaskStatusComplete || to == TaskStatusFailed || to == TaskStatusCanceled
	default:
		return false
	}
}

// GetStatus returns the current task status (thread-safe).
func (t *Task) GetStatus() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status
}

// SetError records err and marks the task as failed (thread-safe).
func (t *Task) SetError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.Error = err.Error()
		t.Status = TaskStatusFailed
		t.EndTime = time.Now()
	}
}

// GetError returns the error message (thread-safe).
func (t *Task) GetError() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Error
}

// MarkStarted marks the task as running (thread-safe).
func (t *Task) MarkStarted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = TaskStatusRunning
	t.StartTime = time.Now()
}

// MarkComplete marks the task as successfully completed (thread-safe).
func (t *Task) MarkComplete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = TaskStatusComplete
	t.EndTime = time.Now()
}

// MarkCanceled marks the task as canceled (thread-safe).
func (t *Task) MarkCanceled() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = TaskStatusCanceled
	t.EndTime = time.Now()
}

// SetCancelFunc stores the context cancel function for this task.
// Must only be called once, by the worker that runs the task.
func (t *Task) SetCancelFunc(cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancel = cancel
}

// Cancel cancels the task if it is queued or running.
// Returns false if the task already reached a terminal state.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Status != TaskStatusRunning && t.Status != TaskStatusQueued {
		return false
	}

	if t.cancel != nil {
		t.cancel()
	}

	t.Status = TaskStatusCanceled
	t.EndTime = time.Now()
	return true
}

// Duration returns how long the task has been running or took to complete.
func (t *Task) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.StartTime.IsZero() {
		return 0
	}
	if t.EndTime.IsZero() {
		return time.Since(t.StartTime)
	}
	return t.EndTime.Sub(t.StartTime)
}

// Wait returns how long the task sat in the queue before a worker took it.
func (t *Task) Wait() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.StartTime.IsZero() {
		return time.Since(t.EnqueuedAt)
	}
	return t.StartTime.Sub(t.EnqueuedAt)
}

// IsComplete returns true if the task has finished (success, failure, or canceled).
func (t *Task) IsComplete() bool {
	status := t.GetStatus()
	return status == TaskStatusComplete || status == TaskStatusFailed || status == TaskStatusCanceled
}

// Clone creates a copy of the task for reading.
func (t *Task) Clone() *Task {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return &Task{
		ID:             t.ID,
		ConversationID: t.ConversationID,
		MessageID:      t.MessageID,
		Status:         t.Status,
		EnqueuedAt:     t.EnqueuedAt,
		StartTime:      t.StartTime,
		EndTime:        t.EndTime,
		Error:          t.Error,
	}
}
