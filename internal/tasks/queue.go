// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrQueueFull is returned by Add when the queued task limit is reached.
var ErrQueueFull = errors.New("dispatch queue is full")

// =============================================================================
// TASK QUEUE
// =============================================================================

// Queue holds dispatched runs. At most one task per conversation is handed out
// at a time; later tasks for a busy conversation wait until it frees up.
type Queue struct {
	// tasks is the list of all tasks (both queued and completed)
	tasks []*Task

	// running tracks currently running tasks by ID
	running map[string]*Task

	// busy maps a conversation ID to the ID of the task running for it
	busy map[string]string

	// maxHistory is the maximum number of completed tasks to keep
	maxHistory int

	// maxQueueSize is the maximum number of queued tasks allowed (0 = unlimited)
	maxQueueSize int

	mu sync.RWMutex

	notifyChan chan TaskNotification

	// wake is signaled whenever a task may have become runnable
	wake chan struct{}
}

// TaskNotification represents a notification about a task state change.
type TaskNotification struct {
	TaskID         string
	ConversationID string
	MessageID      string
	Status         TaskStatus
	Error          string
	Duration       time.Duration
}

// =============================================================================
// QUEUE CREATION
// =============================================================================

// NewQueueWithOptions creates a new task queue with custom settings.
// maxHistory: maximum number of completed tasks to keep (0 = unlimited)
// maxQueueSize: maximum number of queued tasks allowed (0 = unlimited)
func NewQueueWithOptions(maxHistory, maxQueueSize int) *Queue {
	return &Queue{
		tasks:        make([]*Task, 0),
		running:      make(map[string]*Task),
		busy:         make(map[string]string),
		maxHistory:   maxHistory,
		maxQueueSize: maxQueueSize,
		notifyChan:   make(chan TaskNotification, 100),
		wake:         make(chan struct{}, 1),
	}
}

// =============================================================================
// TASK MANAGEMENT
// =============================================================================

// Add adds a new task to the queue.
// Returns ErrQueueFull if the queue has reached its maximum size.
func (q *Queue) Add(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxQueueSize > 0 {
		queuedCount := 0
		for _, t := range q.tasks {
			if t.GetStatus() == TaskStatusQueued {
				queuedCount++
			}
		}
		if queuedCount >= q.maxQueueSize {
			return fmt.Errorf("%w: %d queued tasks (max: %d)", ErrQueueFull, queuedCount, q.maxQueueSize)
		}
	}

	_ = task.SetStatus(TaskStatusQueued)
	q.tasks = append(q.tasks, task)
	q.signal()
	return nil
}

// Get retrieves a copy of a task by ID.
// Returns nil if the task is not found.
func (q *Queue) Get(id string) *Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, task := range q.tasks {
		if task.ID == id {
			return task.Clone()
		}
	}
	return nil
}

// Next claims the oldest queued task whose conversation has no running task.
// The returned task is the original pointer, already marked running.
// Returns nil when nothing is runnable.
func (q *Queue) Next() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, task := range q.tasks {
		if task.GetStatus() != TaskStatusQueued {
			continue
		}
		if _, ok := q.busy[task.ConversationID]; ok {
			continue
		}
		task.MarkStarted()
		q.running[task.ID] = task
		q.busy[task.ConversationID] = task.ID
		return task
	}
	return nil
}

// Cancel cancels a task by ID.
// Returns true if the task was successfully canceled.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if task, ok := q.running[id]; ok {
		return task.Cancel()
	}

	for _, task := range q.tasks {
		if task.ID == id && task.GetStatus() == TaskStatusQueued {
			task.MarkCanceled()
			return true
		}
	}
	return false
}

// MarkComplete marks a task as complete and frees its conversation.
func (q *Queue) MarkComplete(task *Task) {
	q.finish(task, TaskStatusComplete, nil)
}

// MarkFailed marks a task as failed and frees its conversation.
func (q *Queue) MarkFailed(task *Task, err error) {
	q.finish(task, TaskStatusFailed, err)
}

// MarkCanceled marks a task as canceled and frees its conversation.
func (q *Queue) MarkCanceled(task *Task) {
	q.finish(task, TaskStatusCanceled, nil)
}

func (q *Queue) finish(task *Task, status TaskStatus, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch status {
	case TaskStatusComplete:
		task.MarkComplete()
	case TaskStatusFailed:
		task.SetError(err)
	default:
		task.MarkCanceled()
	}

	delete(q.running, task.ID)
	if q.busy[task.ConversationID] == task.ID {
		delete(q.busy, task.ConversationID)
	}

	n := TaskNotification{
		TaskID:         task.ID,
		ConversationID: task.ConversationID,
		MessageID:      task.MessageID,
		Status:         status,
		Duration:       task.Duration(),
	}
	if err != nil {
		n.Error = err.Error()
	}
	q.notify(n)

	q.cleanupLocked()
	q.signal()
}

// =============================================================================
// QUEUE QUERIES
// =============================================================================

// Stats counts tasks by status. Finished counts cover the retained history
// only.
type Stats struct {
	Queued   int `json:"queued"`
	Running  int `json:"running"`
	Complete int `json:"complete"`
	Failed   int `json:"failed"`
	Canceled int `json:"canceled"`
}

// String formats stats for log lines.
func (s Stats) String() string {
	return fmt.Sprintf("running=%d queued=%d complete=%d failed=%d canceled=%d",
		s.Running, s.Queued, s.Complete, s.Failed, s.Canceled)
}

// Stats returns the current task counts.
func (q *Queue) Stats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	st := Stats{Running: len(q.running)}
	for _, task := range q.tasks {
		switch task.GetStatus() {
		case TaskStatusQueued:
			st.Queued++
		case TaskStatusComplete:
			st.Complete++
		case TaskStatusFailed:
			st.Failed++
		case TaskStatusCanceled:
			st.Canceled++
		}
	}
	return st
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// Notifications returns the notification channel.
func (q *Queue) Notifications() <-chan TaskNotification {
	return q.notifyChan
}

// notify sends a notification (must be called with lock held).
func (q *Queue) notify(notification TaskNotification) {
	select {
	case q.notifyChan <- notification:
	default:
		log.Printf("DISPATCH_NOTIFY_DROPPED | task=%s status=%s", notification.TaskID, notification.Status)
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// =============================================================================
// CLEANUP
// =============================================================================

// cleanupLocked removes the oldest completed tasks beyond maxHistory.
// Must be called with lock held.
func (q *Queue) cleanupLocked() {
	if q.maxHistory <= 0 {
		return
	}

	completedCount := 0
	for _, task := range q.tasks {
		if task.IsComplete() {
			completedCount++
		}
	}

	if completedCount > q.maxHistory {
		toRemove := completedCount - q.maxHistory
		newTasks := make([]*Task, 0, len(q.tasks)-toRemove)

		for _, task := range q.tasks {
			if task.IsComplete() && toRemove > 0 {
				toRemove--
				continue
			}
			newTasks = append(newTasks, task)
		}
		q.tasks = newTasks
	}
}
