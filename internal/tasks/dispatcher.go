// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"errors"
	"log"
	"time"
)

// Options configures a Dispatcher.
type Options struct {
	Workers    int
	MaxQueued  int
	MaxHistory int
	RunTimeout time.Duration
}

// Dispatcher is the enqueue side of the completion pipeline: callers hand it
// (conversation, message) pairs and it runs the handler asynchronously.
type Dispatcher struct {
	queue  *Queue
	runner *Runner
}

// NewDispatcher creates a dispatcher backed by a queue and runner.
func NewDispatcher(handler Handler, opts Options) *Dispatcher {
	q := NewQueueWithOptions(opts.MaxHistory, opts.MaxQueued)
	return &Dispatcher{
		queue:  q,
		runner: NewRunnerWithOptions(q, handler, opts.Workers, opts.RunTimeout),
	}
}

// Enqueue schedules a run answering messageID in conversationID.
func (d *Dispatcher) Enqueue(ctx context.Context, conversationID, messageID string) (*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if conversationID == "" || messageID == "" {
		return nil, errors.New("conversation and message ids are required")
	}

	task := NewTask(conversationID, messageID)
	if err := d.queue.Add(task); err != nil {
		return nil, err
	}
	log.Printf("DISPATCH_ENQUEUED | task=%s conversation=%s message=%s", task.ID, conversationID, messageID)
	return task.Clone(), nil
}

// Start launches the worker loop.
func (d *Dispatcher) Start() {
	d.runner.Start()
}

// Run starts the dispatcher and blocks until ctx is done, then stops it and
// waits for in-flight runs.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.Start()
	go d.logNotifications(ctx)
	<-ctx.Done()
	d.Stop()
	log.Printf("DISPATCH_STOPPED | %s", d.Stats())
	return nil
}

// Stop stops the worker loop and waits for in-flight runs.
func (d *Dispatcher) Stop() {
	d.runner.Stop()
}

// Task returns a snapshot of the task with id, or nil if it is unknown or
// has aged out of the history.
func (d *Dispatcher) Task(id string) *Task {
	return d.queue.Get(id)
}

// Cancel stops a queued or running task. A running task's context is
// canceled; the handler decides how the run ends. Reports whether the task
// was still cancelable.
func (d *Dispatcher) Cancel(id string) bool {
	if !d.queue.Cancel(id) {
		return false
	}
	log.Printf("DISPATCH_CANCEL_REQUESTED | task=%s", id)
	return true
}

// Stats returns the current task counts.
func (d *Dispatcher) Stats() Stats {
	return d.queue.Stats()
}

func (d *Dispatcher) logNotifications(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.queue.Notifications():
			if n.Error != "" {
				log.Printf("DISPATCH_%s | task=%s conversation=%s duration=%s error=%q",
					statusTag(n.Status), n.TaskID, n.ConversationID, n.Duration.Round(time.Millisecond), n.Error)
				continue
			}
			log.Printf("DISPATCH_%s | task=%s conversation=%s duration=%s",
				statusTag(n.Status), n.TaskID, n.ConversationID, n.Duration.Round(time.Millisecond))
		}
	}
}

func statusTag(s TaskStatus) string {
	switch s {
	case TaskStatusComplete:
		return "COMPLETE"
	case TaskStatusFailed:
		return "FAILED"
	case TaskStatusCanceled:
		return "CANCELED"
	default:
		return "UPDATE"
	}
}
