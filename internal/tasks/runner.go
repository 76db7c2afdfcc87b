// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Handler executes one run. It is called with a context that carries the
// per-run timeout and is canceled if the task is canceled.
type Handler func(ctx context.Context, conversationID, messageID string) error

// =============================================================================
// TASK RUNNER
// =============================================================================

// Runner executes tasks from a queue with a bounded number of workers.
type Runner struct {
	queue         *Queue
	handler       Handler
	wg            sync.WaitGroup
	stop          chan struct{}
	mu            sync.Mutex // guards stopped and wg.Add
	stopped       bool
	maxConcurrent int
	semaphore     chan struct{}
	taskTimeout   time.Duration
}

// NewRunnerWithOptions creates a new task runner with custom settings.
// maxConcurrent: maximum number of runs executing at once (default: 4)
// taskTimeout: timeout for each run (0 = no timeout)
func NewRunnerWithOptions(queue *Queue, handler Handler, maxConcurrent int, taskTimeout time.Duration) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Runner{
		queue:         queue,
		handler:       handler,
		stop:          make(chan struct{}),
		maxConcurrent: maxConcurrent,
		semaphore:     make(chan struct{}, maxConcurrent),
		taskTimeout:   taskTimeout,
	}
}

// =============================================================================
// RUNNER LIFECYCLE
// =============================================================================

// Start begins processing tasks from the queue.
func (r *Runner) Start() {
	go r.processLoop()
}

// Stop stops handing out new tasks and waits for running ones to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		close(r.stop)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// =============================================================================
// TASK PROCESSING
// =============================================================================

func (r *Runner) processLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-r.queue.wake:
		case <-ticker.C:
		}
		if !r.drain() {
			return
		}
	}
}

// drain starts every runnable task it can get a worker for.
// Returns false if the runner was stopped.
func (r *Runner) drain() bool {
	for {
		select {
		case r.semaphore <- struct{}{}:
		case <-r.stop:
			return false
		}

		task := r.queue.Next()
		if task == nil {
			<-r.semaphore
			return true
		}

		// Stop may have begun waiting since the claim; a task started now
		// would outlive it.
		r.mu.Lock()
		if r.stopped {
			r.mu.Unlock()
			<-r.semaphore
			r.queue.MarkCanceled(task)
			return false
		}
		r.wg.Add(1)
		r.mu.Unlock()

		go r.executeTask(task)
	}
}

func (r *Runner) executeTask(task *Task) {
	defer r.wg.Done()
	defer func() { <-r.semaphore }()

	var ctx context.Context
	var cancel context.CancelFunc
	if r.taskTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), r.taskTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	task.SetCancelFunc(cancel)
	defer cancel()

	log.Printf("DISPATCH_START | task=%s conversation=%s message=%s wait=%s",
		task.ID, task.ConversationID, task.MessageID, task.Wait().Round(time.Millisecond))

	err := r.run(ctx, task)

	switch {
	case err == nil:
		r.queue.MarkComplete(task)
	case errors.Is(ctx.Err(), context.Canceled):
		r.queue.MarkCanceled(task)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		r.queue.MarkFailed(task, fmt.Errorf("run timeout after %v: %w", r.taskTimeout, err))
	default:
		r.queue.MarkFailed(task, err)
	}
}

// run calls the handler, turning a panic into an error so the worker slot
// and the conversation lock are always released.
func (r *Runner) run(ctx context.Context, task *Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("DISPATCH_PANIC | task=%s conversation=%s panic=%v", task.ID, task.ConversationID, p)
			err = fmt.Errorf("run panicked: %v", p)
		}
	}()
	return r.handler(ctx, task.ConversationID, task.MessageID)
}
