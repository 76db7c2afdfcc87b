// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask(t *testing.T) {
	task := NewTask("conv-1", "msg-1")

	if task.ID == "" {
		t.Error("Task ID should not be empty")
	}
	if task.ConversationID != "conv-1" {
		t.Errorf("ConversationID = %q, want %q", task.ConversationID, "conv-1")
	}
	if task.GetStatus() != TaskStatusQueued {
		t.Errorf("Expected status Queued, got %s", task.GetStatus())
	}
}

func TestTaskStatusTransitions(t *testing.T) {
	task := NewTask("c", "m")

	if err := task.SetStatus(TaskStatusComplete); err == nil {
		t.Error("Queued -> Complete should be rejected")
	}
	if err := task.SetStatus(TaskStatusRunning); err != nil {
		t.Errorf("Queued -> Running: %v", err)
	}
	if err := task.SetStatus(TaskStatusComplete); err != nil {
		t.Errorf("Running -> Complete: %v", err)
	}
	if err := task.SetStatus(TaskStatusRunning); err == nil {
		t.Error("Complete is terminal")
	}
}

func TestTaskSetError(t *testing.T) {
	task := NewTask("c", "m")
	task.MarkStarted()
	task.SetError(errors.New("boom"))

	if task.GetStatus() != TaskStatusFailed {
		t.Errorf("Expected Failed, got %s", task.GetStatus())
	}
	if task.GetError() != "boom" {
		t.Errorf("GetError() = %q, want %q", task.GetError(), "boom")
	}
	if task.Duration() < 0 {
		t.Error("Task duration should not be negative")
	}
}

func TestQueueFull(t *testing.T) {
	q := NewQueueWithOptions(0, 1)
	require.NoError(t, q.Add(NewTask("a", "1")))

	err := q.Add(NewTask("b", "2"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestQueueNextSkipsBusyConversation(t *testing.T) {
	q := NewQueueWithOptions(0, 0)
	first := NewTask("conv-a", "1")
	second := NewTask("conv-a", "2")
	other := NewTask("conv-b", "3")
	require.NoError(t, q.Add(first))
	require.NoError(t, q.Add(second))
	require.NoError(t, q.Add(other))

	got := q.Next()
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)

	got = q.Next()
	require.NotNil(t, got)
	assert.Equal(t, other.ID, got.ID, "second task for conv-a must wait")

	assert.Nil(t, q.Next())

	q.MarkComplete(first)
	got = q.Next()
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID)
}

func TestQueueCancelQueued(t *testing.T) {
	q := NewQueueWithOptions(0, 0)
	task := NewTask("c", "m")
	require.NoError(t, q.Add(task))

	assert.True(t, q.Cancel(task.ID))
	assert.Nil(t, q.Next())
	assert.False(t, q.Cancel(task.ID))
}

func TestQueueHistoryTrim(t *testing.T) {
	q := NewQueueWithOptions(2, 0)
	for i := 0; i < 4; i++ {
		require.NoError(t, q.Add(NewTask("c", "m")))
		task := q.Next()
		require.NotNil(t, task)
		q.MarkComplete(task)
	}
	assert.Equal(t, Stats{Complete: 2}, q.Stats())
}

func TestQueueNotifications(t *testing.T) {
	q := NewQueueWithOptions(0, 0)
	require.NoError(t, q.Add(NewTask("c", "m")))
	task := q.Next()
	q.MarkFailed(task, errors.New("model down"))

	select {
	case n := <-q.Notifications():
		assert.Equal(t, TaskStatusFailed, n.Status)
		assert.Equal(t, "c", n.ConversationID)
		assert.Equal(t, "model down", n.Error)
	default:
		t.Fatal("expected a notification")
	}
}

func TestDispatcherRunsHandler(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]string{}
	done := make(chan struct{}, 2)

	d := NewDispatcher(func(ctx context.Context, conversationID, messageID string) error {
		mu.Lock()
		seen[messageID] = conversationID
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, Options{Workers: 2})
	d.Start()
	defer d.Stop()

	_, err := d.Enqueue(context.Background(), "conv-1", "msg-1")
	require.NoError(t, err)
	_, err = d.Enqueue(context.Background(), "conv-2", "msg-2")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("handler was not called")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]string{"msg-1": "conv-1", "msg-2": "conv-2"}, seen)
}

func TestDispatcherSerializesConversation(t *testing.T) {
	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)

	d := NewDispatcher(func(ctx context.Context, conversationID, messageID string) error {
		defer wg.Done()
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		return nil
	}, Options{Workers: 4})
	d.Start()
	defer d.Stop()

	for _, id := range []string{"m1", "m2", "m3"} {
		_, err := d.Enqueue(context.Background(), "same-conv", id)
		require.NoError(t, err)
	}

	waitOrFail(t, &wg)
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestDispatcherTimeoutFailsTask(t *testing.T) {
	d := NewDispatcher(func(ctx context.Context, conversationID, messageID string) error {
		<-ctx.Done()
		return ctx.Err()
	}, Options{Workers: 1, RunTimeout: 20 * time.Millisecond})
	d.Start()
	defer d.Stop()

	task, err := d.Enqueue(context.Background(), "c", "m")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got := d.Task(task.ID)
		return got != nil && got.GetStatus() == TaskStatusFailed
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDispatcherRecoversPanic(t *testing.T) {
	d := NewDispatcher(func(ctx context.Context, conversationID, messageID string) error {
		panic("bad run")
	}, Options{Workers: 1})
	d.Start()
	defer d.Stop()

	task, err := d.Enqueue(context.Background(), "c", "m")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got := d.Task(task.ID)
		return got != nil && got.GetStatus() == TaskStatusFailed
	}, 5*time.Second, 10*time.Millisecond)
}

func TestQueueStats(t *testing.T) {
	q := NewQueueWithOptions(0, 0)
	for _, conv := range []string{"a", "b", "c", "d"} {
		require.NoError(t, q.Add(NewTask(conv, "m")))
	}
	done := q.Next()
	q.MarkComplete(done)
	failed := q.Next()
	q.MarkFailed(failed, errors.New("x"))
	q.Next()

	st := q.Stats()
	assert.Equal(t, Stats{Queued: 1, Running: 1, Complete: 1, Failed: 1}, st)
	assert.Equal(t, "running=1 queued=1 complete=1 failed=1 canceled=0", st.String())
}

func TestDispatcherCancelRunning(t *testing.T) {
	started := make(chan struct{})
	d := NewDispatcher(func(ctx context.Context, conversationID, messageID string) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, Options{Workers: 1})
	d.Start()
	defer d.Stop()

	task, err := d.Enqueue(context.Background(), "c", "m")
	require.NoError(t, err)
	<-started

	assert.True(t, d.Cancel(task.ID))
	require.Eventually(t, func() bool {
		got := d.Task(task.ID)
		return got != nil && got.GetStatus() == TaskStatusCanceled
	}, 5*time.Second, 10*time.Millisecond)
	assert.False(t, d.Cancel(task.ID))
	assert.False(t, d.Cancel("unknown"))
	assert.Nil(t, d.Task("unknown"))
}

func TestRunnerNeverStartsAfterStop(t *testing.T) {
	var calls atomic.Int32
	q := NewQueueWithOptions(0, 0)
	r := NewRunnerWithOptions(q, func(context.Context, string, string) error {
		calls.Add(1)
		return nil
	}, 2, 0)
	r.Stop()

	for i := 0; i < 20; i++ {
		require.NoError(t, q.Add(NewTask("c", "m")))
		assert.False(t, r.drain())
	}
	r.Stop()

	assert.Zero(t, calls.Load())
	assert.Zero(t, q.Stats().Running, "a claimed task is released when the runner is stopped")
}

func TestDispatcherRejectsMissingIDs(t *testing.T) {
	d := NewDispatcher(func(context.Context, string, string) error { return nil }, Options{})
	_, err := d.Enqueue(context.Background(), "", "m")
	assert.Error(t, err)
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	ch := make(chan struct{})
	go func() {
		wg.Wait()
		close(ch)
	}()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for runs")
	}
}
