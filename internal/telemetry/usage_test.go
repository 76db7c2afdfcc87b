// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-chat/internal/model"
)

func newTestTracker(now time.Time) *Tracker {
	t := NewTracker(7)
	t.now = func() time.Time { return now }
	t.started = now
	return t
}

func TestTrackerAggregatesByModel(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	tr := newTestTracker(now)

	tr.RecordRun("ollama", model.Usage{Model: "qwen", InputTokens: 10, OutputTokens: 20}, 100*time.Millisecond, nil)
	tr.RecordRun("ollama", model.Usage{Model: "qwen", InputTokens: 5, OutputTokens: 5}, 300*time.Millisecond, nil)
	tr.RecordRun("openai", model.Usage{}, time.Second, errors.New("boom"))

	s := tr.Summary()
	assert.Equal(t, 3, s.Runs)
	assert.Equal(t, 1, s.Failures)
	assert.Equal(t, 15, s.InputTokens)
	assert.Equal(t, 25, s.OutputTokens)
	assert.True(t, s.Since.Equal(now))

	require.Len(t, s.Models, 2)
	assert.Equal(t, "qwen", s.Models[0].Model)
	assert.Equal(t, 2, s.Models[0].Runs)
	assert.Equal(t, int64(200), s.Models[0].AvgDurationMs)
	assert.Equal(t, "unknown", s.Models[1].Model)
	assert.Equal(t, 1, s.Models[1].Failures)

	require.Len(t, s.Daily, 1)
	assert.Equal(t, "2025-03-10", s.Daily[0].Date)
	assert.Equal(t, 3, s.Daily[0].Runs)
}

func TestTrackerDailyRetention(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	tr := newTestTracker(now)

	tr.Record(Run{Time: now.AddDate(0, 0, -20), Provider: "ollama", Model: "m"})
	tr.Record(Run{Time: now.AddDate(0, 0, -1), Provider: "ollama", Model: "m"})
	tr.Record(Run{Time: now, Provider: "ollama", Model: "m"})

	s := tr.Summary()
	assert.Equal(t, 3, s.Runs, "model totals are not pruned")
	require.Len(t, s.Daily, 2)
	assert.Equal(t, "2025-03-09", s.Daily[0].Date)
	assert.Equal(t, "2025-03-10", s.Daily[1].Date)
}

func TestTrackerEmptySummary(t *testing.T) {
	s := NewTracker(0).Summary()
	assert.Zero(t, s.Runs)
	assert.NotNil(t, s.Models)
	assert.NotNil(t, s.Daily)
}

func TestTrackerConcurrentRecord(t *testing.T) {
	tr := NewTracker(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.RecordRun("ollama", model.Usage{Model: "m", OutputTokens: 2}, time.Millisecond, nil)
			_ = tr.Summary()
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, tr.Summary().OutputTokens)
}
