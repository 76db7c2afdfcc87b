// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"sort"
	"sync"
	"time"

	"github.com/jeranaias/rigrun-chat/internal/model"
)

// DefaultRetainDays is how many days of daily breakdown are kept.
const DefaultRetainDays = 30

const dateLayout = "2006-01-02"

// =============================================================================
// TYPES
// =============================================================================

// Run is the outcome of one completion run that reached the model.
type Run struct {
	Time         time.Time
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
	Failed       bool
}

// ModelUsage aggregates runs for one provider and model.
type ModelUsage struct {
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	Runs          int    `json:"runs"`
	Failures      int    `json:"failures"`
	InputTokens   int    `json:"input_tokens"`
	OutputTokens  int    `json:"output_tokens"`
	AvgDurationMs int64  `json:"avg_duration_ms"`

	totalDuration time.Duration
}

// DailyUsage aggregates runs for one calendar day (UTC).
type DailyUsage struct {
	Date         string `json:"date"`
	Runs         int    `json:"runs"`
	Failures     int    `json:"failures"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// Summary is a point-in-time copy of everything the tracker has seen.
type Summary struct {
	Since        time.Time    `json:"since"`
	Runs         int          `json:"runs"`
	Failures     int          `json:"failures"`
	InputTokens  int          `json:"input_tokens"`
	OutputTokens int          `json:"output_tokens"`
	Models       []ModelUsage `json:"models"`
	Daily        []DailyUsage `json:"daily"`
}

// =============================================================================
// TRACKER
// =============================================================================

// Tracker records token usage and failures per model. It is in-memory and
// safe for concurrent use.
type Tracker struct {
	mu         sync.RWMutex
	started    time.Time
	models     map[string]*ModelUsage
	daily      map[string]*DailyUsage
	retainDays int
	now        func() time.Time
}

// NewTracker creates a tracker. retainDays <= 0 uses DefaultRetainDays.
func NewTracker(retainDays int) *Tracker {
	if retainDays <= 0 {
		retainDays = DefaultRetainDays
	}
	t := &Tracker{
		models:     make(map[string]*ModelUsage),
		daily:      make(map[string]*DailyUsage),
		retainDays: retainDays,
		now:        time.Now,
	}
	t.started = t.now()
	return t
}

// Record adds one run.
func (t *Tracker) Record(r Run) {
	if r.Time.IsZero() {
		r.Time = t.now()
	}
	if r.Model == "" {
		r.Model = "unknown"
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := r.Provider + "/" + r.Model
	mu, ok := t.models[key]
	if !ok {
		mu = &ModelUsage{Provider: r.Provider, Model: r.Model}
		t.models[key] = mu
	}
	mu.Runs++
	mu.InputTokens += r.InputTokens
	mu.OutputTokens += r.OutputTokens
	mu.totalDuration += r.Duration
	if r.Failed {
		mu.Failures++
	}

	date := r.Time.UTC().Format(dateLayout)
	day, ok := t.daily[date]
	if !ok {
		day = &DailyUsage{Date: date}
		t.daily[date] = day
	}
	day.Runs++
	day.InputTokens += r.InputTokens
	day.OutputTokens += r.OutputTokens
	if r.Failed {
		day.Failures++
	}

	t.prune()
}

// RecordRun records a completion run. A non-nil err marks it failed.
func (t *Tracker) RecordRun(provider string, usage model.Usage, d time.Duration, err error) {
	t.Record(Run{
		Provider:     provider,
		Model:        usage.Model,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		Duration:     d,
		Failed:       err != nil,
	})
}

// prune drops daily buckets older than the retention window. Caller holds mu.
func (t *Tracker) prune() {
	cutoff := t.now().UTC().AddDate(0, 0, -t.retainDays).Format(dateLayout)
	for date := range t.daily {
		if date < cutoff {
			delete(t.daily, date)
		}
	}
}

// Summary returns totals, per-model usage sorted by run count and the daily
// breakdown oldest first.
func (t *Tracker) Summary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Summary{
		Since:  t.started,
		Models: make([]ModelUsage, 0, len(t.models)),
		Daily:  make([]DailyUsage, 0, len(t.daily)),
	}
	for _, mu := range t.models {
		m := *mu
		if m.Runs > 0 {
			m.AvgDurationMs = (m.totalDuration / time.Duration(m.Runs)).Milliseconds()
		}
		s.Runs += m.Runs
		s.Failures += m.Failures
		s.InputTokens += m.InputTokens
		s.OutputTokens += m.OutputTokens
		s.Models = append(s.Models, m)
	}
	for _, day := range t.daily {
		s.Daily = append(s.Daily, *day)
	}

	sort.Slice(s.Models, func(i, j int) bool {
		if s.Models[i].Runs != s.Models[j].Runs {
			return s.Models[i].Runs > s.Models[j].Runs
		}
		return s.Models[i].Provider+s.Models[i].Model < s.Models[j].Provider+s.Models[j].Model
	})
	sort.Slice(s.Daily, func(i, j int) bool {
		return s.Daily[i].Date < s.Daily[j].Date
	})
	return s
}
