// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package typing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-chat/internal/broadcast"
	"github.com/jeranaias/rigrun-chat/internal/render"
)

func next(t *testing.T, sub *broadcast.Subscriber) broadcast.Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return broadcast.Event{}
	}
}

func TestSetVisible(t *testing.T) {
	hub := broadcast.NewHub(8)
	sub := hub.Subscribe(broadcast.ChatStream("c1"))
	defer sub.Close()

	c := NewController(hub, render.New())
	c.SetVisible("c1", true)
	c.SetVisible("c1", false)

	shown := next(t, sub)
	assert.Equal(t, broadcast.ActionReplace, shown.Action)
	assert.Equal(t, render.TypingTarget, shown.Target)
	assert.NotContains(t, shown.HTML, "hidden")

	hidden := next(t, sub)
	assert.Equal(t, render.TypingTarget, hidden.Target)
	assert.Contains(t, hidden.HTML, "hidden")
}

func TestIndicatorReleaseAlwaysBroadcasts(t *testing.T) {
	hub := broadcast.NewHub(8)
	sub := hub.Subscribe(broadcast.ChatStream("c1"))
	defer sub.Close()

	ind := NewController(hub, render.New()).Begin("c1")
	ind.Show()
	require.True(t, ind.Visible())
	ind.Hide()
	ind.Release()
	ind.Release()
	assert.False(t, ind.Visible())

	var hides int
	for i := 0; i < 4; i++ {
		if ev := next(t, sub); ev.Target == render.TypingTarget && containsHidden(ev.HTML) {
			hides++
		}
	}
	assert.Equal(t, 3, hides)
}

func containsHidden(html string) bool {
	return len(html) > 0 && (html == render.New().Typing(false))
}
