// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package broadcast

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-chat/internal/model"
	"github.com/jeranaias/rigrun-chat/internal/render"
)

func drain(t *testing.T, sub *Subscriber, n int) []Event {
	t.Helper()
	events := make([]Event, 0, n)
	for len(events) < n {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				t.Fatalf("subscription closed after %d events", len(events))
			}
			events = append(events, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d events", len(events), n)
		}
	}
	return events
}

func TestHubDeliversInOrder(t *testing.T) {
	hub := NewHub(16)
	sub := hub.Subscribe("chat_1")
	defer sub.Close()

	hub.Append("chat_1", "messages", "<div>a</div>")
	hub.Update("chat_1", "message-content-a", "H")
	hub.Update("chat_1", "message-content-a", "Hi")
	hub.Replace("chat_1", "message-a", "<div>done</div>")

	events := drain(t, sub, 4)
	assert.Equal(t, ActionAppend, events[0].Action)
	assert.Equal(t, "H", events[1].HTML)
	assert.Equal(t, "Hi", events[2].HTML)
	assert.Equal(t, ActionReplace, events[3].Action)
	for i, ev := range events {
		assert.Equal(t, uint64(i+1), ev.Seq)
	}
}

func TestHubIsolatesStreams(t *testing.T) {
	hub := NewHub(16)
	a := hub.Subscribe("chat_a")
	b := hub.Subscribe("chat_b")
	defer a.Close()
	defer b.Close()

	hub.Update("chat_a", "x", "for a")

	ev := drain(t, a, 1)[0]
	assert.Equal(t, "for a", ev.HTML)

	select {
	case ev := <-b.Events():
		t.Fatalf("chat_b received %+v", ev)
	default:
	}
}

func TestHubPublishWithoutSubscribers(t *testing.T) {
	hub := NewHub(1)
	hub.Update("nobody", "x", "y")
	assert.Equal(t, 0, hub.SubscriberCount("nobody"))
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := NewHub(2)
	slow := hub.Subscribe("s")
	fast := hub.Subscribe("s")

	done := make(chan struct{})
	received := 0
	go func() {
		defer close(done)
		for range fast.Events() {
			received++
			if received == 5 {
				return
			}
		}
	}()

	for i := 0; i < 5; i++ {
		hub.Update("s", "t", fmt.Sprint(i))
		time.Sleep(5 * time.Millisecond)
	}
	<-done
	fast.Close()

	// slow never read: two buffered events, then the channel is closed
	var got []string
	for ev := range slow.Events() {
		got = append(got, ev.HTML)
	}
	assert.Equal(t, []string{"0", "1"}, got)
	assert.Equal(t, 0, hub.SubscriberCount("s"))
}

func TestSubscriberCloseIdempotent(t *testing.T) {
	hub := NewHub(1)
	sub := hub.Subscribe("s")
	sub.Close()
	sub.Close()
	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestTurboStream(t *testing.T) {
	ev := Event{Action: ActionReplace, Target: "message-1", HTML: "<div>x</div>"}
	assert.Equal(t, `<turbo-stream action="replace" target="message-1"><template><div>x</div></template></turbo-stream>`, ev.TurboStream())

	rm := Event{Action: ActionRemove, Target: "chat-1"}
	assert.Equal(t, `<turbo-stream action="remove" target="chat-1"></turbo-stream>`, rm.TurboStream())
}

func TestStreamNames(t *testing.T) {
	assert.Equal(t, "chat_c1", ChatStream("c1"))
	assert.Equal(t, "user_u1_chats", SidebarStream("u1"))
}

func TestSidebar(t *testing.T) {
	hub := NewHub(8)
	sub := hub.Subscribe(SidebarStream("u1"))
	defer sub.Close()

	s := NewSidebar(hub, render.New())
	conv := &model.Conversation{ID: "c1", UserID: "u1"}
	s.ConversationCreated(conv, "New Chat")
	s.ConversationRenamed(conv, "Trip plans")
	s.ConversationDeleted(conv)

	events := drain(t, sub, 3)
	assert.Equal(t, ActionPrepend, events[0].Action)
	assert.Equal(t, render.SidebarTarget, events[0].Target)
	assert.Contains(t, events[0].HTML, "New Chat")
	assert.Equal(t, ActionReplace, events[1].Action)
	assert.Equal(t, "chat-c1", events[1].Target)
	assert.Contains(t, events[1].HTML, "Trip plans")
	assert.Equal(t, ActionRemove, events[2].Action)
	assert.Equal(t, "chat-c1", events[2].Target)
}

func TestWebSocketStreamsEvents(t *testing.T) {
	hub := NewHub(8)
	ws := NewWebSocketHandler(hub, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.Serve(w, r, "chat_c1")
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.SubscriberCount("chat_c1") == 1 },
		2*time.Second, 10*time.Millisecond)

	hub.Update("chat_c1", "message-content-m", "Hi")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, ActionUpdate, ev.Action)
	assert.Equal(t, "message-content-m", ev.Target)
	assert.Equal(t, "Hi", ev.HTML)
}

func TestWebSocketTurboFormat(t *testing.T) {
	hub := NewHub(8)
	ws := NewWebSocketHandler(hub, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.Serve(w, r, "chat_c1")
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?format=turbo"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.SubscriberCount("chat_c1") == 1 },
		2*time.Second, 10*time.Millisecond)

	hub.Remove("chat_c1", "typing-indicator")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `<turbo-stream action="remove" target="typing-indicator"></turbo-stream>`, string(data))
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"app.example.com"})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, check(r), "no Origin header")

	r.Header.Set("Origin", "https://app.example.com")
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(r))
}
