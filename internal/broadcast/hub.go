// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package broadcast

import (
	"log"
	"sync"
)

// Broadcaster publishes DOM updates to a named stream. Calls never block
// on viewers and never fail; a stream with no viewers drops the event.
type Broadcaster interface {
	Append(stream, target, html string)
	Prepend(stream, target, html string)
	Update(stream, target, html string)
	Replace(stream, target, html string)
	Remove(stream, target string)
}

// DefaultBuffer is the per-subscriber event buffer.
const DefaultBuffer = 256

// =============================================================================
// HUB
// =============================================================================

// Hub is an in-process Broadcaster. Each subscriber receives the events of
// its stream in publish order. A subscriber that falls a full buffer behind
// is disconnected rather than allowed to stall publishers; it recovers by
// reloading persisted state and subscribing again.
type Hub struct {
	mu      sync.Mutex
	streams map[string]map[*Subscriber]struct{}
	seq     map[string]uint64
	buffer  int
}

// NewHub creates a hub with the given per-subscriber buffer size.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		streams: make(map[string]map[*Subscriber]struct{}),
		seq:     make(map[string]uint64),
		buffer:  buffer,
	}
}

// Subscriber is one viewer's subscription to a stream.
type Subscriber struct {
	stream string
	hub    *Hub
	ch     chan Event
	closed bool // guarded by hub.mu
}

// Subscribe registers a new subscriber on stream.
func (h *Hub) Subscribe(stream string) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscriber{stream: stream, hub: h, ch: make(chan Event, h.buffer)}
	subs, ok := h.streams[stream]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		h.streams[stream] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

// Events returns the subscriber's event channel. It is closed when the
// subscriber is closed or dropped for falling behind.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Stream returns the stream name.
func (s *Subscriber) Stream() string {
	return s.stream
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscriber) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.removeLocked(s)
}

func (h *Hub) removeLocked(s *Subscriber) {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)

	if subs, ok := h.streams[s.stream]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.streams, s.stream)
		}
	}
}

// Publish assigns the next sequence number for the stream and delivers the
// event to every subscriber without blocking.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq[ev.Stream]++
	ev.Seq = h.seq[ev.Stream]

	for sub := range h.streams[ev.Stream] {
		select {
		case sub.ch <- ev:
		default:
			log.Printf("BROADCAST_SUBSCRIBER_DROPPED | stream=%s seq=%d buffer=%d", ev.Stream, ev.Seq, h.buffer)
			h.removeLocked(sub)
		}
	}
}

// SubscriberCount returns the number of subscribers on stream.
func (h *Hub) SubscriberCount(stream string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams[stream])
}

// =============================================================================
// BROADCASTER
// =============================================================================

// Append implements Broadcaster.
func (h *Hub) Append(stream, target, html string) {
	h.Publish(Event{Stream: stream, Action: ActionAppend, Target: target, HTML: html})
}

// Prepend implements Broadcaster.
func (h *Hub) Prepend(stream, target, html string) {
	h.Publish(Event{Stream: stream, Action: ActionPrepend, Target: target, HTML: html})
}

// Update implements Broadcaster.
func (h *Hub) Update(stream, target, html string) {
	h.Publish(Event{Stream: stream, Action: ActionUpdate, Target: target, HTML: html})
}

// Replace implements Broadcaster.
func (h *Hub) Replace(stream, target, html string) {
	h.Publish(Event{Stream: stream, Action: ActionReplace, Target: target, HTML: html})
}

// Remove implements Broadcaster.
func (h *Hub) Remove(stream, target string) {
	h.Publish(Event{Stream: stream, Action: ActionRemove, Target: target})
}
