// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package broadcast

import (
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Viewers only send control frames.
	maxReadBytes = 512
)

// Format selects how events are written to a websocket.
type Format string

const (
	// FormatJSON writes each Event as a JSON object.
	FormatJSON Format = "json"

	// FormatTurbo writes each Event as a <turbo-stream> element.
	FormatTurbo Format = "turbo"
)

// WebSocketHandler upgrades viewer connections and pumps a stream to them.
type WebSocketHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a handler. allowedOrigins lists accepted
// Origin hosts; empty means same-origin only, "*" allows any.
func NewWebSocketHandler(hub *Hub, allowedOrigins []string) *WebSocketHandler {
	h := &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	if len(allowedOrigins) > 0 {
		h.upgrader.CheckOrigin = originChecker(allowedOrigins)
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) || strings.EqualFold(a, u.Host) {
				return true
			}
		}
		return false
	}
}

// Serve upgrades the request and streams events of stream until the viewer
// disconnects or falls behind. The caller has already authorized access.
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request, stream string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error
		log.Printf("WS_UPGRADE_FAILED | stream=%s error=%v", stream, err)
		return
	}

	format := FormatJSON
	if Format(r.URL.Query().Get("format")) == FormatTurbo {
		format = FormatTurbo
	}

	sub := h.hub.Subscribe(stream)
	log.Printf("WS_SUBSCRIBED | stream=%s format=%s viewers=%d", stream, format, h.hub.SubscriberCount(stream))

	go readPump(conn, sub)
	writePump(conn, sub, format)
}

// readPump services control frames and closes the subscription when the
// connection goes away.
func readPump(conn *websocket.Conn, sub *Subscriber) {
	defer sub.Close()

	conn.SetReadLimit(maxReadBytes)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WS_READ_ERROR | stream=%s error=%v", sub.Stream(), err)
			}
			return
		}
	}
}

func writePump(conn *websocket.Conn, sub *Subscriber, format Format) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		conn.Close()
		log.Printf("WS_CLOSED | stream=%s", sub.Stream())
	}()

	for {
		select {
		case ev, ok := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "resync"))
				return
			}

			var err error
			if format == FormatTurbo {
				err = conn.WriteMessage(websocket.TextMessage, []byte(ev.TurboStream()))
			} else {
				err = conn.WriteJSON(ev)
			}
			if err != nil {
				log.Printf("WS_WRITE_ERROR | stream=%s error=%v", sub.Stream(), err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
