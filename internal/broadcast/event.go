// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package broadcast delivers ordered DOM-update events to live viewers.
package broadcast

import (
	"fmt"
	"html"
)

// Action is the DOM operation a viewer applies to the target element.
type Action string

const (
	// ActionAppend inserts HTML as the last child of the target.
	ActionAppend Action = "append"

	// ActionPrepend inserts HTML as the first child of the target.
	ActionPrepend Action = "prepend"

	// ActionUpdate replaces the inner content of the target.
	ActionUpdate Action = "update"

	// ActionReplace replaces the target element itself.
	ActionReplace Action = "replace"

	// ActionRemove removes the target element.
	ActionRemove Action = "remove"
)

// Event is one broadcast on a stream. Seq increases by one per event on a
// stream, so a viewer can detect that it missed events.
type Event struct {
	Stream string `json:"stream"`
	Seq    uint64 `json:"seq"`
	Action Action `json:"action"`
	Target string `json:"target"`
	HTML   string `json:"html,omitempty"`
}

// TurboStream renders the event as a <turbo-stream> element.
func (e Event) TurboStream() string {
	if e.Action == ActionRemove {
		return fmt.Sprintf(`<turbo-stream action="%s" target="%s"></turbo-stream>`,
			e.Action, html.EscapeString(e.Target))
	}
	return fmt.Sprintf(`<turbo-stream action="%s" target="%s"><template>%s</template></turbo-stream>`,
		e.Action, html.EscapeString(e.Target), e.HTML)
}

// ChatStream names the stream viewers of a conversation subscribe to.
func ChatStream(conversationID string) string {
	return "chat_" + conversationID
}

// SidebarStream names the stream carrying a user's conversation list.
func SidebarStream(userID string) string {
	return "user_" + userID + "_chats"
}
