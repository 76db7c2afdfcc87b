// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render produces the HTML fragments pushed to live viewers.
package render

import (
	"bytes"
	"html/template"
	"log"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/jeranaias/rigrun-chat/internal/model"
)

// =============================================================================
// TARGETS
// =============================================================================

// Element ids that broadcasts address.
const (
	MessagesTarget = "messages"
	TypingTarget   = "typing-indicator"
	SidebarTarget  = "sidebar-chats"
)

// MessageTarget is the id of a whole message bubble.
func MessageTarget(messageID string) string {
	return "message-" + messageID
}

// ContentTarget is the id of a message's content region.
func ContentTarget(messageID string) string {
	return "message-content-" + messageID
}

// SidebarItemTarget is the id of a conversation's entry in the sidebar.
func SidebarItemTarget(conversationID string) string {
	return "chat-" + conversationID
}

// =============================================================================
// RENDERER
// =============================================================================

const fragments = `
{{define "content"}}<div id="{{.ID}}" class="message-content">{{.Body}}</div>{{end}}

{{define "message"}}<div id="{{.ID}}" class="message message-{{.Role}}" data-status="{{.Status}}">
<div class="message-role">{{.RoleName}}</div>
{{template "content" .Content}}
{{- if .Tokens}}
<div class="message-meta">{{.Tokens}} tokens{{if .Model}} &middot; {{.Model}}{{end}}</div>
{{- end}}
</div>{{end}}

{{define "typing"}}{{if .}}<div id="typing-indicator" class="typing-indicator" aria-live="polite"><span></span><span></span><span></span></div>{{else}}<div id="typing-indicator" class="typing-indicator hidden"></div>{{end}}{{end}}

{{define "sidebar-item"}}<li id="{{.ID}}" class="sidebar-chat"><a href="/chats/{{.ConversationID}}">{{.Title}}</a></li>{{end}}
`

type contentData struct {
	ID   string
	Body template.HTML
}

type messageData struct {
	ID       string
	Role     model.Role
	RoleName string
	Status   model.Status
	Content  contentData
	Tokens   int
	Model    string
}

type sidebarData struct {
	ID             string
	ConversationID string
	Title          string
}

// Renderer renders message, typing and sidebar fragments.
type Renderer struct {
	tmpl *template.Template
	md   goldmark.Markdown
}

// New creates a renderer. Markdown is rendered without raw HTML passthrough.
func New() *Renderer {
	return &Renderer{
		tmpl: template.Must(template.New("fragments").Parse(fragments)),
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

// Content renders the inner body of a message's content region with text
// escaped. It is the payload of an update targeting ContentTarget, so it
// never includes the region element itself.
func (r *Renderer) Content(text string) string {
	return string(escape(text))
}

// Message renders a full message bubble. Completed assistant replies are
// rendered as markdown; everything else is escaped text.
func (r *Renderer) Message(m *model.Message) string {
	body := escape(m.Content)
	if m.Role == model.RoleAssistant && m.IsComplete() {
		body = r.markdown(m.Content)
	}
	return r.exec("message", messageData{
		ID:       MessageTarget(m.ID),
		Role:     m.Role,
		RoleName: m.Role.DisplayName(),
		Status:   m.Status,
		Content:  contentData{ID: ContentTarget(m.ID), Body: body},
		Tokens:   m.TotalTokens(),
		Model:    m.ModelID,
	})
}

// Typing renders the typing indicator, visible or hidden.
func (r *Renderer) Typing(visible bool) string {
	return r.exec("typing", visible)
}

// SidebarItem renders a conversation entry for the sidebar list.
func (r *Renderer) SidebarItem(conversationID, title string) string {
	return r.exec("sidebar-item", sidebarData{
		ID:             SidebarItemTarget(conversationID),
		ConversationID: conversationID,
		Title:          title,
	})
}

func (r *Renderer) exec(name string, data any) string {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		log.Printf("RENDER_FAILED | fragment=%s error=%v", name, err)
		return ""
	}
	return buf.String()
}

// Markdown renders text as sanitized markdown HTML.
func (r *Renderer) Markdown(text string) template.HTML {
	return r.markdown(text)
}

func (r *Renderer) markdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		log.Printf("RENDER_MARKDOWN_FAILED | error=%v", err)
		return escape(text)
	}
	return template.HTML(strings.TrimSpace(buf.String()))
}

func escape(text string) template.HTML {
	return template.HTML(template.HTMLEscapeString(text))
}
