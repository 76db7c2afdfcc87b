// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/jeranaias/rigrun-chat/internal/model"
	"github.com/jeranaias/rigrun-chat/internal/render"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports a standalone HTML page with embedded CSS. Assistant
// replies are rendered as markdown, user messages as escaped text.
type HTMLExporter struct {
	options  *Options
	renderer *render.Renderer
	tmpl     *template.Template
}

// NewHTMLExporter creates an HTML exporter.
func NewHTMLExporter(opts *Options, r *render.Renderer) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Theme != "light" {
		opts.Theme = "dark"
	}
	return &HTMLExporter{
		options:  opts,
		renderer: r,
		tmpl:     template.Must(template.New("page").Parse(pageTemplate)),
	}
}

type htmlMessage struct {
	RoleClass string
	RoleLabel string
	Timestamp string
	Body      template.HTML
	Stats     string
}

type htmlPage struct {
	Title      string
	Date       string
	Created    string
	Theme      string
	Metadata   bool
	Count      int
	Tokens     int
	Messages   []htmlMessage
	ExportedAt string
}

// Export renders t as an HTML document.
func (e *HTMLExporter) Export(t *Transcript) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	page := htmlPage{
		Title:      t.Title,
		Date:       t.Conversation.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		Created:    formatTimestamp(t.Conversation.CreatedAt),
		Theme:      e.options.Theme,
		Metadata:   e.options.IncludeMetadata,
		Count:      len(t.Messages),
		Tokens:     t.TotalTokens(),
		Messages:   make([]htmlMessage, 0, len(t.Messages)),
		ExportedAt: e.options.now().Format("January 2, 2006 at 3:04 PM"),
	}
	for _, m := range t.Messages {
		page.Messages = append(page.Messages, e.message(m))
	}

	var buf bytes.Buffer
	if err := e.tmpl.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *HTMLExporter) message(m *model.Message) htmlMessage {
	msg := htmlMessage{
		RoleClass: string(m.Role),
		RoleLabel: m.Role.DisplayName(),
		Body:      template.HTML(template.HTMLEscapeString(m.Content)),
	}
	if e.options.IncludeTimestamps {
		msg.Timestamp = formatShortTimestamp(m.CreatedAt)
	}
	if m.Role == model.RoleAssistant {
		msg.Body = e.renderer.Markdown(m.Content)
		if e.options.IncludeMetadata {
			msg.Stats = messageStats(m)
		}
	}
	return msg
}

// FileExtension returns ".html".
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the HTML MIME type.
func (e *HTMLExporter) MimeType() string {
	return "text/html; charset=utf-8"
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <meta name="generator" content="rigchat">
    <meta name="date" content="{{.Date}}">
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        :root {
            --font-sans: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Arial, sans-serif;
            --font-mono: "SF Mono", Monaco, "Fira Code", monospace;
        }
        .dark-theme {
            --bg-primary: #1a1b26; --bg-secondary: #24283b; --bg-tertiary: #414868;
            --text-primary: #c0caf5; --text-muted: #565f89;
            --user-bg: #1f2335; --assistant-bg: #24283b; --code-bg: #1a1b26;
            --accent: #7aa2f7;
        }
        .light-theme {
            --bg-primary: #ffffff; --bg-secondary: #f7f8fa; --bg-tertiary: #e1e4e8;
            --text-primary: #24292e; --text-muted: #6a737d;
            --user-bg: #f6f8fa; --assistant-bg: #ffffff; --code-bg: #f6f8fa;
            --accent: #0366d6;
        }
        body { font-family: var(--font-sans); line-height: 1.6; color: var(--text-primary); background: var(--bg-primary); padding: 20px; }
        .container { max-width: 900px; margin: 0 auto; background: var(--bg-secondary); border-radius: 12px; overflow: hidden; }
        .header { padding: 32px; background: var(--bg-tertiary); }
        .header h1 { font-size: 28px; margin-bottom: 12px; }
        .metadata { display: flex; flex-wrap: wrap; gap: 16px; font-size: 14px; color: var(--text-muted); }
        .conversation { padding: 24px; }
        .message { padding: 16px 20px; margin-bottom: 16px; border-radius: 8px; }
        .user-message { background: var(--user-bg); border-left: 3px solid var(--accent); }
        .assistant-message { background: var(--assistant-bg); }
        .message-header { display: flex; justify-content: space-between; margin-bottom: 8px; font-weight: 600; }
        .timestamp, .message-stats, .footer { font-size: 12px; color: var(--text-muted); }
        .message-content pre { background: var(--code-bg); padding: 12px; border-radius: 6px; overflow-x: auto; font-family: var(--font-mono); }
        .message-content code { font-family: var(--font-mono); }
        .user-message .message-content { white-space: pre-wrap; }
        .footer { padding: 16px 32px; text-align: center; }
    </style>
</head>
<body class="{{.Theme}}-theme">
    <div class="container">
{{- if .Metadata}}
        <header class="header">
            <h1>{{.Title}}</h1>
            <div class="metadata">
                <span><strong>Created:</strong> {{.Created}}</span>
                <span><strong>Messages:</strong> {{.Count}}</span>
{{- if .Tokens}}
                <span><strong>Tokens:</strong> {{.Tokens}}</span>
{{- end}}
            </div>
        </header>
{{- end}}
        <main class="conversation">
{{- range .Messages}}
            <div class="message {{.RoleClass}}-message">
                <div class="message-header">
                    <span class="role-label">{{.RoleLabel}}</span>
{{- if .Timestamp}}
                    <span class="timestamp">{{.Timestamp}}</span>
{{- end}}
                </div>
                <div class="message-content">{{.Body}}</div>
{{- if .Stats}}
                <div class="message-stats">{{.Stats}}</div>
{{- end}}
            </div>
{{- end}}
        </main>
        <footer class="footer">Exported from <strong>rigchat</strong> on {{.ExportedAt}}</footer>
    </div>
</body>
</html>
`
