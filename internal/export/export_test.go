// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/rigrun-chat/internal/model"
	"github.com/jeranaias/rigrun-chat/internal/render"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testOptions() *Options {
	opts := DefaultOptions()
	opts.Now = func() time.Time { return fixedNow }
	return opts
}

func testTranscript() *Transcript {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	conv := &model.Conversation{ID: "c1", UserID: "u1", Title: "Go: tips & *tricks*", CreatedAt: created, UpdatedAt: created}
	msgs := []*model.Message{
		{ID: "m1", ConversationID: "c1", Role: model.RoleUser, Content: "<b>hi</b>", Status: model.StatusComplete, CreatedAt: created},
		{ID: "m2", ConversationID: "c1", Role: model.RoleAssistant, Content: "Use **gofmt**.", Status: model.StatusComplete,
			ReplyTo: "m1", InputTokens: 12, OutputTokens: 4, ModelID: "gpt-5", CreatedAt: created.Add(time.Second)},
		{ID: "m3", ConversationID: "c1", Role: model.RoleAssistant, Content: "partial", Status: model.StatusStreaming, CreatedAt: created},
	}
	return NewTranscript(conv, conv.Title, msgs)
}

func TestNewTranscriptSkipsStreaming(t *testing.T) {
	tr := testTranscript()
	require.Len(t, tr.Messages, 2)
	assert.Equal(t, 16, tr.TotalTokens())
}

func TestForFormat(t *testing.T) {
	tests := []struct {
		format string
		ext    string
	}{
		{"", ".md"},
		{"md", ".md"},
		{"Markdown", ".md"},
		{"json", ".json"},
		{"html", ".html"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			e, err := ForFormat(tt.format, nil, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.ext, e.FileExtension())
		})
	}

	_, err := ForFormat("pdf", nil, nil)
	assert.True(t, errors.Is(err, ErrUnknownFormat))
}

func TestMarkdownExport(t *testing.T) {
	data, err := NewMarkdownExporter(testOptions()).Export(testTranscript())
	require.NoError(t, err)
	out := string(data)

	require.True(t, strings.HasPrefix(out, "---\n"))
	end := strings.Index(out[4:], "---\n")
	require.Greater(t, end, 0)

	var fm frontmatter
	require.NoError(t, yaml.Unmarshal([]byte(out[4:4+end]), &fm))
	assert.Equal(t, "Go: tips & *tricks*", fm.Title)
	assert.Equal(t, 2, fm.Messages)
	assert.Equal(t, 16, fm.Tokens)
	assert.Equal(t, "rigchat", fm.Generator)

	assert.Contains(t, out, `# Go: tips & \*tricks\*`)
	assert.Contains(t, out, "### You <sub>10:00:00</sub>")
	assert.Contains(t, out, "Use **gofmt**.")
	assert.Contains(t, out, "Model: gpt-5 | Input: 12 | Output: 4")
	assert.NotContains(t, out, "partial")
	assert.Contains(t, out, "March 1, 2025 at 12:00 PM")
}

func TestMarkdownExportWithoutMetadata(t *testing.T) {
	opts := testOptions()
	opts.IncludeMetadata = false
	opts.IncludeTimestamps = false

	data, err := NewMarkdownExporter(opts).Export(testTranscript())
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.HasPrefix(out, "# "))
	assert.Contains(t, out, "### Assistant\n")
	assert.NotContains(t, out, "Input: 12")
}

func TestJSONExport(t *testing.T) {
	data, err := NewJSONExporter(testOptions()).Export(testTranscript())
	require.NoError(t, err)

	var got struct {
		ID          string           `json:"id"`
		Title       string           `json:"title"`
		ExportedAt  time.Time        `json:"exported_at"`
		TotalTokens int              `json:"total_tokens"`
		Messages    []*model.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "c1", got.ID)
	assert.True(t, got.ExportedAt.Equal(fixedNow))
	assert.Equal(t, 16, got.TotalTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "m1", got.Messages[1].ReplyTo)
}

func TestHTMLExport(t *testing.T) {
	data, err := NewHTMLExporter(testOptions(), render.New()).Export(testTranscript())
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `<body class="dark-theme">`)
	assert.Contains(t, out, "&lt;b&gt;hi&lt;/b&gt;", "user content must be escaped")
	assert.NotContains(t, out, "<b>hi</b>")
	assert.Contains(t, out, "<strong>gofmt</strong>", "assistant content is markdown")
	assert.Contains(t, out, "<title>Go: tips &amp; *tricks*</title>")
}

func TestHTMLExportTheme(t *testing.T) {
	opts := testOptions()
	opts.Theme = "light"
	data, err := NewHTMLExporter(opts, render.New()).Export(testTranscript())
	require.NoError(t, err)
	assert.Contains(t, string(data), `<body class="light-theme">`)

	opts = testOptions()
	opts.Theme = "neon"
	data, err = NewHTMLExporter(opts, render.New()).Export(testTranscript())
	require.NoError(t, err)
	assert.Contains(t, string(data), `<body class="dark-theme">`)
}

func TestExportRejectsInvalidTranscript(t *testing.T) {
	for _, e := range []Exporter{
		NewMarkdownExporter(nil),
		NewJSONExporter(nil),
		NewHTMLExporter(nil, render.New()),
	} {
		_, err := e.Export(nil)
		assert.Error(t, err)
		_, err = e.Export(&Transcript{Conversation: &model.Conversation{ID: "x"}})
		assert.Error(t, err)
	}
}

func TestFilename(t *testing.T) {
	tr := testTranscript()
	e, err := ForFormat("md", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Go-_tips_&_-tricks-.md", Filename(tr, e))

	tr.Title = "  "
	assert.Equal(t, "conversation.md", Filename(tr, e))

	tr.Title = strings.Repeat("x", 80)
	assert.Equal(t, strings.Repeat("x", 50)+".md", Filename(tr, e))
}
