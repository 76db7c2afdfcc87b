// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/rigrun-chat/internal/model"
	"github.com/jeranaias/rigrun-chat/internal/render"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a transcript to one download format.
type Exporter interface {
	// Export renders the transcript.
	Export(t *Transcript) ([]byte, error)

	// FileExtension returns the file extension, e.g. ".md".
	FileExtension() string

	// MimeType returns the Content-Type of the exported document.
	MimeType() string
}

// Transcript is a conversation with its resolved title and the messages
// to export.
type Transcript struct {
	Conversation *model.Conversation
	Title        string
	Messages     []*model.Message
}

// ErrUnknownFormat is returned by ForFormat for an unsupported format.
var ErrUnknownFormat = errors.New("unknown export format")

// NewTranscript builds a transcript of the complete messages in msgs.
// Replies that are still streaming are left out.
func NewTranscript(conv *model.Conversation, title string, msgs []*model.Message) *Transcript {
	complete := make([]*model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.IsComplete() {
			complete = append(complete, m)
		}
	}
	return &Transcript{Conversation: conv, Title: title, Messages: complete}
}

// TotalTokens sums token usage over the transcript.
func (t *Transcript) TotalTokens() int {
	total := 0
	for _, m := range t.Messages {
		total += m.TotalTokens()
	}
	return total
}

func (t *Transcript) validate() error {
	if t == nil || t.Conversation == nil {
		return errors.New("conversation is nil")
	}
	if t.Conversation.CreatedAt.IsZero() {
		return errors.New("conversation has invalid creation timestamp")
	}
	return nil
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export output.
type Options struct {
	// IncludeMetadata adds a header with dates, counts and token usage.
	IncludeMetadata bool

	// IncludeTimestamps adds per-message timestamps.
	IncludeTimestamps bool

	// Theme for HTML export ("light" or "dark").
	Theme string

	// Now stamps the export; defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		Theme:             "dark",
		Now:               time.Now,
	}
}

func (o *Options) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// =============================================================================
// FORMAT SELECTION
// =============================================================================

// Formats lists the names accepted by ForFormat.
var Formats = []string{"md", "json", "html"}

// ForFormat returns the exporter for format ("md", "markdown", "json" or
// "html"). r renders markdown for HTML export and may be nil otherwise.
func ForFormat(format string, opts *Options, r *render.Renderer) (Exporter, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	switch strings.ToLower(format) {
	case "", "md", "markdown":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	case "html":
		if r == nil {
			r = render.New()
		}
		return NewHTMLExporter(opts, r), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Filename returns a download file name for t in e's format.
func Filename(t *Transcript, e Exporter) string {
	return sanitizeFilename(t.Title) + e.FileExtension()
}

// =============================================================================
// HELPERS
// =============================================================================

// sanitizeFilename replaces characters that are invalid in file names and
// bounds the length.
func sanitizeFilename(s string) string {
	const maxLen = 50
	runes := []rune(strings.TrimSpace(s))
	if len(runes) > maxLen {
		runes = runes[:maxLen]
	}

	result := make([]rune, 0, len(runes))
	for _, r := range runes {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			result = append(result, '-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			result = append(result, '_')
		case r < 32 || r == 127:
			result = append(result, '-')
		default:
			result = append(result, r)
		}
	}

	if len(result) == 0 {
		return "conversation"
	}
	return string(result)
}

func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}

// messageStats describes token usage of an assistant reply, or "".
func messageStats(m *model.Message) string {
	var parts []string
	if m.ModelID != "" {
		parts = append(parts, "Model: "+m.ModelID)
	}
	if m.InputTokens > 0 {
		parts = append(parts, fmt.Sprintf("Input: %d", m.InputTokens))
	}
	if m.OutputTokens > 0 {
		parts = append(parts, fmt.Sprintf("Output: %d", m.OutputTokens))
	}
	return strings.Join(parts, " | ")
}
