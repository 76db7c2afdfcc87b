// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/rigrun-chat/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports transcripts as Markdown with YAML frontmatter.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

type frontmatter struct {
	Title     string `yaml:"title"`
	ID        string `yaml:"id"`
	Date      string `yaml:"date"`
	Updated   string `yaml:"updated"`
	Messages  int    `yaml:"messages"`
	Tokens    int    `yaml:"tokens,omitempty"`
	Exported  string `yaml:"exported"`
	Generator string `yaml:"generator"`
}

// Export renders t as Markdown.
func (e *MarkdownExporter) Export(t *Transcript) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	conv := t.Conversation

	var sb strings.Builder

	if e.options.IncludeMetadata {
		fm, err := yaml.Marshal(frontmatter{
			Title:     t.Title,
			ID:        conv.ID,
			Date:      conv.CreatedAt.Format(time.RFC3339),
			Updated:   conv.UpdatedAt.Format(time.RFC3339),
			Messages:  len(t.Messages),
			Tokens:    t.TotalTokens(),
			Exported:  e.options.now().Format(time.RFC3339),
			Generator: "rigchat",
		})
		if err != nil {
			return nil, fmt.Errorf("encode frontmatter: %w", err)
		}
		sb.WriteString("---\n")
		sb.Write(fm)
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(t.Title))

	for i, msg := range t.Messages {
		label := msg.Role.DisplayName()
		if e.options.IncludeTimestamps {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(msg.CreatedAt))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}

		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")

		if msg.Role == model.RoleAssistant && e.options.IncludeMetadata {
			if stats := messageStats(msg); stats != "" {
				fmt.Fprintf(&sb, "<sub>%s</sub>\n\n", stats)
			}
		}

		if i < len(t.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	fmt.Fprintf(&sb, "\n---\n\n*Exported from rigchat on %s*\n",
		e.options.now().Format("January 2, 2006 at 3:04 PM"))

	return []byte(sb.String()), nil
}

// FileExtension returns ".md".
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the Markdown MIME type.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown; charset=utf-8"
}

// escapeMarkdown escapes characters that would break formatting in headings.
func escapeMarkdown(s string) string {
	return strings.NewReplacer(
		"#", `\#`,
		"*", `\*`,
		"_", `\_`,
		"[", `\[`,
		"]", `\]`,
	).Replace(s)
}
