// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders conversation transcripts for download.
//
// # Key Types
//
//   - Transcript: a conversation, its display title and its complete messages
//   - Exporter: the interface every format implements
//   - Options: metadata, timestamps and HTML theme
//
// # Supported Formats
//
//   - md: Markdown with YAML frontmatter
//   - json: every stored field, for re-import or archiving
//   - html: a standalone page with replies rendered as markdown
//
// # Usage
//
//	exp, err := export.ForFormat("md", export.DefaultOptions(), renderer)
//	if err != nil {
//	    return err
//	}
//	data, err := exp.Export(export.NewTranscript(conv, title, msgs))
package export
