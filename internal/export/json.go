// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/jeranaias/rigrun-chat/internal/model"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports the full transcript. Options other than Now are
// ignored so the output always carries every stored field.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

type jsonTranscript struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	ExportedAt  time.Time        `json:"exported_at"`
	TotalTokens int              `json:"total_tokens"`
	Messages    []*model.Message `json:"messages"`
}

// Export renders t as indented JSON.
func (e *JSONExporter) Export(t *Transcript) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	return json.MarshalIndent(jsonTranscript{
		ID:          t.Conversation.ID,
		Title:       t.Title,
		CreatedAt:   t.Conversation.CreatedAt,
		UpdatedAt:   t.Conversation.UpdatedAt,
		ExportedAt:  e.options.now(),
		TotalTokens: t.TotalTokens(),
		Messages:    t.Messages,
	}, "", "  ")
}

// FileExtension returns ".json".
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the JSON MIME type.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
