// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
)

// maxLineBytes bounds a single NDJSON line.
const maxLineBytes = 1 << 20

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader parses Ollama's newline-delimited JSON stream.
type StreamReader struct {
	scanner *bufio.Scanner
	model   string
}

// NewStreamReader creates a new stream reader from an io.Reader.
func NewStreamReader(r io.Reader) *StreamReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &StreamReader{scanner: sc}
}

type streamLine struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Process reads the stream and calls the callback for each chunk until the
// final chunk, the end of input, a callback error, or ctx cancellation.
func (s *StreamReader) Process(ctx context.Context, callback StreamCallback) error {
	for s.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return &ClientError{Type: ErrTypeTimeout, Message: "stream canceled", Cause: err}
		}

		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp streamLine
		if err := json.Unmarshal(line, &resp); err != nil {
			// Skip malformed lines
			continue
		}
		if resp.Error != "" {
			return &ClientError{Type: ErrTypeInvalidResponse, Message: resp.Error}
		}

		if resp.Model != "" {
			s.model = resp.Model
		}

		chunk := StreamChunk{
			Content:    resp.Message.Content,
			Done:       resp.Done,
			DoneReason: resp.DoneReason,
			Model:      s.model,
		}
		if resp.Done {
			chunk.PromptTokens = resp.PromptEvalCount
			chunk.CompletionTokens = resp.EvalCount
		}

		if err := callback(chunk); err != nil {
			return err
		}
		if resp.Done {
			return nil
		}
	}

	if err := s.scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &ClientError{Type: ErrTypeTimeout, Message: "stream canceled", Cause: ctxErr}
		}
		if errors.Is(err, bufio.ErrTooLong) {
			return &ClientError{Type: ErrTypeInvalidResponse, Message: "stream line too long", Cause: err}
		}
		return &ClientError{Type: ErrTypeConnection, Message: "stream interrupted", Cause: err}
	}
	if err := ctx.Err(); err != nil {
		return &ClientError{Type: ErrTypeTimeout, Message: "stream canceled", Cause: err}
	}
	return nil
}
