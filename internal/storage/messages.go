// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/jeranaias/rigrun-chat/internal/model"
)

const messageColumns = `id, conversation_id, role, content, status, COALESCE(reply_to, ''),
	input_tokens, output_tokens, model_id, created_at`

func scanMessage(row rowScanner) (*model.Message, error) {
	var m model.Message
	var role, status string
	var created int64
	err := row.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &status, &m.ReplyTo,
		&m.InputTokens, &m.OutputTokens, &m.ModelID, &created)
	if err != nil {
		return nil, err
	}
	m.Role = model.Role(role)
	m.Status = model.Status(status)
	m.CreatedAt = fromStamp(created)
	return &m, nil
}

// =============================================================================
// CREATE
// =============================================================================

// CreateMessage appends a complete message to the conversation.
func (s *Store) CreateMessage(ctx context.Context, conversationID string, role model.Role, content string) (*model.Message, error) {
	if _, err := model.ParseRole(string(role)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.insertMessage(ctx, &model.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Status:         model.StatusComplete,
	})
}

// StartReply creates an empty assistant message in streaming status that
// answers replyTo. replyTo may be empty. At most one reply exists per
// trigger message; a second one fails with ErrDuplicateReply.
func (s *Store) StartReply(ctx context.Context, conversationID, replyTo string) (*model.Message, error) {
	return s.insertMessage(ctx, &model.Message{
		ConversationID: conversationID,
		Role:           model.RoleAssistant,
		Status:         model.StatusStreaming,
		ReplyTo:        replyTo,
	})
}

// CreateReply creates a complete assistant message answering replyTo.
func (s *Store) CreateReply(ctx context.Context, conversationID, replyTo, content string) (*model.Message, error) {
	return s.insertMessage(ctx, &model.Message{
		ConversationID: conversationID,
		Role:           model.RoleAssistant,
		Content:        content,
		Status:         model.StatusComplete,
		ReplyTo:        replyTo,
	})
}

func (s *Store) insertMessage(ctx context.Context, m *model.Message) (*model.Message, error) {
	if m.ConversationID == "" {
		return nil, fmt.Errorf("%w: conversation id is required", ErrInvalidInput)
	}

	now := s.stamp()
	m.ID = uuid.New().String()
	m.CreatedAt = fromStamp(now)

	var replyTo any
	if m.ReplyTo != "" {
		replyTo = m.ReplyTo
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE conversations SET updated_at = ? WHERE id = ?`, now, m.ConversationID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("conversation %s: %w", m.ConversationID, ErrNotFound)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, role, content, status, reply_to, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.ConversationID, string(m.Role), m.Content, string(m.Status), replyTo, now)
		if isUniqueViolation(err) {
			return fmt.Errorf("reply to %s: %w", m.ReplyTo, ErrDuplicateReply)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateReply) {
			return nil, err
		}
		return nil, fmt.Errorf("create message: %w", err)
	}
	return m, nil
}

// =============================================================================
// UPDATE
// =============================================================================

// UpdateMessageContent replaces the content of a streaming assistant message.
// Returns ErrImmutable for user messages and completed replies.
func (s *Store) UpdateMessageContent(ctx context.Context, id, content string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET content = ?
		WHERE id = ? AND role = 'assistant' AND status = 'streaming'`, content, id)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return s.checkMutated(ctx, res, id)
}

// CompleteMessage writes the final content and usage of a streaming assistant
// message and marks it complete. After this the message is immutable.
func (s *Store) CompleteMessage(ctx context.Context, id, content string, usage model.Usage) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET content = ?, status = 'complete', input_tokens = ?, output_tokens = ?, model_id = ?
		WHERE id = ? AND role = 'assistant' AND status = 'streaming'`,
		content, usage.InputTokens, usage.OutputTokens, usage.Model, id)
	if err != nil {
		return fmt.Errorf("complete message: %w", err)
	}
	return s.checkMutated(ctx, res, id)
}

// FinishStreamingReplies completes every assistant message still in
// streaming status with content. It is meant for startup, when no run can be
// active: replies left streaming were orphaned by a crash. Returns the number
// of replies finished.
func (s *Store) FinishStreamingReplies(ctx context.Context, content string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET content = ?, status = 'complete'
		WHERE role = 'assistant' AND status = 'streaming'`, content)
	if err != nil {
		return 0, fmt.Errorf("finish streaming replies: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("REPLIES_RECOVERED | count=%d", n)
	}
	return int(n), nil
}

// =============================================================================
// DELETE
// =============================================================================

// DeleteMessage removes a user message that was never answered. Messages
// with a reply are kept so a conversation never loses an answered turn.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM messages
		WHERE id = ? AND NOT EXISTS (SELECT 1 FROM messages r WHERE r.reply_to = ?)`, id, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return s.checkMutated(ctx, res, id)
}

// checkMutated turns "no rows updated" into ErrNotFound or ErrImmutable.
func (s *Store) checkMutated(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetMessage(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("message %s: %w", id, ErrImmutable)
}

// =============================================================================
// QUERIES
// =============================================================================

// GetMessage loads a message by id. Used to reload a message after
// persistence so readers see every stored field.
func (s *Store) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	return s.queryOneMessage(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
}

// FindLastAssistantMessage returns the most recent assistant message of the
// conversation.
func (s *Store) FindLastAssistantMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	return s.queryOneMessage(ctx, `SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = ? AND role = 'assistant'
		ORDER BY seq DESC LIMIT 1`, conversationID)
}

// FindReply returns the assistant message answering the given message.
func (s *Store) FindReply(ctx context.Context, replyTo string) (*model.Message, error) {
	return s.queryOneMessage(ctx, `SELECT `+messageColumns+` FROM messages WHERE reply_to = ?`, replyTo)
}

// Messages returns every message of the conversation in order.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]*model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = ? ORDER BY seq`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *Store) queryOneMessage(ctx context.Context, query string, args ...any) (*model.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}
