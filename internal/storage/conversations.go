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
	"github.com/jeranaias/rigrun-chat/internal/util"
)

const (
	// DefaultTitle is shown for conversations with no title and no messages.
	DefaultTitle = "New Chat"

	// TitleMaxRunes bounds derived titles and previews, ellipsis included.
	TitleMaxRunes = 50
)

// ConversationSummary is a conversation with its resolved display title,
// as shown in a conversation list.
type ConversationSummary struct {
	model.Conversation
	DisplayTitle string `json:"display_title"`
}

const conversationColumns = `id, user_id, COALESCE(title, ''), created_at, updated_at`

func scanConversation(row rowScanner) (*model.Conversation, error) {
	var c model.Conversation
	var created, updated int64
	if err := row.Scan(&c.ID, &c.UserID, &c.Title, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = fromStamp(created)
	c.UpdatedAt = fromStamp(updated)
	return &c, nil
}

// =============================================================================
// CONVERSATION OPERATIONS
// =============================================================================

// CreateConversation creates a conversation owned by userID. title may be
// empty, in which case it is derived later from the first user message.
func (s *Store) CreateConversation(ctx context.Context, userID, title string) (*model.Conversation, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	now := s.stamp()
	conv := &model.Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     util.Preview(title, TitleMaxRunes),
		CreatedAt: fromStamp(now),
		UpdatedAt: fromStamp(now),
	}

	var titleArg any
	if conv.Title != "" {
		titleArg = conv.Title
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		conv.ID, conv.UserID, titleArg, now, now)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	log.Printf("CONVERSATION_CREATED | id=%s user=%s", conv.ID, conv.UserID)

	if s.notifier != nil {
		s.notifier.ConversationCreated(conv, DisplayTitleFrom(conv.Title, ""))
	}
	return conv, nil
}

// GetConversation returns the conversation with the given id.
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// GetConversationForUser returns the conversation only if userID owns it.
// A conversation owned by someone else is reported as ErrNotFound.
func (s *Store) GetConversationForUser(ctx context.Context, id, userID string) (*model.Conversation, error) {
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.OwnedBy(userID) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return conv, nil
}

// ListConversations returns the user's conversations, most recently active
// first, with display titles resolved.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.user_id, COALESCE(c.title, ''), c.created_at, c.updated_at,
		       COALESCE((SELECT m.content FROM messages m
		                 WHERE m.conversation_id = c.id AND m.role = 'user'
		                 ORDER BY m.seq LIMIT 1), '')
		FROM conversations c
		WHERE c.user_id = ?
		ORDER BY c.updated_at DESC, c.rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	result := make([]ConversationSummary, 0)
	for rows.Next() {
		var c model.Conversation
		var created, updated int64
		var first string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &created, &updated, &first); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		c.CreatedAt = fromStamp(created)
		c.UpdatedAt = fromStamp(updated)
		result = append(result, ConversationSummary{Conversation: c, DisplayTitle: DisplayTitleFrom(c.Title, first)})
	}
	return result, rows.Err()
}

// DeleteConversation removes a conversation and, by cascade, its messages.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}

	log.Printf("CONVERSATION_DELETED | id=%s user=%s", conv.ID, conv.UserID)

	if s.notifier != nil {
		s.notifier.ConversationDeleted(conv)
	}
	return nil
}

// =============================================================================
// TITLES
// =============================================================================

// DisplayTitleFrom resolves a display title from an explicit title and the
// content of the first user message: the title if set, else a preview of
// that message, else DefaultTitle.
func DisplayTitleFrom(title, firstMessage string) string {
	if title != "" {
		return title
	}
	if preview := util.Preview(firstMessage, TitleMaxRunes); preview != "" {
		return preview
	}
	return DefaultTitle
}

// DisplayTitle returns the title to show for conv.
func (s *Store) DisplayTitle(ctx context.Context, conv *model.Conversation) (string, error) {
	if conv.HasTitle() {
		return conv.Title, nil
	}

	var first string
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM messages WHERE conversation_id = ? AND role = 'user' ORDER BY seq LIMIT 1`, conv.ID).Scan(&first)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("first message: %w", err)
	}
	return DisplayTitleFrom("", first), nil
}

// DeriveTitleFromFirstMessage sets conv's title from msg when msg is a user
// message and conv has no title yet. The title is written at most once, even
// under concurrent callers; conv.Title is refreshed to the stored value.
// Reports whether this call set the title.
func (s *Store) DeriveTitleFromFirstMessage(ctx context.Context, conv *model.Conversation, msg *model.Message) (bool, error) {
	if msg == nil || msg.Role != model.RoleUser || conv.HasTitle() {
		return false, nil
	}

	title := util.Preview(msg.Content, TitleMaxRunes)
	if title == "" {
		return false, nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ? WHERE id = ? AND (title IS NULL OR title = '')`,
		title, conv.ID)
	if err != nil {
		return false, fmt.Errorf("derive title: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("derive title: %w", err)
	}
	if n == 0 {
		current, err := s.GetConversation(ctx, conv.ID)
		if err != nil {
			return false, err
		}
		conv.Title = current.Title
		return false, nil
	}

	conv.Title = title
	log.Printf("CONVERSATION_TITLED | id=%s", conv.ID)

	if s.notifier != nil {
		s.notifier.ConversationRenamed(conv, title)
	}
	return true, nil
}
