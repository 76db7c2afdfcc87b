// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-chat/internal/model"
)

type recordingNotifier struct {
	mu      sync.Mutex
	created []string
	renamed []string
	deleted []string
}

func (r *recordingNotifier) ConversationCreated(conv *model.Conversation, title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, conv.ID+":"+title)
}

func (r *recordingNotifier) ConversationRenamed(conv *model.Conversation, title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renamed = append(r.renamed, conv.ID+":"+title)
}

func (r *recordingNotifier) ConversationDeleted(conv *model.Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, conv.ID)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Millisecond)
		return clock
	}
	return s
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestCreateAndGetConversation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx, "user-1", "")
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
	assert.False(t, conv.HasTitle())

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "", got.Title)
}

func TestCreateConversationRequiresUser(t *testing.T) {
	_, err := newTestStore(t).CreateConversation(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetConversationNotFound(t *testing.T) {
	_, err := newTestStore(t).GetConversation(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetConversationForUserHidesOtherOwners(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx, "alice", "")
	require.NoError(t, err)

	_, err = s.GetConversationForUser(ctx, conv.ID, "alice")
	require.NoError(t, err)

	_, err = s.GetConversationForUser(ctx, conv.ID, "mallory")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListConversationsRecentFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	older, err := s.CreateConversation(ctx, "u", "")
	require.NoError(t, err)
	newer, err := s.CreateConversation(ctx, "u", "")
	require.NoError(t, err)
	_, err = s.CreateConversation(ctx, "someone-else", "")
	require.NoError(t, err)

	// Activity on the older conversation moves it to the top.
	_, err = s.CreateMessage(ctx, older.ID, model.RoleUser, "bump")
	require.NoError(t, err)

	list, err := s.ListConversations(ctx, "u")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, older.ID, list[0].ID)
	assert.Equal(t, "bump", list[0].DisplayTitle)
	assert.Equal(t, newer.ID, list[1].ID)
	assert.Equal(t, DefaultTitle, list[1].DisplayTitle)
}

func TestDeleteConversationCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx, "u", "")
	require.NoError(t, err)
	msg, err := s.CreateMessage(ctx, conv.ID, model.RoleUser, "hi")
	require.NoError(t, err)
	reply, err := s.CreateReply(ctx, conv.ID, msg.ID, "hello")
	require.NoError(t, err)

	require.NoError(t, s.DeleteConversation(ctx, conv.ID))

	_, err = s.GetConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetMessage(ctx, reply.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.DeleteConversation(ctx, conv.ID), ErrNotFound)
}

func TestSidebarNotifications(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	s := newTestStore(t).WithNotifier(n)

	conv, err := s.CreateConversation(ctx, "u", "")
	require.NoError(t, err)
	msg, err := s.CreateMessage(ctx, conv.ID, model.RoleUser, "Plan a trip")
	require.NoError(t, err)
	_, err = s.DeriveTitleFromFirstMessage(ctx, conv, msg)
	require.NoError(t, err)
	require.NoError(t, s.DeleteConversation(ctx, conv.ID))

	assert.Equal(t, []string{conv.ID + ":" + DefaultTitle}, n.created)
	assert.Equal(t, []string{conv.ID + ":Plan a trip"}, n.renamed)
	assert.Equal(t, []string{conv.ID}, n.deleted)
}

// =============================================================================
// TITLE TESTS
// =============================================================================

func TestDisplayTitle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx, "u", "")
	require.NoError(t, err)

	title, err := s.DisplayTitle(ctx, conv)
	require.NoError(t, err)
	assert.Equal(t, "New Chat", title)

	long := strings.Repeat("x", 80)
	_, err = s.CreateMessage(ctx, conv.ID, model.RoleUser, long)
	require.NoError(t, err)

	title, err = s.DisplayTitle(ctx, conv)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 47)+"...", title)
	assert.Len(t, []rune(title), 50)

	conv.Title = "Explicit"
	title, err = s.DisplayTitle(ctx, conv)
	require.NoError(t, err)
	assert.Equal(t, "Explicit", title)
}

func TestDisplayTitleIgnoresAssistantMessages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx, "u", "")
	require.NoError(t, err)
	_, err = s.CreateReply(ctx, conv.ID, "", "Sorry, I encountered an error: boom")
	require.NoError(t, err)

	title, err := s.DisplayTitle(ctx, conv)
	require.NoError(t, err)
	assert.Equal(t, "New Chat", title)

	list, err := s.ListConversations(ctx, "u")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "New Chat", list[0].DisplayTitle)

	_, err = s.CreateMessage(ctx, conv.ID, model.RoleUser, "Second turn")
	require.NoError(t, err)
	title, err = s.DisplayTitle(ctx, conv)
	require.NoError(t, err)
	assert.Equal(t, "Second turn", title)
}

func TestDisplayTitleFrom(t *testing.T) {
	assert.Equal(t, "T", DisplayTitleFrom("T", "first"))
	assert.Equal(t, "first line second", DisplayTitleFrom("", "first line\nsecond"))
	assert.Equal(t, DefaultTitle, DisplayTitleFrom("", ""))
	assert.Equal(t, DefaultTitle, DisplayTitleFrom("", " \n "))
}

func TestDeriveTitleFromFirstMessageOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx, "u", "")
	require.NoError(t, err)

	first, err := s.CreateMessage(ctx, conv.ID, model.RoleUser, "Hello")
	require.NoError(t, err)
	set, err := s.DeriveTitleFromFirstMessage(ctx, conv, first)
	require.NoError(t, err)
	assert.True(t, set)
	assert.Equal(t, "Hello", conv.Title)

	second, err := s.CreateMessage(ctx, conv.ID, model.RoleUser, "Something else")
	require.NoError(t, err)
	set, err = s.DeriveTitleFromFirstMessage(ctx, conv, second)
	require.NoError(t, err)
	assert.False(t, set)

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello", got.Title)
}

func TestDeriveTitleIgnoresAssistantMessages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx, "u", "")
	require.NoError(t, err)
	reply, err := s.CreateReply(ctx, conv.ID, "", "I am the assistant")
	require.NoError(t, err)

	set, err := s.DeriveTitleFromFirstMessage(ctx, conv, reply)
	require.NoError(t, err)
	assert.False(t, set)
	assert.False(t, conv.HasTitle())
}

func TestDeriveTitleStaleCopyKeepsStoredTitle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx, "u", "")
	require.NoError(t, err)
	stale := *conv

	msg1, err := s.CreateMessage(ctx, conv.ID, model.RoleUser, "First")
	require.NoError(t, err)
	_, err = s.DeriveTitleFromFirstMessage(ctx, conv, msg1)
	require.NoError(t, err)

	msg2, err := s.CreateMessage(ctx, conv.ID, model.RoleUser, "Second")
	require.NoError(t, err)
	set, err := s.DeriveTitleFromFirstMessage(ctx, &stale, msg2)
	require.NoError(t, err)
	assert.False(t, set)
	assert.Equal(t, "First", stale.Title)
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessagesOrdered(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx, "u", "")
	require.NoError(t, err)

	for _, content := range []string{"one", "two", "three"} {
		_, err := s.CreateMessage(ctx, conv.ID, model.RoleUser, content)
		require.NoError(t, err)
	}

	msgs, err := s.Messages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "two", msgs[1].Content)
	assert.Equal(t, "three", msgs[2].Content)
}

func TestCreateMessageUnknownConversation(t *testing.T) {
	_, err := newTestStore(t).CreateMessage(context.Background(), "missing", model.RoleUser, "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateMessageRejectsUnknownRole(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	conv, err := s.CreateConversation(ctx, "u", "")
	require.NoError(t, err)

	_, err = s.CreateMessage(ctx, conv.ID, model.Role("system"), "x")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestReplyLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx, "u", "")
	require.NoError(t, err)
	trigger, err := s.CreateMessage(ctx, conv.ID, model.RoleUser, "Hello")
	require.NoError(t, err)

	reply, err := s.StartReply(ctx, conv.ID, trigger.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusStreaming, reply.Status)

	require.NoError(t, s.UpdateMessageContent(ctx, reply.ID, "Hi"))
	require.NoError(t, s.CompleteMessage(ctx, reply.ID, "Hi there", model.Usage{InputTokens: 3, OutputTokens: 2, Model: "m"}))

	got, err := s.GetMessage(ctx, reply.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hi there", got.Content)
	assert.Equal(t, model.StatusComplete, got.Status)
	assert.Equal(t, 5, got.TotalTokens())
	assert.Equal(t, "m", got.ModelID)
	assert.Equal(t, trigger.ID, got.ReplyTo)

	assert.ErrorIs(t, s.UpdateMessageContent(ctx, reply.ID, "changed"), ErrImmutable)
	assert.ErrorIs(t, s.UpdateMessageContent(ctx, trigger.ID, "changed"), ErrImmutable)
	assert.ErrorIs(t, s.UpdateMessageContent(ctx, "missing", "changed"), ErrNotFound)

	found, err := s.FindReply(ctx, trigger.ID)
	require.NoError(t, err)
	assert.Equal(t, reply.ID, found.ID)

	_, err = s.StartReply(ctx, conv.ID, trigger.ID)
	assert.ErrorIs(t, err, ErrDuplicateReply)
}

func TestDeleteMessage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx, "u", "")
	require.NoError(t, err)
	answered, err := s.CreateMessage(ctx, conv.ID, model.RoleUser, "one")
	require.NoError(t, err)
	_, err = s.CreateReply(ctx, conv.ID, answered.ID, "reply")
	require.NoError(t, err)
	pending, err := s.CreateMessage(ctx, conv.ID, model.RoleUser, "two")
	require.NoError(t, err)

	require.NoError(t, s.DeleteMessage(ctx, pending.ID))
	assert.ErrorIs(t, s.DeleteMessage(ctx, pending.ID), ErrNotFound)
	assert.ErrorIs(t, s.DeleteMessage(ctx, answered.ID), ErrImmutable)

	msgs, err := s.Messages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestFinishStreamingReplies(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx, "u", "")
	require.NoError(t, err)
	trigger, err := s.CreateMessage(ctx, conv.ID, model.RoleUser, "Hello")
	require.NoError(t, err)
	orphan, err := s.StartReply(ctx, conv.ID, trigger.ID)
	require.NoError(t, err)
	require.NoError(t, s.UpdateMessageContent(ctx, orphan.ID, "half an ans"))

	n, err := s.FinishStreamingReplies(ctx, "interrupted")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetMessage(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusComplete, got.Status)
	assert.Equal(t, "interrupted", got.Content)

	n, err = s.FinishStreamingReplies(ctx, "interrupted")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFindLastAssistantMessage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx, "u", "")
	require.NoError(t, err)

	_, err = s.FindLastAssistantMessage(ctx, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.CreateReply(ctx, conv.ID, "", "first")
	require.NoError(t, err)
	second, err := s.CreateReply(ctx, conv.ID, "", "second")
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, conv.ID, model.RoleUser, "later user message")
	require.NoError(t, err)

	last, err := s.FindLastAssistantMessage(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, last.ID)
}
