// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package completion runs one streamed model reply per user message.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/rigrun-chat/internal/broadcast"
	"github.com/jeranaias/rigrun-chat/internal/model"
	"github.com/jeranaias/rigrun-chat/internal/render"
	"github.com/jeranaias/rigrun-chat/internal/storage"
	"github.com/jeranaias/rigrun-chat/internal/typing"
)

// DefaultSaveInterval bounds how often partial content is written while a
// reply streams. Viewers get every chunk regardless.
const DefaultSaveInterval = 500 * time.Millisecond

// =============================================================================
// COLLABORATORS
// =============================================================================

// Model streams a completion for a conversation history. onChunk is called
// once per fragment, never concurrently, and an error it returns aborts the
// stream and is returned unchanged.
type Model interface {
	Name() string
	StreamComplete(ctx context.Context, history []*model.Message, onChunk func(model.StreamChunk) error) (model.Usage, error)
}

// Store is the persistence used by a run. *storage.Store implements it.
type Store interface {
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	DeriveTitleFromFirstMessage(ctx context.Context, conv *model.Conversation, msg *model.Message) (bool, error)
	Messages(ctx context.Context, conversationID string) ([]*model.Message, error)
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	FindReply(ctx context.Context, replyTo string) (*model.Message, error)
	StartReply(ctx context.Context, conversationID, replyTo string) (*model.Message, error)
	CreateReply(ctx context.Context, conversationID, replyTo, content string) (*model.Message, error)
	UpdateMessageContent(ctx context.Context, id, content string) error
	CompleteMessage(ctx context.Context, id, content string, usage model.Usage) error
}

var _ Store = (*storage.Store)(nil)

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator drives reply runs: it calls the model, relays chunks to
// viewers, persists the reply and cleans up on every exit path.
type Orchestrator struct {
	store        Store
	model        Model
	b            broadcast.Broadcaster
	typing       *typing.Controller
	r            *render.Renderer
	saveInterval time.Duration
	usage        UsageRecorder
}

// UsageRecorder receives the outcome of every run that called the model.
type UsageRecorder interface {
	RecordRun(provider string, usage model.Usage, d time.Duration, err error)
}

// New creates an orchestrator.
func New(store Store, m Model, b broadcast.Broadcaster, tc *typing.Controller, r *render.Renderer) *Orchestrator {
	return &Orchestrator{
		store:        store,
		model:        m,
		b:            b,
		typing:       tc,
		r:            r,
		saveInterval: DefaultSaveInterval,
	}
}

// WithSaveInterval sets how often partial content is persisted while
// streaming. Zero persists every chunk.
func (o *Orchestrator) WithSaveInterval(d time.Duration) *Orchestrator {
	o.saveInterval = d
	return o
}

// WithUsageRecorder reports token usage of each run to rec.
func (o *Orchestrator) WithUsageRecorder(rec UsageRecorder) *Orchestrator {
	o.usage = rec
	return o
}

// Run produces the assistant reply to triggerID in conversationID. It
// returns an ErrNotFound error if the conversation does not exist and a
// *PersistenceError if the reply could not be stored. Model failures are
// shown in the conversation as an error notice and Run returns nil.
//
// Each run broadcasts at most one append, then updates, then exactly one
// replace of the finished message, except when persistence fails.
func (o *Orchestrator) Run(ctx context.Context, conversationID, triggerID string) error {
	conv, err := o.store.GetConversation(ctx, conversationID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Printf("COMPLETION_NOT_FOUND | conversation=%s", conversationID)
		return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	if err != nil {
		return o.persistFailed(conversationID, &PersistenceError{Op: "load conversation", Err: err})
	}

	trigger, reply, err := o.resolveTrigger(ctx, conv, triggerID)
	if err != nil {
		return o.persistFailed(conversationID, err)
	}
	if reply != nil && reply.IsComplete() {
		log.Printf("COMPLETION_SKIPPED | conversation=%s trigger=%s reply=%s reason=already_answered",
			conversationID, triggerID, reply.ID)
		return nil
	}

	indicator := o.typing.Begin(conversationID)
	defer indicator.Release()
	indicator.Show()

	run := &run{
		o:         o,
		ctx:       ctx,
		conv:      conv,
		replyTo:   triggerID,
		indicator: indicator,
		message:   reply,
		resumed:   reply != nil,
		saver:     newSaver(o.saveInterval),
	}
	if trigger == nil {
		run.replyTo = ""
	}

	start := time.Now()
	log.Printf("COMPLETION_START | conversation=%s trigger=%s provider=%s resumed=%t",
		conversationID, triggerID, o.model.Name(), run.resumed)

	if run.resumed {
		if err := o.store.UpdateMessageContent(ctx, reply.ID, ""); err != nil {
			return o.persistFailed(conversationID, &PersistenceError{Op: "reset reply", Err: err})
		}
		o.b.Update(run.stream(), render.ContentTarget(reply.ID), o.r.Content(""))
	}

	history, err := o.history(ctx, conversationID, triggerID)
	if err != nil {
		return o.persistFailed(conversationID, err)
	}

	usage, err := o.model.StreamComplete(ctx, history, run.onChunk)

	var perr *PersistenceError
	switch {
	case errors.As(err, &perr):
		return o.persistFailed(conversationID, perr)
	case err != nil:
		err = &ModelCallError{Provider: o.model.Name(), Err: err}
	case run.acc.Len() == 0:
		err = &ModelCallError{Provider: o.model.Name(), Err: errEmptyResponse}
	}

	if o.usage != nil {
		o.usage.RecordRun(o.model.Name(), usage, time.Since(start), err)
	}

	if err != nil {
		log.Printf("COMPLETION_MODEL_ERROR | conversation=%s duration=%s error=%v",
			conversationID, time.Since(start).Round(time.Millisecond), err)
		if ferr := run.fail(err); ferr != nil {
			return o.persistFailed(conversationID, ferr)
		}
		return nil
	}

	if err := run.complete(usage); err != nil {
		return o.persistFailed(conversationID, err)
	}

	log.Printf("COMPLETION_DONE | conversation=%s message=%s chars=%d tokens_in=%d tokens_out=%d duration=%s",
		conversationID, run.message.ID, run.acc.Len(), usage.InputTokens, usage.OutputTokens,
		time.Since(start).Round(time.Millisecond))
	return nil
}

// resolveTrigger loads the trigger message and any reply it already has.
// A missing trigger is tolerated; the run then answers the whole history.
func (o *Orchestrator) resolveTrigger(ctx context.Context, conv *model.Conversation, triggerID string) (*model.Message, *model.Message, error) {
	if triggerID == "" {
		return nil, nil, nil
	}

	trigger, err := o.store.GetMessage(ctx, triggerID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && trigger.ConversationID != conv.ID) {
		log.Printf("COMPLETION_TRIGGER_MISSING | conversation=%s trigger=%s", conv.ID, triggerID)
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, &PersistenceError{Op: "load trigger", Err: err}
	}

	if _, err := o.store.DeriveTitleFromFirstMessage(ctx, conv, trigger); err != nil {
		log.Printf("COMPLETION_TITLE_FAILED | conversation=%s error=%v", conv.ID, err)
	}

	reply, err := o.store.FindReply(ctx, triggerID)
	if errors.Is(err, storage.ErrNotFound) {
		return trigger, nil, nil
	}
	if err != nil {
		return nil, nil, &PersistenceError{Op: "find reply", Err: err}
	}
	return trigger, reply, nil
}

// history returns the messages the model answers: everything up to and
// including the trigger, minus unfinished replies.
func (o *Orchestrator) history(ctx context.Context, conversationID, triggerID string) ([]*model.Message, error) {
	all, err := o.store.Messages(ctx, conversationID)
	if err != nil {
		return nil, &PersistenceError{Op: "load history", Err: err}
	}

	history := make([]*model.Message, 0, len(all))
	for _, m := range all {
		if m.IsComplete() {
			history = append(history, m)
		}
		if m.ID == triggerID {
			break
		}
	}
	return history, nil
}

func (o *Orchestrator) persistFailed(conversationID string, err error) error {
	log.Printf("COMPLETION_PERSIST_ERROR | conversation=%s error=%v", conversationID, err)
	return err
}

// =============================================================================
// RUN STATE
// =============================================================================

// run holds the state of one reply. It is only touched from the model's
// chunk callback and the goroutine calling Run.
type run struct {
	o         *Orchestrator
	ctx       context.Context
	conv      *model.Conversation
	replyTo   string
	indicator *typing.Indicator

	acc     strings.Builder
	message *model.Message
	resumed bool
	saver   *rate.Sometimes
}

// newSaver limits partial saves to one per interval, the first chunk
// included. A zero interval saves every chunk.
func newSaver(interval time.Duration) *rate.Sometimes {
	if interval <= 0 {
		return &rate.Sometimes{Every: 1}
	}
	return &rate.Sometimes{Interval: interval}
}

func (r *run) stream() string {
	return broadcast.ChatStream(r.conv.ID)
}

func (r *run) onChunk(chunk model.StreamChunk) error {
	if chunk.IsEmpty() {
		return nil
	}
	first := r.acc.Len() == 0
	r.acc.WriteString(chunk.Content)

	if first {
		r.indicator.Hide()
	}
	if r.message == nil {
		msg, err := r.o.store.StartReply(r.ctx, r.conv.ID, r.replyTo)
		if err != nil {
			return &PersistenceError{Op: "create reply", Err: err}
		}
		r.message = msg
		r.o.b.Append(r.stream(), render.MessagesTarget, r.o.r.Message(msg))
	}

	content := r.acc.String()
	var saveErr error
	r.saver.Do(func() {
		saveErr = r.o.store.UpdateMessageContent(r.ctx, r.message.ID, content)
	})
	if saveErr != nil {
		return &PersistenceError{Op: "save partial reply", Err: saveErr}
	}

	r.o.b.Update(r.stream(), render.ContentTarget(r.message.ID), r.o.r.Content(content))
	return nil
}

// complete stores the final content and broadcasts the finished message.
func (r *run) complete(usage model.Usage) error {
	if err := r.o.store.CompleteMessage(r.ctx, r.message.ID, r.acc.String(), usage); err != nil {
		return &PersistenceError{Op: "complete reply", Err: err}
	}
	return r.publishFinal(r.ctx)
}

// fail turns a model error into a visible notice. Writes ignore ctx
// cancellation so a canceled run still leaves a finished message.
func (r *run) fail(cause error) error {
	ctx := context.WithoutCancel(r.ctx)
	notice := ErrorNotice(cause)

	if r.message == nil {
		r.indicator.Hide()
		msg, err := r.o.store.CreateReply(ctx, r.conv.ID, r.replyTo, notice)
		if err != nil {
			return &PersistenceError{Op: "create error notice", Err: err}
		}
		r.message = msg
		r.o.b.Append(r.stream(), render.MessagesTarget, r.o.r.Message(msg))
		return r.publishFinal(ctx)
	}

	if err := r.o.store.CompleteMessage(ctx, r.message.ID, notice, model.Usage{}); err != nil {
		return &PersistenceError{Op: "store error notice", Err: err}
	}
	return r.publishFinal(ctx)
}

// publishFinal reloads the message and replaces its bubble.
func (r *run) publishFinal(ctx context.Context) error {
	msg, err := r.o.store.GetMessage(ctx, r.message.ID)
	if err != nil {
		return &PersistenceError{Op: "reload reply", Err: err}
	}
	r.message = msg
	r.o.b.Replace(r.stream(), render.MessageTarget(msg.ID), r.o.r.Message(msg))
	return nil
}
