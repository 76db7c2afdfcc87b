// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the conversation of a run does not exist.
// The run aborts before any side effect.
var ErrNotFound = errors.New("conversation not found")

// ModelCallError is a failure of the model API while streaming. Runs recover
// from it by showing an error notice in the conversation.
type ModelCallError struct {
	Provider string
	Err      error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ModelCallError) Unwrap() error {
	return e.Err
}

// PersistenceError is a failure to read or write the assistant message.
// It is logged and returned; viewers are not shown a notice for it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ErrorNotice is the assistant message shown when a run fails.
func ErrorNotice(err error) string {
	var mce *ModelCallError
	if errors.As(err, &mce) {
		err = mce.Err
	}
	return "Sorry, I encountered an error: " + err.Error()
}

// errEmptyResponse is raised when a stream ends without content.
var errEmptyResponse = errors.New("empty response from model")
