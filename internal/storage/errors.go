// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

// StoreError represents a storage-level failure class.
// It implements the error interface and can be compared using errors.Is.
type StoreError struct {
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing store errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

var (
	// ErrNotFound is returned when a conversation or message does not exist,
	// or exists but belongs to another user.
	ErrNotFound = &StoreError{Message: "record not found"}

	// ErrImmutable is returned when writing to a message whose content is
	// final: user messages and completed assistant messages.
	ErrImmutable = &StoreError{Message: "message is immutable"}

	// ErrInvalidInput is returned for empty ids or unknown roles.
	ErrInvalidInput = &StoreError{Message: "invalid input"}

	// ErrDuplicateReply is returned when a reply to the same message exists.
	ErrDuplicateReply = &StoreError{Message: "reply already exists"}
)
