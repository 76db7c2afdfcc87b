// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/rigrun-chat/internal/config"
	"github.com/jeranaias/rigrun-chat/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitNetworkError  = 5
	ExitNotFoundError = 7
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError is a failed command with the action it was performing.
type CommandError struct {
	Command string
	Action  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// UsageError is invalid command-line usage.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

func usageErrorf(format string, args ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

func commandError(command, action string, err error) error {
	if err == nil {
		return nil
	}
	return &CommandError{Command: command, Action: action, Err: err}
}

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	var usage *UsageError
	var validation config.ValidateErrors
	var single config.ValidationError
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return ExitSuccess
	case errors.As(err, &usage):
		return ExitUsageError
	case errors.As(err, &validation), errors.As(err, &single):
		return ExitConfigError
	case errors.Is(err, storage.ErrNotFound):
		return ExitNotFoundError
	case errors.Is(err, errModelUnreachable):
		return ExitNetworkError
	default:
		return ExitGeneralError
	}
}

var errModelUnreachable = errors.New("model provider unreachable")
