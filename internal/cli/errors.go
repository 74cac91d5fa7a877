// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types and exit codes for rigchat commands.
//
// Command handlers return errors; main displays them once and exits with
// the code GetExitCode picks.

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/ollama"
	"github.com/jeranaias/rigchat/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general error, including an Errored exchange
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitNetworkError indicates the inference server could not be reached
	ExitNetworkError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitInterrupted is the conventional code after SIGINT
	ExitInterrupted = 130
)

// ErrExchangeFailed is returned when a reply ends in the Errored state.
var ErrExchangeFailed = errors.New("request failed")

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError reports invalid arguments.
type UsageError struct {
	Message string
	Usage   string
}

func (e *UsageError) Error() string {
	if e.Usage != "" {
		return e.Message + "\nUsage: " + e.Usage
	}
	return e.Message
}

// ErrMissingArgument creates a usage error for a missing argument.
func ErrMissingArgument(argName, usage string) error {
	return &UsageError{Message: "missing required argument: " + argName, Usage: usage}
}

// ErrUnknownSubcommand creates a usage error for an unknown subcommand.
func ErrUnknownSubcommand(command, sub, usage string) error {
	return &UsageError{Message: fmt.Sprintf("unknown %s subcommand: %s", command, sub), Usage: usage}
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode determines the exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	var validateErrs config.ValidateErrors
	var validateErr config.ValidationError
	switch {
	case errors.As(err, &usageErr):
		return ExitUsageError
	case errors.As(err, &validateErrs), errors.As(err, &validateErr):
		return ExitConfigError
	case errors.Is(err, storage.ErrConversationNotFound):
		return ExitNotFoundError
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, context.DeadlineExceeded), ollama.IsTimeout(err):
		return ExitTimeoutError
	case ollama.IsNotRunning(err):
		return ExitNetworkError
	}
	return ExitGeneralError
}

// silentError marks an error the command already reported. main exits with
// its code without printing it again.
type silentError struct {
	err error
}

func (e *silentError) Error() string { return e.err.Error() }
func (e *silentError) Unwrap() error { return e.err }

// Silent wraps err so that it is not displayed again.
func Silent(err error) error {
	if err == nil {
		return nil
	}
	return &silentError{err: err}
}

// IsSilent reports whether err was already reported to the user.
func IsSilent(err error) bool {
	var s *silentError
	return errors.As(err, &s)
}
