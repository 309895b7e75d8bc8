// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/jeranaias/medassist-tui/internal/auth"
	"github.com/jeranaias/medassist-tui/internal/config"
	"github.com/jeranaias/medassist-tui/internal/inference"
	"github.com/jeranaias/medassist-tui/internal/session"
	"github.com/jeranaias/medassist-tui/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitAuthError     = 4
	ExitNetworkError  = 5
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError wraps a failed command action with a hint for the user.
type CommandError struct {
	Command string
	Action  string
	Reason  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ValidationError reports bad user input.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UsageError reports a malformed command line.
type UsageError struct {
	Command string
	Message string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("%s: %s (see 'medassist help')", e.Command, e.Message)
}

// ErrNotSignedIn is returned by commands that need a signed-in user.
var ErrNotSignedIn = errors.New("not signed in; run 'medassist login' first")

// NewCommandError builds a CommandError.
func NewCommandError(command, action, reason string, err error) *CommandError {
	return &CommandError{Command: command, Action: action, Reason: reason, Err: err}
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode maps err to a process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usage *UsageError
	var validation *ValidationError
	var cfgErrs config.ValidateErrors
	var cfgErr config.ValidationError
	var netErr net.Error
	var apiErr *inference.APIError

	switch {
	case errors.As(err, &usage), errors.As(err, &validation):
		return ExitUsageError
	case errors.As(err, &cfgErrs), errors.As(err, &cfgErr):
		return ExitConfigError
	case errors.Is(err, ErrNotSignedIn),
		errors.Is(err, session.ErrNotAuthenticated),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrMFARequired):
		return ExitAuthError
	case errors.Is(err, storage.ErrConversationNotFound):
		return ExitNotFoundError
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return ExitTimeoutError
		}
		return ExitNetworkError
	case errors.As(err, &apiErr):
		return ExitNetworkError
	}
	return ExitGeneralError
}

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError writes err for a human, or as a JSON envelope when asJSON.
func DisplayError(w io.Writer, err error, asJSON bool) {
	if err == nil {
		return
	}
	if asJSON {
		_ = writeJSONResponse(w, "", nil, err)
		return
	}
	fmt.Fprintf(w, "%s %s\n", errorMark(), err)
	if hint := errorHint(err); hint != "" {
		fmt.Fprintln(w, DimStyle.Render("  "+hint))
	}
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, auth.ErrMFARequired):
		return "Pass --code with the 6-digit code from your authenticator app."
	case errors.Is(err, session.ErrNotAuthenticated), errors.Is(err, ErrNotSignedIn):
		return "Create an account with 'medassist register', then 'medassist login'."
	case errors.Is(err, inference.ErrNotConfigured):
		return "Set inference.url in the config file or MEDASSIST_INFERENCE_URL, or pass --offline."
	case errors.Is(err, storage.ErrConversationNotFound):
		return "List saved consultations with 'medassist history'."
	}
	return ""
}

// =============================================================================
// JSON OUTPUT
// =============================================================================

// JSONResponse is the envelope written by --json commands.
type JSONResponse struct {
	Success   bool    `json:"success"`
	Command   string  `json:"command,omitempty"`
	Data      any     `json:"data"`
	Error     *string `json:"error"`
	Timestamp string  `json:"timestamp"`
}

func writeJSONResponse(w io.Writer, command string, data any, err error) error {
	resp := JSONResponse{
		Success:   err == nil,
		Command:   command,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		msg := strings.TrimSpace(err.Error())
		resp.Error = &msg
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
