// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package inference

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jeranaias/medassist-tui/internal/model"
)

// Error variables for common inference failures.
var (
	// ErrNotConfigured indicates no endpoint URL is set.
	ErrNotConfigured = errors.New("inference endpoint not configured")

	// ErrEmptyMessage indicates Send was called without text.
	ErrEmptyMessage = errors.New("message is empty")
)

// Result is the outcome of one consultation call.
type Result struct {
	Success      bool   `json:"success"`
	Reply        string `json:"reply,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Succeeded builds a successful Result.
func Succeeded(reply string) Result {
	return Result{Success: true, Reply: reply}
}

// Failed builds a failed Result from err.
func Failed(err error) Result {
	return Result{Success: false, ErrorMessage: Describe(err)}
}

// Client sends a user message with its conversation history and returns the
// assistant reply. Implementations must honour ctx cancellation.
type Client interface {
	Send(ctx context.Context, message string, history []model.HistoryEntry) Result
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, message string, history []model.HistoryEntry) Result

// Send implements Client.
func (f ClientFunc) Send(ctx context.Context, message string, history []model.HistoryEntry) Result {
	return f(ctx, message, history)
}

// APIError is a non-2xx response from the endpoint.
type APIError struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("assistant service error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("assistant service error (HTTP %d): %s", e.Status, e.Message)
}

// Describe turns err into the text shown in an error turn.
func Describe(err error) string {
	var apiErr *APIError
	var netErr net.Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return "Request timeout: the assistant did not answer in time. Please try again."
	case errors.Is(err, context.Canceled):
		return "Request cancelled."
	case errors.Is(err, ErrNotConfigured):
		return "The assistant is not configured. Set inference.url in the config file."
	case errors.As(err, &apiErr):
		return apiErr.Error()
	default:
		return fmt.Sprintf("Could not reach the assistant: %v", err)
	}
}
