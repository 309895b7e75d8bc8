// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/medassist-tui/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

// ConversationError represents a conversation-related error.
// It can be compared using errors.Is.
type ConversationError struct {
	Message string
}

// Error implements the error interface.
func (e *ConversationError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing conversation errors.
func (e *ConversationError) Is(target error) bool {
	t, ok := target.(*ConversationError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

var (
	// ErrConversationNotFound is returned when a conversation doesn't exist
	// or belongs to another user.
	ErrConversationNotFound = &ConversationError{Message: "conversation not found"}

	// ErrMissingUser is returned when a header has no owner.
	ErrMissingUser = errors.New("conversation header has no user id")
)

// =============================================================================
// STORE
// =============================================================================

// Store is the durable conversation store.
type Store interface {
	// CreateHeader inserts a header and returns its id. An empty ID is
	// assigned a new uuid.
	CreateHeader(ctx context.Context, h model.ConversationHeader) (string, error)

	// UpdateHeader rewrites title, preview and updated_at of an existing
	// header owned by h.UserID.
	UpdateHeader(ctx context.Context, h model.ConversationHeader) error

	// GetHeader returns one header owned by userID.
	GetHeader(ctx context.Context, userID, id string) (model.ConversationHeader, error)

	// ListHeaders returns userID's headers, most recently updated first.
	ListHeaders(ctx context.Context, userID string) ([]model.ConversationHeader, error)

	// InsertTurns appends turns to a conversation atomically.
	InsertTurns(ctx context.Context, conversationID string, turns []model.Turn) error

	// ListTurns returns a conversation's turns ordered by creation time
	// ascending, insertion order breaking ties.
	ListTurns(ctx context.Context, conversationID string) ([]model.Turn, error)

	// DeleteConversation removes a header and its turns.
	DeleteConversation(ctx context.Context, userID, id string) error

	Close() error
}

// Open returns the backend selected by databaseURL:
//
//	""  or "memory://"                 in-memory
//	"sqlite://<path>" or "<path>.db"    SQLite
//	"postgres://..." / "postgresql://"  PostgreSQL
func Open(ctx context.Context, databaseURL string) (Store, error) {
	u := strings.TrimSpace(databaseURL)
	switch {
	case u == "" || u == "memory://":
		return NewMemoryStore(), nil
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return NewPostgresStore(ctx, u)
	case strings.HasPrefix(u, "sqlite://"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(u, "sqlite://"))
	case strings.HasSuffix(u, ".db"), strings.HasSuffix(u, ".sqlite"):
		return NewSQLiteStore(ctx, u)
	default:
		return nil, fmt.Errorf("unsupported database url %q", databaseURL)
	}
}

// LoadConversation fetches a header and its turns.
func LoadConversation(ctx context.Context, s Store, userID, id string) (model.Conversation, error) {
	h, err := s.GetHeader(ctx, userID, id)
	if err != nil {
		return model.Conversation{}, err
	}
	turns, err := s.ListTurns(ctx, id)
	if err != nil {
		return model.Conversation{}, err
	}
	return model.Conversation{Header: h, Turns: turns}, nil
}
