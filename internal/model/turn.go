// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleError:
		return true
	}
	return false
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleError:
		return "Error"
	default:
		return string(r)
	}
}

// tag is the short prefix embedded in minted turn ids.
func (r Role) tag() string {
	switch r {
	case RoleUser:
		return "u"
	case RoleAssistant:
		return "a"
	case RoleError:
		return "e"
	default:
		return "x"
	}
}

// ParseRole converts a stored role string back into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// =============================================================================
// TURN TYPE
// =============================================================================

// Turn is one unit of conversation. CreatedAt marshals as RFC 3339.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewTurn creates a turn stamped with the current time.
func NewTurn(id string, role Role, content string) Turn {
	return Turn{
		ID:        id,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// HistoryEntry is the role/content pair sent to the inference endpoint as
// conversation context.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CloneTurns returns a copy of turns that shares no backing array.
func CloneTurns(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
