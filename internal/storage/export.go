// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/jeranaias/medassist-tui/internal/model"
)

// =============================================================================
// EXPORT
// =============================================================================

// ExportMarkdown renders a conversation as Markdown with role labels and
// timestamps.
func ExportMarkdown(conv model.Conversation) string {
	var sb strings.Builder
	sb.WriteString("# " + conv.Header.Title + "\n\n")
	sb.WriteString("Created: " + conv.Header.CreatedAt.Format(time.RFC3339) + "  \n")
	sb.WriteString("Updated: " + conv.Header.UpdatedAt.Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")

	for _, t := range conv.Turns {
		sb.WriteString("**" + t.Role.DisplayName() + "** (" + t.CreatedAt.Local().Format("15:04") + "):\n\n")
		if t.Role == model.RoleError {
			sb.WriteString("> " + strings.ReplaceAll(t.Content, "\n", "\n> "))
		} else {
			sb.WriteString(t.Content)
		}
		sb.WriteString("\n\n---\n\n")
	}

	return sb.String()
}

// ExportJSON renders a conversation as indented JSON.
func ExportJSON(conv model.Conversation) ([]byte, error) {
	if conv.Turns == nil {
		conv.Turns = []model.Turn{}
	}
	return json.MarshalIndent(conv, "", "  ")
}
