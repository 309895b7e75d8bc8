// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/jeranaias/medassist-tui/internal/util"
)

// DefaultTitle is used when a consultation has no user turn to name it after.
const DefaultTitle = "New consultation"

const (
	DefaultTitleMaxLen   = 40
	DefaultPreviewMaxLen = 80
)

// ConversationHeader is the durable metadata row for a saved consultation.
type ConversationHeader struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	Title              string    `json:"title"`
	LastMessagePreview string    `json:"lastMessagePreview"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Conversation is a header together with its turns ordered by creation time.
type Conversation struct {
	Header ConversationHeader `json:"header"`
	Turns  []Turn             `json:"turns"`
}

// DeriveTitle builds a title from the first user turn, whitespace collapsed
// and cut to maxWidth display columns.
func DeriveTitle(turns []Turn, maxWidth int) string {
	if maxWidth <= 0 {
		maxWidth = DefaultTitleMaxLen
	}
	for _, t := range turns {
		if t.Role != RoleUser {
			continue
		}
		if text := util.CollapseWhitespace(t.Content); text != "" {
			return util.TruncateWidth(text, maxWidth)
		}
	}
	return DefaultTitle
}

// DerivePreview builds a one-line preview of the last turn.
func DerivePreview(turns []Turn, maxWidth int) string {
	if maxWidth <= 0 {
		maxWidth = DefaultPreviewMaxLen
	}
	if len(turns) == 0 {
		return ""
	}
	return util.TruncateWidth(util.CollapseWhitespace(turns[len(turns)-1].Content), maxWidth)
}
