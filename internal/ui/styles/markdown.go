// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// Markdown renders assistant replies as terminal markdown. Renderers are
// built lazily per wrap width and reused.
type Markdown struct {
	mu        sync.Mutex
	renderers map[int]*glamour.TermRenderer
}

// NewMarkdown creates an empty renderer cache.
func NewMarkdown() *Markdown {
	return &Markdown{renderers: make(map[int]*glamour.TermRenderer)}
}

func (m *Markdown) renderer(width int) *glamour.TermRenderer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.renderers[width]; ok {
		return r
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		r = nil
	}
	m.renderers[width] = r
	return r
}

// Render returns content rendered for width columns, or content unchanged
// when rendering fails.
func (m *Markdown) Render(content string, width int) string {
	if width < 20 {
		width = 20
	}
	r := m.renderer(width)
	if r == nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}
