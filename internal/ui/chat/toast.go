// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/medassist-tui/internal/ui/styles"
)

// Toasts are non-blocking notices drawn over the bottom-right of the
// transcript. They dismiss themselves; the chat keeps taking input.

// ToastKind selects a toast's color and indicator.
type ToastKind int

const (
	ToastStatus ToastKind = iota
	ToastSuccess
	ToastError
)

const (
	replyToastDuration = 2 * time.Second
	toastDuration      = 4 * time.Second
	errorToastDuration = 8 * time.Second
	maxToasts          = 3
)

// Toast is one notice.
type Toast struct {
	ID      int
	Message string
	Kind    ToastKind
}

// toastExpiredMsg dismisses the toast with id.
type toastExpiredMsg struct {
	id int
}

// Toasts is the stack of visible toasts, newest first.
type Toasts struct {
	items  []Toast
	nextID int
}

// Add shows a toast and returns the command that later dismisses it.
func (t *Toasts) Add(kind ToastKind, message string) tea.Cmd {
	t.nextID++
	id := t.nextID
	t.items = append([]Toast{{ID: id, Message: message, Kind: kind}}, t.items...)
	if len(t.items) > maxToasts {
		t.items = t.items[:maxToasts]
	}

	d := toastDuration
	switch kind {
	case ToastError:
		d = errorToastDuration
	case ToastStatus:
		d = replyToastDuration
	}
	return tea.Tick(d, func(time.Time) tea.Msg {
		return toastExpiredMsg{id: id}
	})
}

// Dismiss removes the toast with id.
func (t *Toasts) Dismiss(id int) {
	for i, item := range t.items {
		if item.ID == id {
			t.items = append(t.items[:i], t.items[i+1:]...)
			return
		}
	}
}

// Items returns a copy of the visible toasts.
func (t *Toasts) Items() []Toast {
	out := make([]Toast, len(t.items))
	copy(out, t.items)
	return out
}

// Clear removes every toast.
func (t *Toasts) Clear() {
	t.items = nil
}

// =============================================================================
// RENDERING
// =============================================================================

func renderToast(toast Toast, width int) string {
	maxWidth := min(48, max(width-4, 20))

	color, icon := styles.Sky, styles.StatusIndicators.Info
	switch toast.Kind {
	case ToastSuccess:
		color, icon = styles.Teal, styles.StatusIndicators.Success
	case ToastError:
		color, icon = styles.Rose, styles.StatusIndicators.Error
	}

	content := lipgloss.NewStyle().Foreground(color).Bold(true).Render(icon) + " " +
		lipgloss.NewStyle().Foreground(styles.TextPrimary).Render(toast.Message)

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Padding(0, 1).
		MaxWidth(maxWidth).
		Render(content)
}

// overlayToasts draws the toast stack over the last rows of body.
func overlayToasts(body string, toasts []Toast, width int) string {
	if len(toasts) == 0 || width <= 0 {
		return body
	}
	rendered := make([]string, 0, len(toasts))
	for i := len(toasts) - 1; i >= 0; i-- {
		rendered = append(rendered, renderToast(toasts[i], width))
	}
	stack := strings.Split(lipgloss.JoinVertical(lipgloss.Right, rendered...), "\n")

	lines := strings.Split(body, "\n")
	if len(stack) > len(lines) {
		stack = stack[len(stack)-len(lines):]
	}
	offset := len(lines) - len(stack)
	for i, row := range stack {
		lines[offset+i] = lipgloss.PlaceHorizontal(width, lipgloss.Right, row)
	}
	return strings.Join(lines, "\n")
}
