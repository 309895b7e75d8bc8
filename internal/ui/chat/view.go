// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/medassist-tui/internal/model"
	"github.com/jeranaias/medassist-tui/internal/ui/styles"
)

const streamCursor = "_"

type renderedTurn struct {
	content string
	width   int
	out     string
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	body := overlayToasts(m.viewport.View(), m.toasts.Items(), m.viewport.Width)
	if m.exitPrompt {
		body = lipgloss.Place(m.viewport.Width, m.viewport.Height,
			lipgloss.Center, lipgloss.Center, m.renderExitPrompt())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderInput(),
		m.renderStatusBar(),
	)
}

func (m *Model) syncViewport() {
	m.viewport.SetContent(m.renderTranscript())
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

func (m *Model) renderTranscript() string {
	turns := m.ctrl.Turns()
	if len(turns) == 0 {
		return m.theme.Empty.Render("Ask about a symptom to start a consultation.")
	}

	streamingID := m.ctrl.StreamingTurnID()
	width := m.theme.BubbleWidth()
	if m.theme.Width == 0 {
		width = 60
	}

	blocks := make([]string, 0, len(turns)+1)
	for _, t := range turns {
		blocks = append(blocks, m.renderTurn(t, t.ID == streamingID, width))
	}
	if m.ctrl.IsAwaitingReply() && !m.ctrl.Streaming() {
		blocks = append(blocks, m.spinner.View()+" "+m.theme.Thinking.Render("Assistant is thinking..."))
	}
	return strings.Join(blocks, "\n\n")
}

func (m *Model) renderTurn(t model.Turn, streaming bool, width int) string {
	label := m.theme.RoleLabel.Render(t.Role.DisplayName())
	if !t.CreatedAt.IsZero() {
		label += " " + m.theme.Timestamp.Render(t.CreatedAt.Local().Format("15:04"))
	}

	var bubble string
	switch {
	case t.Role == model.RoleUser:
		bubble = m.theme.UserBubble.Width(width).Render(t.Content)
	case t.Role == model.RoleError:
		bubble = m.theme.ErrorBubble.Width(width).Render(styles.StatusIndicators.Error + " " + t.Content)
	case streaming:
		bubble = m.theme.AssistantBubble.Width(width).Render(t.Content + m.theme.Cursor.Render(streamCursor))
	default:
		bubble = m.theme.AssistantBubble.Width(width).Render(m.markdown(t, width-4))
	}
	return label + "\n" + bubble
}

// markdown renders a finished assistant turn once per content and width.
func (m *Model) markdown(t model.Turn, width int) string {
	if c, ok := m.cache[t.ID]; ok && c.content == t.Content && c.width == width {
		return c.out
	}
	out := m.md.Render(t.Content, width)
	m.cache[t.ID] = renderedTurn{content: t.Content, width: width, out: out}
	return out
}

// =============================================================================
// CHROME
// =============================================================================

func (m *Model) renderHeader() string {
	title := m.title
	if title == "" {
		title = model.DeriveTitle(m.ctrl.Turns(), model.DefaultTitleMaxLen)
	}
	line := m.theme.HeaderBrand.Render("MedAssist") + "  " + m.theme.HeaderTitle.Render(title)
	return m.theme.Header.Width(m.width).Render(line)
}

func (m *Model) renderInput() string {
	return m.theme.InputContainer.Width(m.width).Render(m.input.View())
}

func (m *Model) renderStatusBar() string {
	left := fmt.Sprintf("%s | %d turns", m.ctrl.Phase(), len(m.ctrl.Turns()))
	right := m.notice
	if right == "" {
		right = helpLine(m.theme, m.keys.ShortHelp())
	}
	return m.theme.StatusBar.Width(m.width).Render(left + "  " + right)
}

func (m *Model) renderExitPrompt() string {
	var b strings.Builder
	b.WriteString(m.theme.OverlayTitle.Render("Save this consultation?"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("%d turns will be lost unless saved.", len(m.ctrl.Turns())))
	b.WriteString("\n\n")
	b.WriteString(helpLine(m.theme, m.keys.PromptHelp()))
	if m.notice != "" {
		b.WriteString("\n\n")
		b.WriteString(m.notice)
	}
	return m.theme.Overlay.Render(b.String())
}

func helpLine(theme *styles.Theme, bindings []key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, kb := range bindings {
		h := kb.Help()
		parts = append(parts, theme.StatusKey.Render(h.Key)+" "+theme.OverlayHint.Render(h.Desc))
	}
	return strings.Join(parts, "  ")
}
