// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/medassist-tui/internal/ui/styles"
)

// init configures lipgloss for the current terminal.
func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle heads command output.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.Teal).
			MarginBottom(1)

	// LabelStyle is used for aligned field labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(styles.TextMuted).
			Width(14)

	ValueStyle = lipgloss.NewStyle().
			Foreground(styles.TextPrimary)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(styles.Teal).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(styles.Rose).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(styles.Amber)

	DimStyle = lipgloss.NewStyle().
			Foreground(styles.TextMuted)

	// PromptStyle colors the REPL prompt.
	PromptStyle = lipgloss.NewStyle().
			Foreground(styles.Sky).
			Bold(true)

	UserLabelStyle = lipgloss.NewStyle().
			Foreground(styles.Sky).
			Bold(true)

	AssistantLabelStyle = lipgloss.NewStyle().
				Foreground(styles.Teal).
				Bold(true)
)

// =============================================================================
// STATUS INDICATORS
// =============================================================================

func successMark() string { return SuccessStyle.Render(styles.StatusIndicators.Success) }
func errorMark() string   { return ErrorStyle.Render(styles.StatusIndicators.Error) }

// renderLabel returns a padded label for key/value output.
func renderLabel(label string) string {
	return LabelStyle.Render(label + ":")
}
