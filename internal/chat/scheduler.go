// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Scheduler turns a delayed delivery of msg into a command.
type Scheduler interface {
	After(d time.Duration, msg tea.Msg) tea.Cmd
}

// TickScheduler delivers messages through tea.Tick.
type TickScheduler struct{}

// After implements Scheduler.
func (TickScheduler) After(d time.Duration, msg tea.Msg) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return msg
	})
}

// ImmediateScheduler ignores the delay. Used by tests and by callers that
// want the final state without pacing.
type ImmediateScheduler struct{}

// After implements Scheduler.
func (ImmediateScheduler) After(_ time.Duration, msg tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return msg
	}
}
