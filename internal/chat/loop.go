// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Run drives cmd and every command produced by update until none remain or
// ctx is done. Commands execute on their own goroutines; update is only ever
// called from the caller's goroutine, so it may mutate controller state the
// same way a Bubble Tea Update does.
func Run(ctx context.Context, cmd tea.Cmd, update func(tea.Msg) tea.Cmd) error {
	msgs := make(chan tea.Msg)
	pending := 0

	spawn := func(cmd tea.Cmd) {
		if cmd == nil {
			return
		}
		pending++
		go func() {
			msg := cmd()
			select {
			case msgs <- msg:
			case <-ctx.Done():
			}
		}()
	}

	spawn(cmd)
	for pending > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-msgs:
			pending--
			switch msg := msg.(type) {
			case nil:
			case tea.BatchMsg:
				for _, c := range msg {
					spawn(c)
				}
			default:
				spawn(update(msg))
			}
		}
	}
	return ctx.Err()
}
