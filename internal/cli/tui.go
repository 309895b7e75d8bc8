// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	uichat "github.com/jeranaias/medassist-tui/internal/ui/chat"
	"github.com/jeranaias/medassist-tui/internal/ui/styles"
)

// RunTUI starts the full-screen chat. Without a terminal on both ends it
// falls back to the line-mode chat.
func RunTUI(ctx context.Context, app *App, args Args, console *Console) error {
	if !IsInteractive() {
		app.Logger.Info("no terminal, using line mode")
		return RunChat(ctx, app, console)
	}

	lc := app.NewLifecycle()
	ctrl := app.NewController(lc, nil)
	m := uichat.New(styles.NewTheme(), ctrl)

	if id := args.Parser.Flag("open"); id != "" {
		if err := m.Open(ctx, id); err != nil {
			return err
		}
	} else if m.Resume() == 0 {
		lc.Mount()
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}
