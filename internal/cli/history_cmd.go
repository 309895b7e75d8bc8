// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"

	"github.com/jeranaias/medassist-tui/internal/model"
	"github.com/jeranaias/medassist-tui/internal/storage"
	"github.com/jeranaias/medassist-tui/internal/ui/styles"
	"github.com/jeranaias/medassist-tui/internal/util"
)

// HandleHistory implements "medassist history".
func HandleHistory(ctx context.Context, app *App, args Args, console *Console) error {
	user, err := app.CurrentUser()
	if err != nil {
		return err
	}
	p := args.Parser

	switch sub := p.Subcommand(); sub {
	case "", "list", "ls":
		headers, err := app.Store.ListHeaders(ctx, user.ID)
		if err != nil {
			return NewCommandError("history", "list", "could not read saved consultations", err)
		}
		if args.JSON {
			if headers == nil {
				headers = []model.ConversationHeader{}
			}
			return writeJSONResponse(console.Out, "history list", headers, nil)
		}
		printHeaders(console.Out, headers)
		return nil

	case "show":
		conv, err := loadForCommand(ctx, app, user.ID, p, "show")
		if err != nil {
			return err
		}
		if args.JSON {
			return writeJSONResponse(console.Out, "history show", conv, nil)
		}
		fmt.Fprintln(console.Out, TitleStyle.Render(conv.Header.Title))
		var md *styles.Markdown
		width := 0
		if IsStdoutTTY() {
			md, width = styles.NewMarkdown(), GetTerminalWidth()-4
		}
		printTurns(console.Out, conv.Turns, md, width)
		return nil

	case "export":
		conv, err := loadForCommand(ctx, app, user.ID, p, "export")
		if err != nil {
			return err
		}
		var data []byte
		if args.JSON || p.Flag("format") == "json" {
			data, err = storage.ExportJSON(conv)
			if err != nil {
				return NewCommandError("history", "export", "could not encode consultation", err)
			}
		} else {
			data = []byte(storage.ExportMarkdown(conv))
		}
		if out := p.Flag("out"); out != "" {
			if err := util.WriteFileAtomic(out, data, 0600); err != nil {
				return NewCommandError("history", "export", "could not write "+out, err)
			}
			fmt.Fprintf(console.Out, "%s Exported %s to %s\n", successMark(), conv.Header.ID, out)
			return nil
		}
		_, err = console.Out.Write(data)
		return err

	case "delete", "rm":
		id := p.Positional(1)
		if id == "" {
			return &UsageError{Command: "history delete", Message: "missing conversation id"}
		}
		if !p.BoolFlag("yes") && !p.BoolFlag("y") {
			if !console.Interactive {
				return &UsageError{Command: "history delete", Message: "pass --yes to delete without a terminal"}
			}
			if !console.Confirm(fmt.Sprintf("Delete consultation %s?", id), false) {
				fmt.Fprintln(console.Out, DimStyle.Render("Cancelled."))
				return nil
			}
		}
		if err := app.Store.DeleteConversation(ctx, user.ID, id); err != nil {
			return err
		}
		if args.JSON {
			return writeJSONResponse(console.Out, "history delete", map[string]string{"id": id}, nil)
		}
		fmt.Fprintf(console.Out, "%s Deleted %s\n", successMark(), id)
		return nil

	default:
		return &UsageError{Command: "history", Message: fmt.Sprintf("unknown subcommand %q", sub)}
	}
}

func loadForCommand(ctx context.Context, app *App, userID string, p *ArgParser, action string) (model.Conversation, error) {
	id := p.Positional(1)
	if id == "" {
		return model.Conversation{}, &UsageError{Command: "history " + action, Message: "missing conversation id"}
	}
	return storage.LoadConversation(ctx, app.Store, userID, id)
}
