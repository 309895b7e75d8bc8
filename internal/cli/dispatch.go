// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
)

// NeedsApp reports whether cmd needs Bootstrap. Help, version and config run
// without opening any store.
func NeedsApp(cmd Command) bool {
	switch cmd {
	case CmdHelp, CmdVersion, CmdConfig:
		return false
	}
	return true
}

// Dispatch runs cmd. app may be nil for commands where NeedsApp is false.
func Dispatch(ctx context.Context, cmd Command, args Args, app *App, console *Console) error {
	switch cmd {
	case CmdHelp:
		PrintUsage(console.Out)
		if args.Unknown != "" {
			return &UsageError{Command: args.Unknown, Message: "unknown command"}
		}
		return nil
	case CmdVersion:
		PrintVersion(console.Out)
		return nil
	case CmdConfig:
		return HandleConfig(args, console)
	}

	if app == nil {
		return fmt.Errorf("%s: services not initialized", cmd)
	}
	switch cmd {
	case CmdTUI:
		return RunTUI(ctx, app, args, console)
	case CmdChat:
		return RunChat(ctx, app, console)
	case CmdHistory:
		return HandleHistory(ctx, app, args, console)
	case CmdRegister:
		return HandleRegister(app, args, console)
	case CmdLogin:
		return HandleLogin(app, args, console)
	case CmdLogout:
		return HandleLogout(app, args, console)
	case CmdWhoami:
		return HandleWhoami(app, args, console)
	case CmdMFAEnroll:
		return HandleMFAEnroll(app, args, console)
	case CmdServe:
		return HandleServe(ctx, app, args, console)
	}
	return &UsageError{Command: cmd.String(), Message: "not implemented"}
}
