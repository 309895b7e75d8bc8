// medassist - A terminal healthcare assistant chat with saved consultations.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/medassist-tui/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	os.Exit(run())
}

func run() int {
	cmd, args := cli.Parse(os.Args[1:])
	console := cli.NewConsole()

	// SIGINT is left to the chat so Ctrl+C can stop a reply.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	var app *cli.App
	if cli.NeedsApp(cmd) {
		var err error
		app, err = cli.Bootstrap(ctx, cli.BootstrapOptions{
			ConfigPath: args.ConfigPath,
			Offline:    args.Offline,
			Verbose:    args.Verbose,
		})
		if err != nil {
			cli.DisplayError(os.Stderr, err, args.JSON)
			return cli.GetExitCode(err)
		}
		defer app.Close()
	}

	if err := cli.Dispatch(ctx, cmd, args, app, console); err != nil {
		out := os.Stderr
		if args.JSON {
			out = os.Stdout
		}
		cli.DisplayError(out, err, args.JSON)
		return cli.GetExitCode(err)
	}
	return cli.ExitSuccess
}
