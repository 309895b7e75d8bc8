// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeranaias/medassist-tui/internal/server"
	"github.com/jeranaias/medassist-tui/internal/ui/styles"
)

const serverShutdownTimeout = 5 * time.Second

// NewStatusServer builds the status server from app's configuration.
// addr overrides the configured address when non-empty.
func NewStatusServer(app *App, addr string) *server.Server {
	cfg := app.Config.Server
	if addr == "" {
		addr = cfg.Addr
	}
	return server.New(server.Config{
		Addr:        addr,
		BearerToken: cfg.Token,
		RatePerSec:  cfg.RatePerSec,
		Burst:       cfg.Burst,
		Logger:      app.Logger,
	}, app.Store, app.Auth, app.Metrics)
}

// HandleServe implements "medassist serve [--addr host:port]".
func HandleServe(ctx context.Context, app *App, args Args, console *Console) error {
	srv := NewStatusServer(app, args.Parser.Flag("addr"))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	fmt.Fprintf(console.Out, "%s Status server on http://%s (Ctrl+C to stop)\n", successMark(), srv.Addr())
	if app.Config.Server.Token == "" {
		fmt.Fprintln(console.Out, styles.RenderWarning("No server.token set; history routes are open to local clients."))
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
