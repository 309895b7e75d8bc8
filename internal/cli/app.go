// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jeranaias/medassist-tui/internal/auth"
	"github.com/jeranaias/medassist-tui/internal/chat"
	"github.com/jeranaias/medassist-tui/internal/config"
	"github.com/jeranaias/medassist-tui/internal/inference"
	"github.com/jeranaias/medassist-tui/internal/logging"
	"github.com/jeranaias/medassist-tui/internal/scratch"
	"github.com/jeranaias/medassist-tui/internal/session"
	"github.com/jeranaias/medassist-tui/internal/storage"
	"github.com/jeranaias/medassist-tui/internal/telemetry"
)

// App holds the services shared by every command.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Store   storage.Store
	Scratch scratch.Storage
	Auth    *auth.Manager
	Metrics *telemetry.Metrics
	// Client is nil when no endpoint is configured; the controller then
	// answers with an error turn.
	Client inference.Client

	closers []io.Closer
}

// BootstrapOptions carries the global flags into Bootstrap.
type BootstrapOptions struct {
	ConfigPath string
	Offline    bool
	Verbose    bool
}

// Bootstrap loads configuration and opens every service.
func Bootstrap(ctx context.Context, opts BootstrapOptions) (*App, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigPath != "" {
		cfg, err = config.LoadFromPath(opts.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if opts.Offline {
		cfg.Inference.Offline = true
	}
	if opts.Verbose {
		cfg.Logging.Level = "debug"
	}

	app := &App{Config: cfg}

	logger, closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		// Logging must never block the chat.
		logger = logging.Discard()
	} else {
		app.closers = append(app.closers, closer)
	}
	app.Logger = logger

	store, err := storage.Open(ctx, cfg.Storage.DatabaseURL)
	if err != nil {
		return nil, NewCommandError("storage", "open", "could not open conversation store", err)
	}
	app.Store = store
	app.closers = append(app.closers, store)

	sc, err := scratch.NewFileStorage(cfg.Scratch.Dir)
	if err != nil {
		_ = app.Close()
		return nil, NewCommandError("scratch", "open", "could not open scratch directory", err)
	}
	app.Scratch = sc

	app.Auth = auth.NewManager(cfg.Auth.AccountsFile, cfg.Auth.SessionFile,
		auth.WithSessionTTL(cfg.Auth.SessionTTL.Duration))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.Metrics = telemetry.NewMetrics(reg)

	client, err := NewInferenceClient(cfg.Inference, logger)
	if err != nil && !errors.Is(err, inference.ErrNotConfigured) {
		_ = app.Close()
		return nil, err
	}
	app.Client = client

	logger.Info("medassist start",
		"version", Version,
		"store", storeKind(cfg.Storage.DatabaseURL),
		"offline", cfg.Inference.Offline,
		"inference_configured", client != nil)
	return app, nil
}

// NewInferenceClient picks the reply source for cfg. It returns a nil client
// and inference.ErrNotConfigured when no endpoint is set and offline mode is
// off.
func NewInferenceClient(cfg config.InferenceConfig, logger *slog.Logger) (inference.Client, error) {
	if cfg.Offline {
		return inference.CannedClient{}, nil
	}
	hc, err := inference.NewHTTPClient(cfg.URL, cfg.APIKey)
	if err != nil {
		return nil, err
	}
	return hc.WithTimeout(cfg.Timeout.Duration).
		WithRateLimit(cfg.RatePerSec, cfg.Burst).
		WithLogger(logger), nil
}

// NewLifecycle creates the lifecycle of one chat session.
func (a *App) NewLifecycle() *session.Lifecycle {
	cfg := session.DefaultConfig()
	if a.Config != nil {
		if a.Config.Chat.TitleMaxLen > 0 {
			cfg.TitleMaxLen = a.Config.Chat.TitleMaxLen
		}
		if a.Config.Chat.PreviewMaxLen > 0 {
			cfg.PreviewMaxLen = a.Config.Chat.PreviewMaxLen
		}
	}
	return session.New(a.Scratch, a.Store, a.Auth, cfg,
		session.WithLogger(a.logger()),
		session.WithMetrics(a.Metrics))
}

// NewController creates a controller for lc. A nil sched uses real timers.
func (a *App) NewController(lc *session.Lifecycle, sched chat.Scheduler) *chat.Controller {
	opts := chat.Options{
		Scheduler: sched,
		Logger:    a.logger(),
		Metrics:   a.Metrics,
	}
	if a.Config != nil {
		opts.RevealInterval = a.Config.Chat.RevealInterval.Duration
		opts.ScrollDebounce = a.Config.Chat.ScrollDebounce.Duration
		opts.ScrollInterval = a.Config.Chat.ScrollInterval.Duration
		opts.InferenceTimeout = a.Config.Inference.Timeout.Duration
		opts.EmptyReplyText = a.Config.Chat.EmptyReplyText
	}
	return chat.NewController(a.Client, lc, opts)
}

// CurrentUser returns the signed-in user or ErrNotSignedIn.
func (a *App) CurrentUser() (*auth.User, error) {
	if a.Auth == nil {
		return nil, ErrNotSignedIn
	}
	user := a.Auth.CurrentUser()
	if user == nil {
		return nil, ErrNotSignedIn
	}
	return user, nil
}

func (a *App) logger() *slog.Logger {
	if a.Logger == nil {
		return logging.Discard()
	}
	return a.Logger
}

// Close releases every opened service in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("close: %w", errors.Join(errs...))
	}
	return nil
}

func storeKind(url string) string {
	switch {
	case url == "" || url == "memory://":
		return "memory"
	case len(url) >= 8 && url[:8] == "postgres":
		return "postgres"
	default:
		return "sqlite"
	}
}
