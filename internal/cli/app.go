// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Shared bootstrap for the commands that talk to the model.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/logging"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/ollama"
	"github.com/jeranaias/rigchat/internal/storage"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

// saveTimeout bounds each archive write from a finish hook.
const saveTimeout = 5 * time.Second

// App bundles what a command needs: configuration, client, archive and
// controller. Build it with newApp and Close it when done.
type App struct {
	Config     *config.Config
	Client     *ollama.Client
	Store      *storage.Store
	Controller *chat.Controller

	logCloser io.Closer
}

// appOptions tweak newApp for a particular command.
type appOptions struct {
	// noSave keeps exchanges out of the archive
	noSave bool
	// observers are passed to the controller
	observers []func(chat.Event)
}

// loadConfig loads the config file chosen by args and applies the flag
// overrides. A broken default config file is reported and defaults are used.
func loadConfig(args Args) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if args.ConfigFile != "" {
		cfg, err = config.LoadFromPath(args.ConfigFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg, err = config.Load()
		if cfg == nil {
			return nil, err
		}
		if err != nil {
			fmt.Fprintln(stderr, styles.RenderWarning(err.Error()+" (using defaults)"))
		}
	}

	applyOverrides(args, cfg)
	return cfg, nil
}

// applyOverrides applies the global flags on top of cfg.
func applyOverrides(args Args, cfg *config.Config) {
	if args.Model != "" {
		cfg.API.Model = args.Model
	}
	if args.BaseURL != "" {
		cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(args.BaseURL), "/")
	}
	if args.Verbose {
		cfg.Log.Level = "debug"
	}
}

// newApp loads configuration, sets up logging, opens the archive and
// builds a controller over a fresh conversation.
func newApp(args Args, opts appOptions) (*App, error) {
	cfg, err := loadConfig(args)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg}

	closer, err := logging.Setup(cfg)
	if err != nil {
		// Logging is best effort; commands still run without a log file
		fmt.Fprintf(stderr, "%s %v\n", WarningStyle.Render("Warning:"), err)
		logging.SetupWriter(io.Discard, cfg.Log.Level, cfg.Log.Format)
	} else {
		app.logCloser = closer
	}

	app.Client = newClient(cfg.API.BaseURL)

	if cfg.Storage.Enabled {
		path, err := cfg.StoragePath()
		if err == nil {
			app.Store, err = storage.Open(path)
		}
		if err != nil {
			slog.Warn("conversation archive unavailable", "error", err)
			app.Store = nil
		}
	}

	ctrlOpts := []chat.Option{
		chat.WithModel(cfg.API.Model),
		chat.WithLogger(slog.Default()),
	}
	for _, fn := range opts.observers {
		ctrlOpts = append(ctrlOpts, chat.WithObserver(fn))
	}
	if app.Store != nil && !opts.noSave {
		ctrlOpts = append(ctrlOpts, chat.WithFinishHook(app.save))
	}

	conv := model.NewConversationWithSystem(cfg.API.SystemPrompt)
	app.Controller = chat.NewController(app.Client, conv, ctrlOpts...)

	slog.Debug("app ready",
		"base_url", app.Client.BaseURL(),
		"model", cfg.API.Model,
		"storage", app.Store != nil)
	return app, nil
}

// newClient builds a client for base, which may be empty.
func newClient(base string) *ollama.Client {
	cfg := ollama.DefaultConfig()
	cfg.BaseURL = ollama.ResolveBaseURL(base)
	return ollama.NewClientWithConfig(cfg)
}

// save writes conv to the archive. Used as a controller finish hook.
func (a *App) save(_ *chat.Session, conv *model.Conversation) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := a.Store.Save(ctx, conv); err != nil {
		slog.Warn("save conversation", "id", conv.ID(), "error", err)
	}
}

// Close cancels any in-flight request and waits for pending saves before
// releasing the archive and log file.
func (a *App) Close() error {
	var errs []error
	if a.Controller != nil {
		a.Controller.Cancel()
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		if err := a.Controller.Wait(ctx); err != nil {
			slog.Warn("pending exchanges did not finish", "error", err)
		}
		cancel()
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.logCloser != nil {
		errs = append(errs, a.logCloser.Close())
	}
	return errors.Join(errs...)
}
