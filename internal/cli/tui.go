// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// tui.go - Full-screen chat, the default command.
package cli

import (
	"context"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	core "github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/ui/chat"
	"github.com/jeranaias/rigchat/internal/ui/render"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

// HandleTUI starts the Bubble Tea chat view and, while it runs, reloads
// the config file whenever it changes.
func HandleTUI(args Args) error {
	if err := RequiresTTY("start the chat view"); err != nil {
		return &UsageError{Message: err.Error(), Usage: `rigchat ask "prompt" for non-interactive use`}
	}

	notifier := &chat.Notifier{}
	app, err := newApp(args, appOptions{observers: []func(core.Event){notifier.Observe}})
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := app.Config
	m := chat.New(chat.Options{
		Controller:   app.Controller,
		Theme:        styles.NewTheme(cfg.UI.Theme),
		Markdown:     render.NewMarkdown(cfg.UI.Theme, cfg.UI.WordWrap),
		BaseURL:      app.Client.BaseURL(),
		SystemPrompt: cfg.API.SystemPrompt,
		NewClient: func(base string) core.Generator {
			return newClient(base)
		},
		Context: ctx,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	notifier.Attach(p)
	defer notifier.Close()

	go watchConfig(ctx, args, notifier)

	_, err = p.Run()
	return err
}

// watchConfig forwards reloaded configs to the program until ctx is done.
func watchConfig(ctx context.Context, args Args, notifier *chat.Notifier) {
	path, err := configFilePath(args)
	if err != nil {
		slog.Warn("config watch disabled", "error", err)
		return
	}
	if args.ConfigFile == "" {
		if err := config.EnsureConfigDir(); err != nil {
			slog.Warn("config watch disabled", "error", err)
			return
		}
	}

	err = config.Watch(ctx, path, func(c *config.Config) {
		applyOverrides(args, c)
		notifier.Send(chat.ConfigMsg{Config: c})
	})
	if err != nil && ctx.Err() == nil {
		slog.Warn("config watch stopped", "error", err)
	}
}
