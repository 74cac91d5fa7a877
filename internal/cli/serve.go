// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve.go - Web client server command.
//
// Command: serve [--addr HOST:PORT] [--upstream URL] [--web-dir DIR] [--base-path PATH]
// Short:   Serve the browser client and proxy /api/* to the inference server
// Aliases: server
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/rigchat/internal/logging"
	"github.com/jeranaias/rigchat/internal/server"
)

// HandleServe handles the "serve" command. It runs until SIGINT or SIGTERM.
func HandleServe(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	if v := args.Option("addr"); v != "" {
		cfg.Server.Addr = v
	}
	if v := args.Option("upstream"); v != "" {
		cfg.Server.Upstream = v
	}
	if v := args.Option("web-dir"); v != "" {
		cfg.Server.WebDir = v
	}
	if v := args.Option("base-path"); v != "" {
		cfg.Server.BasePath = v
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	// A server logs to the terminal unless a log file was configured
	if cfg.Log.File == "" || cfg.Log.File == "-" {
		logging.SetupWriter(stderr, cfg.Log.Level, cfg.Log.Format)
	} else {
		closer, err := logging.Setup(cfg)
		if err != nil {
			return err
		}
		defer closer.Close()
	}

	if !args.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	srv, err := server.New(cfg.Server, server.WithLogger(slog.Default().With("component", "server")))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !args.Quiet {
		fmt.Fprintf(stderr, "%s http://%s%s\n", TitleStyle.Render("rigchat serving on"), cfg.Server.Addr, cfg.Server.BasePath)
		fmt.Fprintf(stderr, "%s %s\n", DimStyle.Render("Proxying /api/* to"), cfg.Server.Upstream)
	}

	return srv.Run(ctx)
}
