// rigchat - A streaming chat client for Ollama-compatible inference servers.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"os"

	"github.com/jeranaias/rigchat/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	if err := cli.Execute(cmd, args); err != nil {
		if !cli.IsSilent(err) {
			cli.DisplayError(cmd.String(), err, args.JSON)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
