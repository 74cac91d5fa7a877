// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the command handlers for
// rigchat.
//
// # Key Types
//
//   - Command: Enumeration of all available commands
//   - Args: Parsed arguments with global and command-specific flags
//   - App: Config, client, archive and controller shared by the chat commands
//   - ArgParser: Flag and positional parsing for subcommands
//
// # Usage
//
//	cmd, args := cli.Parse()
//	if err := cli.Execute(cmd, args); err != nil {
//	    if !cli.IsSilent(err) {
//	        cli.DisplayError(cmd.String(), err, args.JSON)
//	    }
//	    os.Exit(cli.GetExitCode(err))
//	}
//
// # Commands Overview
//
//   - tui: Full-screen chat (default)
//   - ask: Single prompt, reply streamed to stdout
//   - chat: Line-mode chat with input history
//   - serve: Web client and /api proxy
//   - models: Models on the inference server
//   - history: Saved conversations
//   - listen: Voice prompts through a speech command
//   - config: Show and edit configuration
//
// Most commands support --json for scripting.
package cli
