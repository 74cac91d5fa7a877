// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command parsing and help for rigchat.
package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdAsk
	CmdChat
	CmdServe
	CmdModels
	CmdHistory
	CmdListen
	CmdConfig
	CmdVersion
	CmdHelp
)

// String returns the command name used in help and JSON output.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdAsk:
		return "ask"
	case CmdChat:
		return "chat"
	case CmdServe:
		return "serve"
	case CmdModels:
		return "models"
	case CmdHistory:
		return "history"
	case CmdListen:
		return "listen"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	default:
		return "help"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet      bool
	Verbose    bool
	JSON       bool
	Model      string
	BaseURL    string
	ConfigFile string

	// Command-specific
	Query      string
	Subcommand string
	ConfigKey  string
	ConfigVal  string

	// Raw args after the command name
	Raw []string

	// Options holds command-specific named options (e.g., --raw, --addr)
	Options map[string]string
}

// Option returns a command option, or "".
func (a Args) Option(name string) string {
	return a.Options[name]
}

// BoolOption reports whether a command option is set to "true".
func (a Args) BoolOption(name string) bool {
	return a.Options[name] == "true"
}

const usageText = `rigchat - streaming chat client for Ollama-compatible inference servers

Usage:
  rigchat                          Start the TUI (default)
  rigchat ask "prompt"             Ask a single question, stream the reply
  rigchat chat                     Interactive line-mode chat
  rigchat serve                    Serve the web client and proxy /api/*
  rigchat models                   List models on the inference server
  rigchat history [subcommand]     Browse saved conversations
  rigchat listen                   Voice input through a speech command
  rigchat config [show|path|set]   Configuration
  rigchat version                  Show version
  rigchat help                     Show this help

Ask:
  rigchat ask "why is the sky blue?"
  echo "summarize this" | rigchat ask -
    --raw                          Print the raw reply, no markdown rendering
    -m, --model NAME               Model to use

Chat commands:
  /clear                           Start a new conversation
  /model [NAME]                    Show or switch the model
  /history                         Show this conversation
  /stats                           Show statistics of the last reply
  /quit                            Exit (also Ctrl+D)
  Ctrl+C cancels the reply that is streaming.

Serve:
  rigchat serve [--addr HOST:PORT] [--upstream URL] [--web-dir DIR]
    The web client is served under server.base_path (default /projects/chat/)
    and /api/* is forwarded to the upstream inference server.

History:
  rigchat history list [--limit N]     List saved conversations
  rigchat history show ID [--json|--md]  Print a conversation
  rigchat history search TEXT          Search conversation text
  rigchat history delete ID            Delete a conversation
    IDs may be abbreviated to any unique prefix.

Listen:
  rigchat listen [--command CMD] [--silence MS]
    CMD prints transcripts on stdout, one per line, either plain text or
    {"text":"...","final":true}. After MS milliseconds without a new final
    result the transcript is sent as a prompt.

Config:
  rigchat config show              Show current configuration
  rigchat config path              Show config file path
  rigchat config set KEY VALUE     Set a value (e.g. api.model llama3)
  rigchat config keys              List settable keys

Global flags:
  -m, --model NAME                 Model override
  --base-url URL                   API origin override (default http://127.0.0.1:11434)
  --config FILE                    Config file (default ~/.rigchat/config.toml)
  --json                           JSON output where supported
  -q, --quiet                      Less output
  -v, --verbose                    Debug logging

Environment:
  RIGCHAT_API_BASE_URL, VITE_API_BASE_URL, RIGCHAT_MODEL, RIGCHAT_LOG_LEVEL,
  RIGCHAT_SERVER_ADDR, RIGCHAT_UPSTREAM, RIGCHAT_HOME

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Fprintf(stdout, usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Fprintf(stdout, "rigchat version %s\n", Version)
	fmt.Fprintf(stdout, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(stdout, "  Build date: %s\n", BuildDate)
}

// Parse parses os.Args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses command-line arguments and returns the command and args.
func ParseArgs(argv []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdTUI, parsedArgs
	}

	word := remaining[0]
	cmd := strings.ToLower(word)
	remaining = remaining[1:]
	parsedArgs.Raw = remaining

	switch cmd {
	case "tui":
		return CmdTUI, parsedArgs

	case "ask", "a":
		parseAskArgs(&parsedArgs, remaining)
		return CmdAsk, parsedArgs

	case "chat", "c":
		if NewArgParser(remaining, "raw").BoolFlag("raw") {
			parsedArgs.Options["raw"] = "true"
		}
		return CmdChat, parsedArgs

	case "serve", "server":
		parseNamedOptions(&parsedArgs, remaining, "addr", "upstream", "web-dir", "base-path")
		return CmdServe, parsedArgs

	case "models", "model", "ls":
		return CmdModels, parsedArgs

	case "history", "hist":
		if len(remaining) > 0 {
			parsedArgs.Subcommand = strings.ToLower(remaining[0])
		}
		return CmdHistory, parsedArgs

	case "listen", "voice":
		parseNamedOptions(&parsedArgs, remaining, "command", "silence")
		return CmdListen, parsedArgs

	case "config", "cfg":
		parseConfigArgs(&parsedArgs, remaining)
		return CmdConfig, parsedArgs

	case "version", "--version":
		return CmdVersion, parsedArgs

	case "help", "-h", "--help":
		return CmdHelp, parsedArgs

	default:
		// An unknown word is treated as a prompt: `rigchat why is the sky blue`
		parseAskArgs(&parsedArgs, append([]string{word}, remaining...))
		return CmdAsk, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	parsedArgs := Args{
		Options: make(map[string]string),
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "-v", "--verbose":
			parsedArgs.Verbose = true
		case "--json":
			parsedArgs.JSON = true
		case "-m", "--model", "--base-url", "--config":
			if i+1 < len(args) {
				i++
				setGlobalValue(&parsedArgs, arg, args[i])
			}
		default:
			if name, value, ok := strings.Cut(arg, "="); ok && isGlobalValueFlag(name) {
				setGlobalValue(&parsedArgs, name, value)
			} else {
				remaining = append(remaining, arg)
			}
		}
	}

	return remaining, parsedArgs
}

func isGlobalValueFlag(name string) bool {
	switch name {
	case "-m", "--model", "--base-url", "--config":
		return true
	}
	return false
}

func setGlobalValue(args *Args, name, value string) {
	switch name {
	case "-m", "--model":
		args.Model = value
	case "--base-url":
		args.BaseURL = value
	case "--config":
		args.ConfigFile = value
	}
}

// parseAskArgs parses ask command specific arguments.
func parseAskArgs(args *Args, remaining []string) {
	p := NewArgParser(remaining, "raw", "no-save")
	if p.BoolFlag("raw") {
		args.Options["raw"] = "true"
	}
	if p.BoolFlag("no-save") {
		args.Options["no-save"] = "true"
	}
	args.Query = JoinPositionalArgs(p, 0)
}

// parseConfigArgs parses config command specific arguments.
func parseConfigArgs(args *Args, remaining []string) {
	if len(remaining) > 0 {
		args.Subcommand = strings.ToLower(remaining[0])
		if len(remaining) > 1 {
			args.ConfigKey = remaining[1]
		}
		if len(remaining) > 2 {
			args.ConfigVal = strings.Join(remaining[2:], " ")
		}
	}
}

// parseNamedOptions copies the named --flag values into args.Options.
func parseNamedOptions(args *Args, remaining []string, names ...string) {
	p := NewArgParser(remaining)
	for _, name := range names {
		if v := p.Flag(name); v != "" {
			args.Options[name] = v
		}
	}
}

// =============================================================================
// DISPATCH
// =============================================================================

// Execute runs the handler for cmd.
func Execute(cmd Command, args Args) error {
	switch cmd {
	case CmdTUI:
		return HandleTUI(args)
	case CmdAsk:
		return HandleAsk(args)
	case CmdChat:
		return HandleChat(args)
	case CmdServe:
		return HandleServe(args)
	case CmdModels:
		return HandleModels(args)
	case CmdHistory:
		return HandleHistory(args)
	case CmdListen:
		return HandleListen(args)
	case CmdConfig:
		return HandleConfig(args)
	case CmdVersion:
		return HandleVersion(args)
	default:
		return HandleHelp()
	}
}

// =============================================================================
// SIMPLE HANDLERS
// =============================================================================

// HandleVersion handles the "version" command.
func HandleVersion(args Args) error {
	if args.JSON {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Print()
	}
	PrintVersion()
	return nil
}

// HandleHelp handles the "help" command.
func HandleHelp() error {
	PrintUsage()
	return nil
}
