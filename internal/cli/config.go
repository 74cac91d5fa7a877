// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation for rigchat.
//
// Command: config [subcommand]
// Short:   View and modify configuration
// Aliases: cfg
//
// Subcommands:
//   show (default)      Display current configuration
//   set <key> <value>   Set a configuration value
//   keys                List configuration keys
//   path                Show configuration file path
//
// Examples:
//   rigchat config set api.model llama3.2
//   rigchat config set api.base_url http://gpu-box:11434
//   rigchat config set server.allowed_origins https://a.example,https://b.example
//   rigchat config set storage.enabled false
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

const configUsage = "rigchat config [show|set KEY VALUE|keys|path]"

// ConfigSetData is the --json payload of `config set`.
type ConfigSetData struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
	Path  string      `json:"path"`
}

// HandleConfig handles the "config" command.
func HandleConfig(args Args) error {
	switch args.Subcommand {
	case "", "show", "get":
		if args.ConfigKey != "" {
			return handleConfigGet(args)
		}
		return handleConfigShow(args)
	case "set":
		return handleConfigSet(args)
	case "keys":
		return handleConfigKeys(args)
	case "path":
		return handleConfigPath(args)
	default:
		return ErrUnknownSubcommand("config", args.Subcommand, configUsage)
	}
}

// configFilePath returns the file `config set` writes.
func configFilePath(args Args) (string, error) {
	if args.ConfigFile != "" {
		return args.ConfigFile, nil
	}
	return config.ConfigPathTOML()
}

func handleConfigShow(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("config show", cfg).Print()
	}

	path, _ := configFilePath(args)
	fmt.Fprintln(stdout, TitleStyle.Render("rigchat configuration"))
	fmt.Fprintln(stdout, DimStyle.Render(path))
	fmt.Fprintln(stdout)

	section := ""
	for _, key := range config.GetAllKeys() {
		if head, _, ok := strings.Cut(key, "."); ok && head != section {
			if section != "" {
				fmt.Fprintln(stdout)
			}
			section = head
			fmt.Fprintln(stdout, TitleStyle.Render("["+section+"]"))
		}
		value, err := cfg.Get(key)
		if err != nil {
			continue
		}
		printField(stdout, "  "+key, formatConfigValue(value))
	}
	return nil
}

func handleConfigGet(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	value, err := cfg.Get(args.ConfigKey)
	if err != nil {
		return &UsageError{Message: err.Error(), Usage: "rigchat config keys"}
	}
	if args.JSON {
		return NewJSONResponse("config get", map[string]interface{}{"key": args.ConfigKey, "value": value}).Print()
	}
	fmt.Fprintln(stdout, formatConfigValue(value))
	return nil
}

// handleConfigSet updates one key in the config file. Environment
// overrides are not applied, so they are never written back.
func handleConfigSet(args Args) error {
	if args.ConfigKey == "" || args.ConfigVal == "" {
		return ErrMissingArgument("KEY VALUE", "rigchat config set KEY VALUE")
	}

	path, err := configFilePath(args)
	if err != nil {
		return err
	}

	cfg := config.Default()
	if _, statErr := os.Stat(path); statErr == nil {
		load := config.LoadTOML
		if strings.HasSuffix(path, ".json") {
			load = config.LoadJSON
		}
		if err := load(cfg, path); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	if err := cfg.Set(args.ConfigKey, args.ConfigVal); err != nil {
		return &UsageError{Message: err.Error(), Usage: "rigchat config keys"}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	if strings.HasSuffix(path, ".json") {
		err = config.SaveJSON(cfg, path)
	} else {
		err = config.SaveTOML(cfg, path)
	}
	if err != nil {
		return err
	}

	value, _ := cfg.Get(args.ConfigKey)
	if args.JSON {
		return NewJSONResponse("config set", ConfigSetData{Key: args.ConfigKey, Value: value, Path: path}).Print()
	}
	fmt.Fprintln(stdout, styles.RenderSuccess(args.ConfigKey+" = "+formatConfigValue(value)))
	return nil
}

func handleConfigKeys(args Args) error {
	keys := config.GetAllKeys()
	if args.JSON {
		return NewJSONResponse("config keys", keys).Print()
	}
	for _, key := range keys {
		fmt.Fprintln(stdout, key)
	}
	return nil
}

func handleConfigPath(args Args) error {
	path, err := configFilePath(args)
	if err != nil {
		return err
	}
	_, statErr := os.Stat(path)
	exists := statErr == nil
	if statErr != nil && !errors.Is(statErr, os.ErrNotExist) {
		return statErr
	}

	if args.JSON {
		return NewJSONResponse("config path", map[string]interface{}{"path": path, "exists": exists}).Print()
	}
	fmt.Fprintln(stdout, path)
	if !exists && !args.Quiet {
		fmt.Fprintln(stderr, DimStyle.Render("(not created yet; defaults are in use)"))
	}
	return nil
}

func formatConfigValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return "(not set)"
		}
		return val
	case []string:
		if len(val) == 0 {
			return "(none)"
		}
		return strings.Join(val, ", ")
	default:
		return fmt.Sprint(val)
	}
}
