// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for rigchat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// .env files, environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.rigchat/config.toml
//   - ~/.rigchat/config.json
//   - Built-in defaults
//
// RIGCHAT_HOME moves the whole directory.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil && cfg == nil {
//	    return err
//	}
//	fmt.Println(cfg.API.Model)
//
//	_ = cfg.Set("api.base_url", "https://llm.example.com")
//	_ = config.Save(cfg)
//
// A running process can follow edits:
//
//	go config.Watch(ctx, path, func(cfg *config.Config) { ... })
package config
