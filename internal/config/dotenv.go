// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// DotEnvFiles are read, in order, by LoadDotEnv. Earlier files win because
// godotenv never overwrites a variable that is already set.
var DotEnvFiles = []string{".env.local", ".env"}

// LoadDotEnv reads DotEnvFiles from the working directory into the process
// environment. Missing files are skipped. Variables already present in the
// environment are left untouched.
func LoadDotEnv() []string {
	var loaded []string
	for _, name := range DotEnvFiles {
		if _, err := os.Stat(name); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			continue
		}
		loaded = append(loaded, name)
	}
	return loaded
}

// ReadDotEnv parses a .env file without touching the environment.
func ReadDotEnv(path string) (map[string]string, error) {
	return godotenv.Read(path)
}
