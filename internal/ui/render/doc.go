// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render turns reply text into terminal output: glamour for
// markdown and chroma for code.
package render
