// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// DefaultWordWrap is used when no positive wrap width is configured.
const DefaultWordWrap = 80

// Markdown renders assistant replies for the terminal. A nil or failed
// renderer degrades to the raw text.
type Markdown struct {
	mu       sync.Mutex
	renderer *glamour.TermRenderer
	theme    string
	width    int
}

// NewMarkdown creates a renderer. theme is "dark", "light" or "auto".
func NewMarkdown(theme string, width int) *Markdown {
	m := &Markdown{theme: strings.ToLower(theme)}
	m.SetWidth(width)
	return m
}

// SetWidth rebuilds the renderer for a new wrap width.
func (m *Markdown) SetWidth(width int) {
	if width <= 0 {
		width = DefaultWordWrap
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.renderer != nil && width == m.width {
		return
	}
	m.width = width

	r, err := glamour.NewTermRenderer(styleOption(m.theme), glamour.WithWordWrap(width))
	if err != nil {
		// Fallback to plain text if renderer initialization fails
		m.renderer = nil
		return
	}
	m.renderer = r
}

// Width returns the current wrap width.
func (m *Markdown) Width() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.width
}

// Theme returns the style name the renderer was built with.
func (m *Markdown) Theme() string {
	return m.theme
}

// Render renders content, returning it unchanged on failure.
func (m *Markdown) Render(content string) string {
	if m == nil || strings.TrimSpace(content) == "" {
		return content
	}

	m.mu.Lock()
	r := m.renderer
	m.mu.Unlock()
	if r == nil {
		return content
	}

	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}

func styleOption(theme string) glamour.TermRendererOption {
	switch theme {
	case "dark":
		return glamour.WithStandardStyle("dark")
	case "light":
		return glamour.WithStandardStyle("light")
	case "plain", "notty":
		return glamour.WithStandardStyle("notty")
	default:
		return glamour.WithAutoStyle()
	}
}
