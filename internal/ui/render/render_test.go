// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdown_Render(t *testing.T) {
	m := NewMarkdown("dark", 40)
	out := m.Render("# Title\n\nSome **bold** text.")
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "bold")
	assert.NotContains(t, out, "**")
}

func TestMarkdown_BlankPassesThrough(t *testing.T) {
	m := NewMarkdown("auto", 0)
	assert.Equal(t, "", m.Render(""))
	assert.Equal(t, "  ", m.Render("  "))
	assert.Equal(t, DefaultWordWrap, m.Width())
}

func TestMarkdown_NilRenderer(t *testing.T) {
	var m *Markdown
	assert.Equal(t, "plain *text*", m.Render("plain *text*"))
}

func TestMarkdown_SetWidth(t *testing.T) {
	m := NewMarkdown("light", 60)
	m.SetWidth(100)
	assert.Equal(t, 100, m.Width())
	m.SetWidth(-1)
	assert.Equal(t, DefaultWordWrap, m.Width())
}

func TestHighlight_KeepsText(t *testing.T) {
	code := "package main\n\nfunc main() {}\n"
	out := Highlight(code, "go")
	require.NotEmpty(t, out)
	assert.Contains(t, out, "package")
	assert.Contains(t, out, "main")
	assert.NotEqual(t, code, out, "expected ANSI escapes")
}

func TestHighlight_UnknownLanguage(t *testing.T) {
	out := Highlight("just words", "no-such-language")
	assert.Contains(t, out, "just words")
}

func TestHighlightJSON(t *testing.T) {
	out := HighlightJSON(`{"id": "conv_1"}`)
	assert.Contains(t, out, "conv_1")
}

func TestCodeBlocks(t *testing.T) {
	text := "Intro line\n```go\nx := 1\n```\nOutro line"
	out := CodeBlocks(text)
	assert.True(t, strings.HasPrefix(out, "Intro line\n"))
	assert.True(t, strings.HasSuffix(out, "\nOutro line"))
	assert.NotContains(t, out, "```")
	assert.Contains(t, out, "x")
}

func TestCodeBlocks_Unclosed(t *testing.T) {
	out := CodeBlocks("Streaming\n```python\nprint('hi')")
	assert.NotContains(t, out, "```")
	assert.Contains(t, out, "print")
}

func TestCodeBlocks_NoFences(t *testing.T) {
	assert.Equal(t, "a\nb", CodeBlocks("a\nb"))
}
