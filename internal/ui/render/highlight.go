// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
)

// HighlightStyle is the chroma style used for terminal output.
const HighlightStyle = "monokai"

// Highlight colors code for a 256-color terminal. An empty or unknown
// language falls back to content analysis, then to plain text.
func Highlight(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get(HighlightStyle)
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}

// HighlightJSON colors a JSON document.
func HighlightJSON(doc string) string {
	return Highlight(doc, "json")
}

// CodeBlocks highlights fenced code blocks in markdown text and leaves the
// prose untouched. An unclosed fence runs to the end of text, which is the
// normal case while a reply is still streaming.
func CodeBlocks(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	var code []string
	var lang string
	inBlock := false

	flush := func() {
		out = append(out, strings.TrimRight(Highlight(strings.Join(code, "\n"), lang), "\n"))
		code = nil
		lang = ""
	}

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if inBlock {
				flush()
				inBlock = false
			} else {
				lang = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "```"))
				inBlock = true
			}
			continue
		}
		if inBlock {
			code = append(code, line)
		} else {
			out = append(out, line)
		}
	}
	if inBlock && len(code) > 0 {
		flush()
	}
	return strings.Join(out, "\n")
}
