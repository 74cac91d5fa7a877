// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeranaias/rigchat/internal/chat"
)

func TestNewTheme_ForcedModes(t *testing.T) {
	dark := NewTheme("dark")
	assert.True(t, dark.IsDark)

	light := NewTheme("LIGHT")
	assert.False(t, light.IsDark)
}

func TestStateIndicator(t *testing.T) {
	tests := []struct {
		state chat.State
		want  string
	}{
		{chat.StateIdle, "[ ]"},
		{chat.StateSent, "[*]"},
		{chat.StateStreaming, "[*]"},
		{chat.StateCompleted, "[OK]"},
		{chat.StateErrored, "[X]"},
		{chat.StateCancelled, "[!]"},
	}
	for _, tc := range tests {
		if got := StateIndicator(tc.state); got != tc.want {
			t.Errorf("StateIndicator(%v) = %q, want %q", tc.state, got, tc.want)
		}
	}
}

func TestStateStyle_RendersText(t *testing.T) {
	theme := NewTheme("dark")
	for _, s := range []chat.State{chat.StateIdle, chat.StateStreaming, chat.StateCompleted, chat.StateErrored, chat.StateCancelled} {
		out := theme.StateStyle(s).Render(s.String())
		assert.Contains(t, out, s.String())
	}
}

func TestRenderHelpers_IncludeIndicators(t *testing.T) {
	assert.True(t, strings.Contains(RenderSuccess("done"), "[OK] done"))
	assert.True(t, strings.Contains(RenderError("bad"), "[X] bad"))
	assert.True(t, strings.Contains(RenderWarning("hmm"), "[!] hmm"))
	assert.True(t, strings.Contains(RenderInfo("fyi"), "[i] fyi"))
	assert.Contains(t, RenderMuted("quiet"), "quiet")
}

func TestLayoutMode(t *testing.T) {
	theme := NewTheme("dark")
	theme.SetSize(40, 20)
	assert.Equal(t, LayoutNarrow, theme.GetLayoutMode())
	theme.SetSize(80, 20)
	assert.Equal(t, LayoutMedium, theme.GetLayoutMode())
	theme.SetSize(120, 20)
	assert.Equal(t, LayoutWide, theme.GetLayoutMode())
}
