// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	core "github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/ui/render"
	"github.com/jeranaias/rigchat/internal/ui/styles"
	"github.com/jeranaias/rigchat/internal/util"
)

// View renders the full screen.
func (m Model) View() string {
	if !m.ready {
		return "Starting rigchat..."
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		m.viewport.View(),
		m.theme.InputContainer.Width(max(m.width-2, 1)).Render(m.input.View()),
		m.footerView(),
	)
}

// =============================================================================
// HEADER / FOOTER
// =============================================================================

func (m Model) headerView() string {
	title := m.theme.HeaderTitle.Render("rigchat")
	modelName := m.theme.HeaderModel.Render(m.ctrl.Model())
	return m.theme.Header.Width(m.width).Render(title + "  " + modelName)
}

func (m Model) footerView() string {
	sep := m.theme.Separator.Render(" | ")

	state := styles.StateIndicator(m.state) + " " + m.state.String()
	parts := []string{m.theme.StateStyle(m.state).Render(state)}
	if m.state.Active() {
		parts[0] = m.spinner.View() + " " + parts[0]
	}
	parts = append(parts,
		m.theme.StatusLabel.Render("model ")+m.theme.StatusValue.Render(m.ctrl.Model()),
		m.theme.StatusLabel.Render("api ")+m.theme.StatusValue.Render(m.baseURL),
	)
	if m.lastStats.TotalDuration > 0 && m.state.Terminal() {
		parts = append(parts, m.theme.StatsValue.Render(m.lastStats.Format()))
	}
	line := strings.Join(parts, sep)

	if m.status != "" {
		status := util.TruncateWidth(m.status, max(m.width-4, 10))
		if m.statusErr {
			line += "\n" + styles.RenderError(status)
		} else {
			line += "\n" + styles.RenderMuted(status)
		}
	} else {
		line += "\n" + m.help.View(m.keys)
	}
	return m.theme.StatusBar.Width(m.width).Render(line)
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// renderTranscript renders every message in conversation order.
func (m *Model) renderTranscript() string {
	msgs := m.ctrl.Conversation().Messages()

	activeID := ""
	if cur := m.ctrl.Current(); cur != nil && cur.State().Active() {
		activeID = cur.MessageID
	}

	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.renderMessage(msg, msg.ID == activeID))
	}
	return b.String()
}

func (m *Model) renderMessage(msg model.Message, active bool) string {
	width := bodyWidth(m.width)
	stamp := m.theme.Timestamp.Render(msg.Timestamp.Format("15:04"))

	switch msg.Role {
	case model.RoleSystem:
		return m.theme.SystemLabel.Width(width).Render("System: " + msg.Content)

	case model.RoleUser:
		header := m.theme.UserLabel.Render(msg.Role.DisplayName()) + " " + stamp
		return header + "\n" + m.theme.UserBody.Width(width).Render(msg.Content)
	}

	header := m.theme.AssistantLabel.Render(msg.Role.DisplayName()) + " " + stamp

	var body string
	switch {
	case active && msg.Content == "":
		body = m.theme.ThinkingText.Render("Thinking...")
	case msg.Content == core.ErrorText:
		body = m.theme.ErrorBody.Width(width).Render(msg.Content)
	case active:
		// Glamour re-layout per frame is too slow; highlight code only
		body = m.theme.AssistantBody.Width(width).Render(render.CodeBlocks(msg.Content))
	default:
		body = m.theme.AssistantBody.Render(m.renderMarkdown(msg))
	}

	out := header + "\n" + body
	if stats := msg.FormatStats(); stats != "" && !active {
		out += "\n" + m.theme.Timestamp.Render(stats)
	}
	return out
}

// renderMarkdown renders a settled reply, reusing earlier output.
func (m *Model) renderMarkdown(msg model.Message) string {
	if c, ok := m.cache[msg.ID]; ok && c.contentLen == len(msg.Content) {
		return c.rendered
	}
	rendered := m.md.Render(msg.Content)
	m.cache[msg.ID] = cachedMessage{contentLen: len(msg.Content), rendered: rendered}
	return rendered
}

// bodyWidth is the wrap width for message bodies inside the left border.
func bodyWidth(width int) int {
	if width <= 0 {
		return render.DefaultWordWrap
	}
	return max(width-4, 20)
}

// newMarkdownFor returns cur when it already uses theme, else a new renderer
// at the same width. An empty theme keeps cur.
func newMarkdownFor(theme string, cur *render.Markdown) *render.Markdown {
	theme = strings.ToLower(strings.TrimSpace(theme))
	if cur != nil && (theme == "" || cur.Theme() == theme) {
		return cur
	}
	width := render.DefaultWordWrap
	if cur != nil {
		width = cur.Width()
	}
	return render.NewMarkdown(theme, width)
}
