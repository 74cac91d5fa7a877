// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"log/slog"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	core "github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/ollama"
)

// Update handles all Bubble Tea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case EventMsg:
		return m.handleEvent(msg.Event)

	case StreamTickMsg:
		if m.frames.Ready(msg.Time) {
			m.refresh()
		}
		if m.state.Active() || m.frames.Dirty() {
			return m, streamTickCmd(m.frames.Interval())
		}
		m.ticking = false
		return m, nil

	case spinner.TickMsg:
		if !m.state.Active() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case ConfigMsg:
		m.applyConfig(msg)
		return m, nil

	case StatusMsg:
		m.status = msg.Text
		m.statusErr = msg.Error
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.ctrl.Cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if m.state.Active() {
			m.ctrl.Cancel()
		}
		return m, nil

	case key.Matches(msg, m.keys.Reset):
		m.ctrl.Reset(m.systemPrompt)
		m.state = core.StateIdle
		m.status = ""
		m.statusErr = false
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	_, err := m.ctrl.Send(m.ctx, m.input.Value())
	if errors.Is(err, core.ErrEmptyPrompt) {
		return m, nil
	}
	if err != nil {
		m.status = err.Error()
		m.statusErr = true
		return m, nil
	}

	m.input.Reset()
	m.status = ""
	m.statusErr = false
	m.state = m.ctrl.State()
	m.refresh()
	return m, m.startStreaming()
}

// startStreaming starts the frame tick and spinner unless already running.
func (m *Model) startStreaming() tea.Cmd {
	if m.ticking {
		return m.spinner.Tick
	}
	m.ticking = true
	return tea.Batch(streamTickCmd(m.frames.Interval()), m.spinner.Tick)
}

// =============================================================================
// CONTROLLER EVENTS
// =============================================================================

func (m Model) handleEvent(ev core.Event) (tea.Model, tea.Cmd) {
	m.frames.Mark()

	cur := m.ctrl.Current()
	if cur == nil || cur.ID != ev.SessionID {
		// Superseded session; its transcript changes are already final
		return m, nil
	}

	// The session is authoritative; events only say that something changed
	m.state = cur.State()
	if !m.state.Terminal() {
		return m, nil
	}

	m.lastStats = cur.Stats()
	switch m.state {
	case core.StateErrored:
		if err := cur.Err(); err != nil {
			m.status = err.Error()
			m.statusErr = true
		}
	case core.StateCancelled:
		m.status = "Cancelled"
		m.statusErr = false
	}
	m.refresh()
	return m, nil
}

// =============================================================================
// CONFIG RELOAD
// =============================================================================

func (m *Model) applyConfig(msg ConfigMsg) {
	cfg := msg.Config
	if cfg == nil {
		return
	}

	if cfg.API.Model != "" && cfg.API.Model != m.ctrl.Model() {
		m.ctrl.SetModel(cfg.API.Model)
	}
	m.systemPrompt = cfg.API.SystemPrompt

	base := ollama.ResolveBaseURL(cfg.API.BaseURL)
	if base != m.baseURL && m.newClient != nil {
		m.ctrl.SetClient(m.newClient(base))
		m.baseURL = base
	}
	if md := newMarkdownFor(cfg.UI.Theme, m.md); md != m.md {
		m.md = md
		m.cache = make(map[string]cachedMessage)
	}

	slog.Info("config reloaded", "component", "tui", "model", m.ctrl.Model(), "base_url", m.baseURL)
	m.status = "Config reloaded"
	m.statusErr = false
	m.refresh()
}

// =============================================================================
// LAYOUT
// =============================================================================

func (m *Model) setSize(width, height int) {
	m.width = width
	m.height = height
	m.theme.SetSize(width, height)
	m.help.Width = width

	vpHeight := height - headerHeight - inputHeight - footerHeight
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = width
	m.viewport.Height = vpHeight
	m.input.SetWidth(max(width-4, 10))

	m.md.SetWidth(bodyWidth(width))
	m.cache = make(map[string]cachedMessage)
	m.ready = true
	m.refresh()
}

// refresh re-renders the transcript into the viewport, following the tail
// when the view was already at the bottom.
func (m *Model) refresh() {
	follow := m.viewport.AtBottom() || m.state.Active()
	m.viewport.SetContent(m.renderTranscript())
	if follow {
		m.viewport.GotoBottom()
	}
}
