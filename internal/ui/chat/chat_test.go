// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"io"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/ollama"
	"github.com/jeranaias/rigchat/internal/ui/render"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

// pipeGen hands each Generate call a pipe so tests decide when bytes arrive.
type pipeGen struct {
	writers chan *io.PipeWriter
}

func newPipeGen() *pipeGen {
	return &pipeGen{writers: make(chan *io.PipeWriter, 4)}
}

func (g *pipeGen) Generate(ctx context.Context, model, prompt string) (*ollama.Stream, error) {
	pr, pw := io.Pipe()
	g.writers <- pw
	return ollama.NewStream(pr), nil
}

func (g *pipeGen) next(t *testing.T) *io.PipeWriter {
	t.Helper()
	select {
	case w := <-g.writers:
		return w
	case <-time.After(2 * time.Second):
		t.Fatal("generate was not called")
		return nil
	}
}

func newTestModel(t *testing.T, gen core.Generator) (Model, *core.Controller) {
	t.Helper()
	ctrl := core.NewController(gen, model.NewConversationWithSystem("be brief"), core.WithModel("gemma3:latest"))
	m := New(Options{
		Controller:   ctrl,
		Theme:        styles.NewTheme("dark"),
		Markdown:     render.NewMarkdown("dark", 80),
		BaseURL:      "http://inference.local:11434",
		SystemPrompt: "be brief",
	})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return updated.(Model), ctrl
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	m.SetInput(text)
	return m
}

func waitDone(t *testing.T, s *core.Session) core.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state := s.Wait(ctx)
	require.NoError(t, ctx.Err(), "session did not finish")
	return state
}

// =============================================================================
// VIEW
// =============================================================================

func TestView_BeforeSize(t *testing.T) {
	ctrl := core.NewController(newPipeGen(), nil)
	m := New(Options{Controller: ctrl, Theme: styles.NewTheme("dark")})
	assert.Equal(t, "Starting rigchat...", m.View())
}

func TestView_Footer(t *testing.T) {
	m, _ := newTestModel(t, newPipeGen())
	view := m.View()
	assert.Contains(t, view, "rigchat")
	assert.Contains(t, view, "gemma3:latest")
	assert.Contains(t, view, "http://inference.local:11434")
	assert.Contains(t, view, "Idle")
	assert.Contains(t, view, "be brief")
}

// =============================================================================
// SEND / STREAM
// =============================================================================

func TestSubmit_StartsExchange(t *testing.T) {
	gen := newPipeGen()
	m, ctrl := newTestModel(t, gen)

	m = typeText(t, m, "  hello  ")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)

	assert.Equal(t, "", m.Input())
	assert.True(t, m.State().Active())

	msgs := ctrl.Conversation().Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "hello", msgs[1].Content)
	assert.Equal(t, model.RoleAssistant, msgs[2].Role)
	assert.Contains(t, m.View(), "Thinking...")

	w := gen.next(t)
	_, _ = io.WriteString(w, `{"response":"Hi "}`+"\n"+`{"response":"there"}`+"\n")
	require.NoError(t, w.Close())
	s := ctrl.Current()
	assert.Equal(t, core.StateCompleted, waitDone(t, s))

	m, _ = update(t, m, EventMsg{Event: core.Event{SessionID: s.ID, MessageID: s.MessageID, State: core.StateCompleted}})
	assert.Equal(t, core.StateCompleted, m.State())
	view := m.View()
	assert.Contains(t, view, "Completed")
	assert.Contains(t, view, "there")
}

func TestSubmit_EmptyIgnored(t *testing.T) {
	m, ctrl := newTestModel(t, newPipeGen())
	m = typeText(t, m, "   ")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, core.StateIdle, m.State())
	assert.Equal(t, 1, ctrl.Conversation().Len())
}

func TestEscape_CancelsAndKeepsPartial(t *testing.T) {
	gen := newPipeGen()
	m, ctrl := newTestModel(t, gen)

	m = typeText(t, m, "long story")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	s := ctrl.Current()

	w := gen.next(t)
	_, _ = io.WriteString(w, `{"response":"Once upon"}`+"\n")
	require.Eventually(t, func() bool { return s.State() == core.StateStreaming }, 2*time.Second, 5*time.Millisecond)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, core.StateCancelled, waitDone(t, s))

	m, _ = update(t, m, EventMsg{Event: core.Event{SessionID: s.ID, State: core.StateCancelled}})
	assert.Equal(t, core.StateCancelled, m.State())
	assert.Equal(t, "Cancelled", m.Status())

	last, _ := ctrl.Conversation().Last()
	assert.Equal(t, "Once upon", last.Content)
}

func TestErroredReply(t *testing.T) {
	srvGen := errGen{}
	m, ctrl := newTestModel(t, srvGen)

	m = typeText(t, m, "hi")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	s := ctrl.Current()
	assert.Equal(t, core.StateErrored, waitDone(t, s))

	m, _ = update(t, m, EventMsg{Event: core.Event{SessionID: s.ID, State: core.StateErrored}})
	assert.Equal(t, core.StateErrored, m.State())
	assert.NotEmpty(t, m.Status())
	assert.Contains(t, m.View(), core.ErrorText)
}

type errGen struct{}

func (errGen) Generate(context.Context, string, string) (*ollama.Stream, error) {
	return nil, &ollama.ClientError{Type: ollama.ErrTypeConnection, Message: "refused"}
}

func TestStaleEventIgnored(t *testing.T) {
	m, _ := newTestModel(t, newPipeGen())
	m, _ = update(t, m, EventMsg{Event: core.Event{SessionID: "sess_old", State: core.StateCompleted}})
	assert.Equal(t, core.StateIdle, m.State())
}

func TestReset_NewConversation(t *testing.T) {
	gen := newPipeGen()
	m, ctrl := newTestModel(t, gen)

	m = typeText(t, m, "first")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	s := ctrl.Current()
	gen.next(t)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.Equal(t, core.StateCancelled, waitDone(t, s))
	assert.Equal(t, core.StateIdle, m.State())
	assert.Equal(t, 1, ctrl.Conversation().Len())
	assert.Equal(t, "be brief", ctrl.Conversation().SystemPrompt())
}

func TestQuit(t *testing.T) {
	m, _ := newTestModel(t, newPipeGen())
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

// =============================================================================
// CONFIG RELOAD
// =============================================================================

func TestConfigReload(t *testing.T) {
	ctrl := core.NewController(newPipeGen(), nil)
	var built []string
	m := New(Options{
		Controller: ctrl,
		Theme:      styles.NewTheme("dark"),
		Markdown:   render.NewMarkdown("dark", 80),
		BaseURL:    ollama.DefaultBaseURL,
		NewClient: func(base string) core.Generator {
			built = append(built, base)
			return newPipeGen()
		},
	})

	cfg := config.Default()
	cfg.API.Model = "llama3"
	cfg.API.BaseURL = "http://gpu-box:11434/"
	cfg.UI.Theme = "dark"

	m, _ = update(t, m, ConfigMsg{Config: cfg})
	assert.Equal(t, "llama3", ctrl.Model())
	assert.Equal(t, "http://gpu-box:11434", m.BaseURL())
	assert.Equal(t, []string{"http://gpu-box:11434"}, built)
	assert.Equal(t, "Config reloaded", m.Status())

	// Same endpoint does not rebuild the client
	m, _ = update(t, m, ConfigMsg{Config: cfg})
	assert.Len(t, built, 1)
}

// =============================================================================
// FRAME LIMITER / NOTIFIER
// =============================================================================

func TestFrameLimiter(t *testing.T) {
	f := NewFrameLimiter(10)
	assert.Equal(t, 100*time.Millisecond, f.Interval())

	now := time.Now()
	assert.False(t, f.Ready(now), "clean limiter is never ready")

	f.Mark()
	assert.True(t, f.Dirty())
	assert.True(t, f.Ready(now))
	assert.False(t, f.Dirty())

	f.Mark()
	assert.False(t, f.Ready(now.Add(50*time.Millisecond)), "inside the frame interval")
	assert.True(t, f.Ready(now.Add(100*time.Millisecond)))
}

func TestFrameLimiter_ClampsFPS(t *testing.T) {
	assert.Equal(t, time.Second/DefaultMaxFPS, NewFrameLimiter(0).Interval())
	assert.Equal(t, time.Second/DefaultMaxFPS, NewFrameLimiter(240).Interval())
}

func TestNotifier_DropsWithoutProgram(t *testing.T) {
	var n Notifier
	assert.NotPanics(t, func() {
		n.Observe(core.Event{SessionID: "sess_1"})
		n.Close()
	})
}
