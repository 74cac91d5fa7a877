// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	core "github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/ollama"
	"github.com/jeranaias/rigchat/internal/ui/render"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

// Rows used by the header, input box and footer.
const (
	headerHeight = 1
	inputHeight  = 3
	footerHeight = 2
)

// ClientFactory builds a generator for a base URL. Used when a config reload
// changes the endpoint.
type ClientFactory func(baseURL string) core.Generator

// Options configures a Model.
type Options struct {
	Controller   *core.Controller
	Theme        *styles.Theme
	Markdown     *render.Markdown
	BaseURL      string
	SystemPrompt string

	// NewClient is used on config reloads; nil keeps the current client
	NewClient ClientFactory

	// Context bounds every send; defaults to context.Background()
	Context context.Context
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	ctrl         *core.Controller
	theme        *styles.Theme
	md           *render.Markdown
	newClient    ClientFactory
	ctx          context.Context
	baseURL      string
	systemPrompt string

	// Dimensions
	width  int
	height int
	ready  bool

	// UI Components
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	help     help.Model
	keys     KeyMap

	frames  *FrameLimiter
	ticking bool

	// Rendered completed messages, keyed by message ID
	cache map[string]cachedMessage

	// Footer state
	state     core.State
	lastStats model.Statistics
	status    string
	statusErr bool
}

type cachedMessage struct {
	contentLen int
	rendered   string
}

// New creates the chat model.
func New(opts Options) Model {
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme("auto")
	}
	md := opts.Markdown
	if md == nil {
		md = render.NewMarkdown("auto", render.DefaultWordWrap)
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = ollama.DefaultBaseURL
	}

	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(inputHeight - 2)
	// Enter submits; newline moves to its own binding
	ta.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    spinner.Line.FPS,
	}
	sp.Style = theme.Spinner

	return Model{
		ctrl:         opts.Controller,
		theme:        theme,
		md:           md,
		newClient:    opts.NewClient,
		ctx:          ctx,
		baseURL:      baseURL,
		systemPrompt: opts.SystemPrompt,
		viewport:     viewport.New(0, 0),
		input:        ta,
		spinner:      sp,
		help:         help.New(),
		keys:         DefaultKeyMap(),
		frames:       NewFrameLimiter(DefaultMaxFPS),
		cache:        make(map[string]cachedMessage),
		state:        core.StateIdle,
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// State returns the exchange state shown in the footer.
func (m Model) State() core.State {
	return m.state
}

// BaseURL returns the endpoint shown in the footer.
func (m Model) BaseURL() string {
	return m.baseURL
}

// Status returns the transient footer message.
func (m Model) Status() string {
	return m.status
}

// Input returns the current input text.
func (m Model) Input() string {
	return m.input.Value()
}

// SetInput replaces the input text.
func (m *Model) SetInput(text string) {
	m.input.SetValue(text)
}
