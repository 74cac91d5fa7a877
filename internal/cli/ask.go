// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - Single query command handler for rigchat CLI.
//
// Handles the "rigchat ask" command which sends one prompt and streams the
// reply to stdout as it arrives.
//
// Command: ask [prompt]
// Short:   Ask a single question
// Aliases: a
//
// Examples:
//   rigchat ask "What is the capital of France?"
//   rigchat ask --json "List three prime numbers"
//   git diff | rigchat ask -
//
// Flags:
//   -m, --model NAME    Use specific model (overrides config)
//   --raw               Print the reply as received, no markdown rendering
//   --no-save           Do not archive the exchange
//   --json              Output response as JSON
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/muesli/termenv"

	"github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/ui/render"
	"github.com/jeranaias/rigchat/internal/util"
)

// stdin is the prompt source for `ask -`. Tests replace it.
var stdin io.Reader = os.Stdin

// =============================================================================
// STREAM PRINTER
// =============================================================================

// streamPrinter writes reply deltas to w as controller events arrive and
// remembers what it printed so the text can be redrawn.
type streamPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	printed strings.Builder
}

func newStreamPrinter(w io.Writer) *streamPrinter {
	return &streamPrinter{w: w, enabled: true}
}

// Observe is a controller observer.
func (p *streamPrinter) Observe(ev chat.Event) {
	if ev.Delta == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	fmt.Fprint(p.w, ev.Delta)
	p.printed.WriteString(ev.Delta)
}

// SetEnabled turns printing on or off.
func (p *streamPrinter) SetEnabled(enabled bool) {
	p.mu.Lock()
	p.enabled = enabled
	p.mu.Unlock()
}

// Take returns what was printed since the last Take and resets it.
func (p *streamPrinter) Take() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.printed.String()
	p.printed.Reset()
	return s
}

// =============================================================================
// ASK HANDLER
// =============================================================================

// HandleAsk handles the "ask" command.
func HandleAsk(args Args) error {
	prompt, err := askPrompt(args)
	if err != nil {
		return err
	}

	printer := newStreamPrinter(stdout)
	printer.SetEnabled(!args.JSON)

	app, err := newApp(args, appOptions{
		noSave:    args.BoolOption("no-save"),
		observers: []func(chat.Event){printer.Observe},
	})
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return runAsk(ctx, app, args, prompt, printer)
}

// runAsk sends prompt and waits for the exchange to settle.
func runAsk(ctx context.Context, app *App, args Args, prompt string, printer *streamPrinter) error {
	s, err := app.Controller.Send(ctx, prompt)
	if err != nil {
		return err
	}
	state := s.Wait(context.Background())
	reply, _ := app.Controller.Conversation().Last()

	if args.JSON {
		return printAskJSON(prompt, s, reply)
	}

	printed := printer.Take()
	switch state {
	case chat.StateCompleted:
		finishReply(args, app.Config.UI.WordWrap, printed, reply.Content)
		if !args.Quiet && IsStdoutTTY() {
			fmt.Fprintln(stderr, DimStyle.Render(reply.FormatStats()))
		}
		return nil

	case chat.StateCancelled:
		ensureNewline(printed)
		fmt.Fprintln(stderr, WarningStyle.Render("[cancelled]"))
		return Silent(context.Canceled)

	default:
		ensureNewline(printed)
		fmt.Fprintln(stdout, chat.ErrorText)
		if cause := s.Err(); cause != nil {
			return fmt.Errorf("%w: %v", ErrExchangeFailed, cause)
		}
		return ErrExchangeFailed
	}
}

// askPrompt returns the prompt from the arguments, or from stdin for "-"
// or when nothing was given and stdin is piped.
func askPrompt(args Args) (string, error) {
	prompt := strings.TrimSpace(args.Query)
	if prompt == "-" || (prompt == "" && !IsTTY()) {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read prompt from stdin: %w", err)
		}
		prompt = strings.TrimSpace(string(data))
	}
	if prompt == "" {
		return "", ErrMissingArgument("prompt", `rigchat ask "your question"`)
	}
	return prompt, nil
}

// finishReply ends the streamed output. On a terminal, unless --raw, the
// raw text is replaced by its markdown rendering.
func finishReply(args Args, wordWrap int, printed, content string) {
	if args.BoolOption("raw") || !IsStdoutTTY() || content == "" {
		ensureNewline(printed)
		return
	}

	width := GetTerminalWidth()
	out := termenv.NewOutput(os.Stdout)
	out.ClearLines(terminalRows(printed, width))
	out.ClearLine()
	fmt.Fprint(out, "\r")

	md := render.NewMarkdown("auto", wrapWidth(wordWrap))
	fmt.Fprintln(stdout, md.Render(content))
}

// terminalRows counts the rows text occupied when printed at width columns.
// The cursor sits on the last row, which is not counted.
func terminalRows(text string, width int) int {
	if text == "" || width <= 0 {
		return 0
	}
	rows := 0
	for _, line := range strings.Split(text, "\n") {
		w := util.StringWidth(line)
		if w == 0 {
			rows++
			continue
		}
		rows += (w + width - 1) / width
	}
	return rows - 1
}

func ensureNewline(printed string) {
	if printed != "" && !strings.HasSuffix(printed, "\n") {
		fmt.Fprintln(stdout)
	}
}

func printAskJSON(prompt string, s *chat.Session, reply model.Message) error {
	data := AskData{
		Model:    s.Model,
		Prompt:   prompt,
		Response: reply.Content,
		State:    s.State().String(),
	}
	if s.State() == chat.StateCompleted {
		stats := s.Stats()
		data.Tokens = stats.CompletionTokens
		data.Duration = stats.TotalDuration.String()
		data.TokensPS = stats.TokensPerSecond
	}

	if s.State() == chat.StateCompleted {
		return NewJSONResponse("ask", data).Print()
	}

	err := s.Err()
	if err == nil {
		err = errors.New(s.State().String())
	}
	resp := NewJSONErrorResponse("ask", err)
	resp.Data = data
	if printErr := resp.Print(); printErr != nil {
		return printErr
	}
	if s.State() == chat.StateCancelled {
		return Silent(context.Canceled)
	}
	return Silent(fmt.Errorf("%w: %v", ErrExchangeFailed, err))
}
