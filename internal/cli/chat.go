// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive line-mode chat for rigchat CLI.
//
// Command: chat
// Short:   Interactive chat session without the full-screen TUI
// Aliases: c
//
// Interactive Commands:
//   /help, /h           Show available commands
//   /clear, /c          Start a new conversation
//   /model [name]       Show or switch model
//   /history            Show this conversation
//   /load ID            Continue an archived conversation
//   /stats              Show statistics of the last reply
//   /quit, /q           Exit chat
//
// Keyboard Shortcuts:
//   Ctrl+C              Cancel the streaming reply (at the prompt: exit)
//   Ctrl+D              Exit chat
//   Up/Down             Navigate input history
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/util"
)

// historyFileName is the input history kept in the config directory.
const historyFileName = "chat_history"

// =============================================================================
// LINE INPUT
// =============================================================================

// lineReader reads one line of input. ChatCLI implements it; tests use a
// scripted reader.
type lineReader interface {
	ReadInput(prompt string) (string, error)
}

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new ChatCLI with input history support.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, historyFileName),
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		_, _ = c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// CHAT SESSION
// =============================================================================

// ChatSession is one run of the interactive chat.
type ChatSession struct {
	App     *App
	Args    Args
	Input   lineReader
	printer *streamPrinter

	started time.Time
	sent    int
	tokens  int
	last    *chat.Session
}

// HandleChat handles the "chat" command.
func HandleChat(args Args) error {
	if err := RequiresTTY("chat"); err != nil {
		return &UsageError{Message: err.Error(), Usage: `rigchat ask "prompt" for non-interactive use`}
	}

	printer := newStreamPrinter(stdout)
	app, err := newApp(args, appOptions{observers: []func(chat.Event){printer.Observe}})
	if err != nil {
		return err
	}
	defer app.Close()

	input := NewChatCLI()
	defer input.Close()

	session := &ChatSession{
		App:     app,
		Args:    args,
		Input:   input,
		printer: printer,
		started: time.Now(),
	}

	// Ctrl+C while a reply streams cancels it; at the prompt liner reports it
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			if app.Controller.Streaming() {
				app.Controller.Cancel()
			}
		}
	}()

	if !args.Quiet {
		session.printWelcome()
	}
	return session.Run(context.Background())
}

// Run is the read-eval-print loop. It returns on EOF, Ctrl+C at the
// prompt, or /quit.
func (s *ChatSession) Run(ctx context.Context) error {
	for {
		input, err := s.Input.ReadInput(PromptStyle.Render("rigchat> "))
		if err != nil {
			if !errors.Is(err, liner.ErrPromptAborted) && !errors.Is(err, io.EOF) {
				return err
			}
			fmt.Fprintln(stdout)
			s.printExitSummary()
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			keepGoing, err := s.handleSlashCommand(ctx, input)
			if err != nil {
				fmt.Fprintf(stderr, "%s %v\n", ErrorStyle.Render("[Error]"), err)
			}
			if !keepGoing {
				s.printExitSummary()
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			s.printExitSummary()
			return nil
		}

		if err := s.processMessage(ctx, input); err != nil {
			fmt.Fprintf(stderr, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		}
	}
}

// processMessage sends input and waits for the reply to settle.
func (s *ChatSession) processMessage(ctx context.Context, input string) error {
	sess, err := s.App.Controller.Send(ctx, input)
	if err != nil {
		return err
	}
	s.sent++
	s.last = sess

	state := sess.Wait(context.Background())
	reply, _ := s.App.Controller.Conversation().Last()
	printed := s.printer.Take()

	switch state {
	case chat.StateCompleted:
		finishReply(s.Args, s.App.Config.UI.WordWrap, printed, reply.Content)
		stats := sess.Stats()
		s.tokens += stats.CompletionTokens
		if !s.Args.Quiet {
			fmt.Fprintln(stdout, DimStyle.Render(stats.Format()))
		}
	case chat.StateCancelled:
		ensureNewline(printed)
		fmt.Fprintln(stderr, WarningStyle.Render("[Cancelled]"))
	default:
		ensureNewline(printed)
		fmt.Fprintln(stdout, ErrorStyle.Render(chat.ErrorText))
		if cause := sess.Err(); cause != nil {
			return cause
		}
	}
	fmt.Fprintln(stdout)
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes slash commands.
// Returns (keepGoing, error) where keepGoing=false means exit.
func (s *ChatSession) handleSlashCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true, nil
	}

	command := strings.ToLower(parts[0])
	rest := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		printChatHelp()
		return true, nil

	case "/clear", "/c", "/new":
		s.App.Controller.Reset(s.App.Config.API.SystemPrompt)
		s.last = nil
		fmt.Fprintln(stdout, DimStyle.Render("[Conversation cleared]"))
		return true, nil

	case "/model", "/m":
		return true, s.handleModelCommand(ctx, rest)

	case "/history":
		s.printHistory()
		return true, nil

	case "/load":
		if len(rest) == 0 {
			return true, ErrMissingArgument("ID", "/load ID")
		}
		return true, s.loadConversation(ctx, rest[0])

	case "/stats", "/s":
		s.printStats()
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
}

// handleModelCommand shows or switches the model.
func (s *ChatSession) handleModelCommand(ctx context.Context, args []string) error {
	ctrl := s.App.Controller
	if len(args) == 0 {
		printField(stdout, "Model:", ctrl.Model())
		return nil
	}

	name := args[0]
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if ok, err := s.App.Client.ModelExists(checkCtx, name); err == nil && !ok {
		fmt.Fprintf(stderr, "%s model %q is not installed on the server, using it anyway\n",
			WarningStyle.Render("[Warning]"), name)
	}

	ctrl.SetModel(name)
	fmt.Fprintf(stdout, "%s Switched to model: %s\n", TitleStyle.Render("[OK]"), name)
	return nil
}

// loadConversation swaps in an archived conversation.
func (s *ChatSession) loadConversation(ctx context.Context, ref string) error {
	store := s.App.Store
	if store == nil {
		return errors.New("conversation archive is disabled")
	}
	id, err := store.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	conv, err := store.Load(ctx, id)
	if err != nil {
		return err
	}
	s.App.Controller.SetConversation(conv)
	s.last = nil
	fmt.Fprintf(stdout, "%s Loaded %q (%d messages)\n", TitleStyle.Render("[OK]"), conv.Title(), conv.Len())
	return nil
}

// =============================================================================
// DISPLAY
// =============================================================================

func (s *ChatSession) printWelcome() {
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, TitleStyle.Render("rigchat interactive chat"))
	fmt.Fprintln(stdout, DimStyle.Render(strings.Repeat("─", 30)))
	printField(stdout, "Model:", s.App.Controller.Model())
	printField(stdout, "Server:", s.App.Client.BaseURL())
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, DimStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Fprintln(stdout)
}

func printChatHelp() {
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, TitleStyle.Render("Available Commands"))
	fmt.Fprintln(stdout, DimStyle.Render(strings.Repeat("─", 20)))

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/clear, /c", "Start a new conversation"},
		{"/model [name]", "Show or switch model"},
		{"/history", "Show this conversation"},
		{"/load ID", "Continue an archived conversation"},
		{"/stats, /s", "Show statistics of the last reply"},
		{"/quit, /q", "Exit chat"},
	}
	for _, c := range commands {
		fmt.Fprintf(stdout, "  %s  %s\n",
			PromptStyle.Render(fmt.Sprintf("%-15s", c.cmd)),
			DimStyle.Render(c.desc))
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, DimStyle.Render("Tip: Ctrl+C cancels the current reply, Ctrl+D exits"))
	fmt.Fprintln(stdout)
}

// printHistory prints the current conversation, one line per message.
func (s *ChatSession) printHistory() {
	msgs := s.App.Controller.Conversation().Messages()
	if len(msgs) == 0 {
		fmt.Fprintln(stdout, DimStyle.Render("[No messages yet]"))
		return
	}
	for i, msg := range msgs {
		fmt.Fprintf(stdout, "  %d. %s: %s\n", i+1, roleLabel(msg.Role), msg.Preview(100))
	}
}

func roleLabel(role model.Role) string {
	switch role {
	case model.RoleUser:
		return PromptStyle.Render(role.DisplayName())
	case model.RoleSystem:
		return WarningStyle.Render(role.DisplayName())
	default:
		return TitleStyle.Render(role.DisplayName())
	}
}

func (s *ChatSession) printStats() {
	if s.last == nil || !s.last.State().Terminal() {
		fmt.Fprintln(stdout, DimStyle.Render("[No completed reply yet]"))
		return
	}
	stats := s.last.Stats()
	printField(stdout, "State:", s.last.State().String())
	printField(stdout, "Model:", s.last.Model)
	printField(stdout, "Tokens:", fmt.Sprintf("%d", stats.CompletionTokens))
	printField(stdout, "Duration:", stats.TotalDuration.Round(time.Millisecond).String())
	printField(stdout, "First token:", stats.TTFT.Round(time.Millisecond).String())
	printField(stdout, "Speed:", fmt.Sprintf("%.1f tok/s", stats.TokensPerSecond))
}

func (s *ChatSession) printExitSummary() {
	if s.sent == 0 {
		fmt.Fprintln(stdout, DimStyle.Render("Goodbye!"))
		return
	}
	elapsed := time.Since(s.started).Round(time.Second)
	fmt.Fprintln(stdout, DimStyle.Render(fmt.Sprintf("%d messages, %d tokens in %s. Goodbye!",
		s.sent, s.tokens, elapsed)))
	if title := s.App.Controller.Conversation().Title(); title != "" && s.App.Store != nil {
		fmt.Fprintln(stdout, DimStyle.Render("Saved as "+util.TruncateWidth(title, 50)))
	}
}
