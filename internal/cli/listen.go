// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// listen.go - Voice input command.
//
// Command: listen [--command CMD] [--silence MS]
// Short:   Send spoken prompts, transcribed by an external command
// Aliases: voice
//
// The recognizer command runs through the shell and prints one transcript
// per line. Final results accumulate until the silence window passes, then
// the transcript is sent like a typed prompt. Ctrl+C stops listening.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/speech"
	"github.com/jeranaias/rigchat/internal/util"
)

// HandleListen handles the "listen" command.
func HandleListen(args Args) error {
	printer := newStreamPrinter(stdout)
	app, err := newApp(args, appOptions{observers: []func(chat.Event){printer.Observe}})
	if err != nil {
		return err
	}
	defer app.Close()

	command := app.Config.Speech.Command
	if v := args.Option("command"); v != "" {
		command = v
	}
	if command == "" {
		return &UsageError{
			Message: "no speech command configured",
			Usage:   `rigchat listen --command "my-stt --stream"  (or set speech.command)`,
		}
	}

	silence := time.Duration(app.Config.Speech.SilenceMS) * time.Millisecond
	if v := args.Option("silence"); v != "" {
		ms, err := ParseIntWithValidation(v, "--silence")
		if err != nil {
			return &UsageError{Message: err.Error(), Usage: "rigchat listen --silence MS"}
		}
		silence = time.Duration(ms) * time.Millisecond
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !args.Quiet {
		fmt.Fprintf(stderr, "%s %s\n", TitleStyle.Render("Listening"),
			DimStyle.Render("(sends after "+strconv.Itoa(int(silence.Milliseconds()))+"ms of silence, Ctrl+C to stop)"))
	}

	err = runListen(ctx, app, speech.NewCommandRecognizer(command), silence, args, printer)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// listener connects recognized transcripts to the controller.
type listener struct {
	app     *App
	args    Args
	printer *streamPrinter
	ctx     context.Context

	// replies tracks reply goroutines so runListen can wait for the last one
	replies sync.WaitGroup
	outMu   sync.Mutex
}

// runListen starts rec and sends each transcript until rec ends or ctx is done.
func runListen(ctx context.Context, app *App, rec speech.Recognizer, silence time.Duration, args Args, printer *streamPrinter) error {
	if err := rec.Start(ctx); err != nil {
		return err
	}
	defer rec.Stop()

	l := &listener{app: app, args: args, printer: printer, ctx: ctx}
	submitter := &speech.AutoSubmitter{
		Silence: silence,
		Submit:  l.submit,
	}
	if IsStdoutTTY() && !args.Quiet {
		submitter.OnUpdate = l.showInterim
	}

	err := submitter.Run(ctx, rec.Events())
	l.replies.Wait()
	return err
}

// submit sends text. A transcript that arrives while a reply streams
// supersedes it.
func (l *listener) submit(text string) {
	l.outMu.Lock()
	fmt.Fprintf(stdout, "%s %s\n", PromptStyle.Render("you>"), text)
	l.outMu.Unlock()

	s, err := l.app.Controller.Send(l.ctx, text)
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		return
	}

	l.replies.Add(1)
	go func() {
		defer l.replies.Done()
		state := s.Wait(context.Background())

		l.outMu.Lock()
		defer l.outMu.Unlock()
		printed := l.printer.Take()
		ensureNewline(printed)
		switch state {
		case chat.StateCompleted:
			if !l.args.Quiet {
				stats := s.Stats()
				fmt.Fprintln(stdout, DimStyle.Render(stats.Format()))
			}
		case chat.StateCancelled:
			fmt.Fprintln(stderr, WarningStyle.Render("[Cancelled]"))
		default:
			fmt.Fprintln(stdout, ErrorStyle.Render(chat.ErrorText))
		}
	}()
}

// showInterim redraws the pending transcript on the current line.
func (l *listener) showInterim(transcript, interim string) {
	line := transcript
	if interim != "" {
		if line != "" {
			line += " "
		}
		line += DimStyle.Render(interim)
	}
	l.outMu.Lock()
	defer l.outMu.Unlock()
	fmt.Fprintf(stderr, "\r\033[K%s", util.TruncateWidth(line, GetTerminalWidth()-1))
	if line == "" {
		fmt.Fprint(stderr, "\r")
	}
}
