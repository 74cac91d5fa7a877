// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package speech

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrNoCommand        = errors.New("speech: no recognizer command configured")
	ErrAlreadyListening = errors.New("speech: already listening")
	ErrNotListening     = errors.New("speech: not listening")
)

// =============================================================================
// CAPABILITY
// =============================================================================

// Event is one recognition result. Interim results may be revised by later
// events; final results are not.
type Event struct {
	Text  string
	Final bool
	Err   error
}

// Recognizer is a speech-to-text backend.
//
// Events is valid after Start and is closed when recognition ends, either
// because Stop was called, ctx was cancelled, or the backend finished.
type Recognizer interface {
	Start(ctx context.Context) error
	Stop() error
	Events() <-chan Event
}

// =============================================================================
// COMMAND RECOGNIZER
// =============================================================================

// CommandRecognizer runs an external speech-to-text program and reads its
// stdout. Each line is either a JSON object
//
//	{"text":"hello wor","final":false}
//	{"text":"hello world","final":true}
//	{"error":"microphone unavailable"}
//
// or plain text, which is taken as a final result.
type CommandRecognizer struct {
	command string

	mu      sync.Mutex
	events  chan Event
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool

	log *slog.Logger
}

// NewCommandRecognizer creates a recognizer for command, run through the
// platform shell.
func NewCommandRecognizer(command string) *CommandRecognizer {
	return &CommandRecognizer{
		command: strings.TrimSpace(command),
		log:     slog.Default().With("component", "speech"),
	}
}

// Start launches the command. It fails if the command is empty, cannot be
// started, or is already running.
func (r *CommandRecognizer) Start(ctx context.Context) error {
	if r.command == "" {
		return ErrNoCommand
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != nil {
		select {
		case <-r.done:
		default:
			return ErrAlreadyListening
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := shellCommand(ctx, r.command)
	cmd.WaitDelay = time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("speech: stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &limitedWriter{w: &stderr, n: 4096}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("speech: start %q: %w", r.command, err)
	}

	// Killing the shell can leave a child holding stdout open; closing our
	// end unblocks the reader on cancel.
	context.AfterFunc(ctx, func() { stdout.Close() })

	r.events = make(chan Event, 16)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.stopped = false

	r.log.Info("recognizer started", "command", r.command, "pid", cmd.Process.Pid)
	go r.read(ctx, cancel, cmd, stdout, &stderr, r.events, r.done)
	return nil
}

// Stop terminates the command and waits for Events to close.
func (r *CommandRecognizer) Stop() error {
	r.mu.Lock()
	if r.done == nil {
		r.mu.Unlock()
		return ErrNotListening
	}
	r.stopped = true
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Events returns the channel of the current run.
func (r *CommandRecognizer) Events() <-chan Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events
}

func (r *CommandRecognizer) wasStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *CommandRecognizer) read(ctx context.Context, cancel context.CancelFunc, cmd *exec.Cmd, stdout io.Reader, stderr *strings.Builder, events chan<- Event, done chan<- struct{}) {
	defer close(done)
	defer close(events)
	defer cancel()

	send := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		ev, ok := ParseLine(scanner.Text())
		if !ok {
			continue
		}
		if !send(ev) {
			break
		}
	}

	// Drain so the process isn't blocked writing to a full pipe
	_, _ = io.Copy(io.Discard, stdout)
	err := cmd.Wait()

	if err != nil && ctx.Err() == nil && !r.wasStopped() {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("speech: %s: %w", msg, err)
		} else {
			err = fmt.Errorf("speech: %w", err)
		}
		r.log.Warn("recognizer failed", "error", err)
		send(Event{Err: err})
		return
	}
	r.log.Info("recognizer stopped")
}

// ParseLine decodes one line of recognizer output. Blank lines are skipped.
func ParseLine(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Event{}, false
	}

	if strings.HasPrefix(line, "{") {
		var raw struct {
			Text  string `json:"text"`
			Final *bool  `json:"final"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(line), &raw); err == nil {
			if raw.Error != "" {
				return Event{Err: errors.New(raw.Error)}, true
			}
			final := raw.Final == nil || *raw.Final
			return Event{Text: raw.Text, Final: final}, true
		}
	}
	return Event{Text: line, Final: true}, true
}

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}

// limitedWriter keeps the first n bytes written to it.
type limitedWriter struct {
	w io.Writer
	n int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	total := len(p)
	if l.n <= 0 {
		return total, nil
	}
	if len(p) > l.n {
		p = p[:l.n]
	}
	n, err := l.w.Write(p)
	l.n -= n
	if err != nil {
		return n, err
	}
	return total, nil
}
