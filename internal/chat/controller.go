// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/ollama"
)

// ErrorText replaces the assistant placeholder when a request fails.
const ErrorText = "Error: failed to load response."

// ErrEmptyPrompt is returned by Send for a prompt that is blank after trimming.
var ErrEmptyPrompt = errors.New("prompt is empty")

// Generator opens a streaming generate request.
// *ollama.Client implements it.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (*ollama.Stream, error)
}

// Event reports a change to a session. Delta is set for Streaming events
// that appended text.
type Event struct {
	SessionID string
	MessageID string
	State     State
	Delta     string
	Err       error
}

// =============================================================================
// OPTIONS
// =============================================================================

// Option configures a Controller.
type Option func(*Controller)

// WithModel sets the model requested for each send.
func WithModel(name string) Option {
	return func(c *Controller) { c.model = name }
}

// WithObserver registers fn to receive every Event. fn is called without
// the Controller's lock held and must not block for long.
func WithObserver(fn func(Event)) Option {
	return func(c *Controller) { c.observers = append(c.observers, fn) }
}

// WithFinishHook registers fn to run once a session reaches a terminal state.
// Hooks run on the session's goroutine, before its Done channel is closed.
func WithFinishHook(fn func(*Session, *model.Conversation)) Option {
	return func(c *Controller) { c.finishHooks = append(c.finishHooks, fn) }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller sends prompts and streams replies into a Conversation.
//
// At most one request is in flight. Send cancels the previous session before
// starting the next, under the same lock that guards transcript mutation,
// so a superseded session can never write after it was cancelled.
//
// Controller is safe for concurrent use.
type Controller struct {
	client Generator

	mu      sync.Mutex
	conv    *model.Conversation
	model   string
	current *Session

	running sync.WaitGroup

	observers   []func(Event)
	finishHooks []func(*Session, *model.Conversation)
	log         *slog.Logger
}

// NewController creates a controller streaming into conv.
func NewController(client Generator, conv *model.Conversation, opts ...Option) *Controller {
	if conv == nil {
		conv = model.NewConversation()
	}
	c := &Controller{
		client: client,
		conv:   conv,
		model:  ollama.DefaultModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.log = c.log.With("component", "chat")
	c.conv.SetModel(c.model)
	return c
}

// Send starts a new exchange for prompt and returns immediately.
//
// The prompt is trimmed; a blank prompt returns ErrEmptyPrompt with no side
// effects. Otherwise any in-flight session is cancelled, the user message and
// an empty assistant placeholder are appended, and the response streams into
// the placeholder on a new goroutine. The session lives until the stream
// ends, it is superseded, Cancel is called, or ctx is done.
func (c *Controller) Send(ctx context.Context, prompt string) (*Session, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	c.mu.Lock()

	if err := c.conv.Append(model.NewUserMessage(prompt)); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	reply := model.NewAssistantMessage()
	if err := c.conv.Append(reply); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	// prev cannot write once aborted under c.mu
	prev := c.current
	prevCancelled := prev != nil && prev.abort()

	s := newSession(ctx, reply.ID, prompt, c.model)
	s.transition(StateSent, nil)
	c.current = s
	conv := c.conv
	client := c.client

	c.mu.Unlock()

	c.emitCancelled(prev, prevCancelled)
	c.log.Debug("send", "session", s.ID, "model", s.Model, "prompt_len", len(prompt))
	c.emit(Event{SessionID: s.ID, MessageID: s.MessageID, State: StateSent})

	c.running.Add(1)
	go c.run(s, conv, client)
	return s, nil
}

// Cancel stops the in-flight session, if any. The partial reply is kept.
func (c *Controller) Cancel() {
	c.mu.Lock()
	s := c.current
	cancelled := s != nil && s.abort()
	c.mu.Unlock()

	c.emitCancelled(s, cancelled)
}

// Wait blocks until every session started by Send has ended and its finish
// hooks have run, or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset cancels any in-flight session and starts a fresh conversation
// seeded with systemPrompt.
func (c *Controller) Reset(systemPrompt string) *model.Conversation {
	return c.SetConversation(model.NewConversationWithSystem(systemPrompt))
}

// SetConversation cancels any in-flight session and streams into conv from now on.
func (c *Controller) SetConversation(conv *model.Conversation) *model.Conversation {
	c.mu.Lock()
	s := c.current
	cancelled := s != nil && s.abort()
	c.current = nil
	c.conv = conv
	conv.SetModel(c.model)
	c.mu.Unlock()

	c.emitCancelled(s, cancelled)
	return conv
}

// Conversation returns the conversation replies stream into.
func (c *Controller) Conversation() *model.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv
}

// Current returns the most recent session, or nil.
func (c *Controller) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// State returns the state of the most recent session, or StateIdle.
func (c *Controller) State() State {
	s := c.Current()
	if s == nil {
		return StateIdle
	}
	return s.State()
}

// Streaming reports whether a request is in flight.
func (c *Controller) Streaming() bool {
	return c.State().Active()
}

// SetModel changes the model used by subsequent sends.
func (c *Controller) SetModel(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = name
	c.conv.SetModel(name)
}

// SetClient replaces the generator used by subsequent sends. An in-flight
// session keeps the client it started with.
func (c *Controller) SetClient(client Generator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.client = client
}

// Model returns the model used for sends.
func (c *Controller) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// =============================================================================
// SESSION LOOP
// =============================================================================

// run streams the reply for s. Every path ends in finish, and the finish
// hooks run on this goroutine before Done is closed, whoever ended the session.
func (c *Controller) run(s *Session, conv *model.Conversation, client Generator) {
	defer c.running.Done()
	defer close(s.done)
	defer c.runFinishHooks(s, conv)

	stream, err := client.Generate(s.ctx, s.Model, s.Prompt)
	if err != nil {
		c.finish(s, conv, nil, err)
		return
	}
	defer stream.Close()

	// Unblock a pending read as soon as the session is cancelled
	stop := context.AfterFunc(s.ctx, func() { stream.Close() })
	defer stop()

	agg := NewAggregator(conv, s.MessageID, model.NewStatistics())
	for {
		f, err := stream.Next()
		if errors.Is(err, io.EOF) {
			c.finish(s, conv, agg, nil)
			return
		}
		if err != nil {
			c.finish(s, conv, agg, err)
			return
		}
		if f.Error != "" {
			c.finish(s, conv, agg, &ollama.ClientError{Type: ollama.ErrTypeInvalidResponse, Message: f.Error})
			return
		}
		if err := c.apply(s, agg, f); err != nil {
			c.finish(s, conv, agg, err)
			return
		}
	}
}

// apply folds one fragment into the transcript if s is still current.
// A non-nil error ends the session.
func (c *Controller) apply(s *Session, agg *Aggregator, f ollama.Fragment) error {
	c.mu.Lock()
	if c.current != s || !s.live() {
		c.mu.Unlock()
		return context.Canceled
	}

	s.transition(StateStreaming, nil)
	if err := agg.Apply(f); err != nil {
		// The placeholder is no longer last; nothing more to write
		c.mu.Unlock()
		c.log.Warn("apply fragment", "session", s.ID, "error", err)
		return err
	}
	s.setStats(*agg.Stats())
	c.mu.Unlock()

	c.emit(Event{SessionID: s.ID, MessageID: s.MessageID, State: StateStreaming, Delta: f.Response})
	return nil
}

// finish moves s to its terminal state. err is nil at end of stream.
func (c *Controller) finish(s *Session, conv *model.Conversation, agg *Aggregator, err error) {
	c.mu.Lock()

	if c.current != s || !s.live() {
		// Superseded, reset, or its context ended: a handled termination
		cancelled := s.abort()
		c.mu.Unlock()
		c.emitCancelled(s, cancelled)
		return
	}

	var next State
	if err != nil {
		next = StateErrored
		if rerr := conv.ReplaceLast(s.MessageID, ErrorText); rerr != nil {
			c.log.Warn("replace placeholder", "session", s.ID, "error", rerr)
		}
	} else {
		next = StateCompleted
		if agg != nil {
			agg.Stats().Finalize()
			s.setStats(*agg.Stats())
			if ferr := conv.FinalizeLast(s.MessageID, agg.Stats()); ferr != nil {
				c.log.Warn("finalize reply", "session", s.ID, "error", ferr)
			}
		}
	}
	s.transition(next, err)
	s.cancel()
	c.mu.Unlock()

	if err != nil {
		c.log.Error("stream failed", "session", s.ID, "model", s.Model, "error", err)
	} else {
		stats := s.Stats()
		c.log.Info("stream completed", "session", s.ID, "model", s.Model,
			"tokens", stats.CompletionTokens, "duration", stats.TotalDuration)
	}

	c.emit(Event{SessionID: s.ID, MessageID: s.MessageID, State: next, Err: err})
}

// =============================================================================
// NOTIFICATION
// =============================================================================

func (c *Controller) emit(ev Event) {
	for _, fn := range c.observers {
		fn(ev)
	}
}

func (c *Controller) emitCancelled(s *Session, cancelled bool) {
	if s == nil || !cancelled {
		return
	}
	c.log.Debug("stream cancelled", "session", s.ID)
	c.emit(Event{SessionID: s.ID, MessageID: s.MessageID, State: StateCancelled})
}

func (c *Controller) runFinishHooks(s *Session, conv *model.Conversation) {
	for _, fn := range c.finishHooks {
		fn(s, conv)
	}
}
