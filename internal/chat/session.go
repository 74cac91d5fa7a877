// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jeranaias/rigchat/internal/model"
)

// Session is one in-flight (or finished) exchange started by Controller.Send.
//
// All fields are read-only after creation; state, statistics and error are
// read through accessors and change only under the owning Controller's lock.
type Session struct {
	ID        string
	MessageID string
	Prompt    string
	Model     string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	state State
	stats model.Statistics
	err   error
}

func newSession(parent context.Context, messageID, prompt, modelName string) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		ID:        "sess_" + uuid.NewString(),
		MessageID: messageID,
		Prompt:    prompt,
		Model:     modelName,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     StateIdle,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the transport error of an Errored session, else nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stats returns a copy of the session's statistics.
func (s *Session) Stats() model.Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Session) setStats(stats model.Statistics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
}

// Done is closed once the session's goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session's goroutine exits or ctx ends, and returns
// the state at that point.
func (s *Session) Wait(ctx context.Context) State {
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	return s.State()
}

// transition moves to next if the state machine allows it.
func (s *Session) transition(next State, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.canTransition(next) {
		return false
	}
	s.state = next
	if next == StateErrored {
		s.err = err
	}
	return true
}

// abort cancels the request context and marks the session Cancelled.
// Returns false if it had already ended.
func (s *Session) abort() bool {
	s.cancel()
	return s.transition(StateCancelled, nil)
}

// live reports whether the session may still mutate the transcript.
func (s *Session) live() bool {
	return s.ctx.Err() == nil && !s.State().Terminal()
}
