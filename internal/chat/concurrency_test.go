// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/model"
)

const (
	// Number of concurrent goroutines for race tests
	raceConcurrency = 20
	// Number of iterations per goroutine
	raceIterations = 10
	// Timeout for race tests
	raceTimeout = 10 * time.Second
)

// =============================================================================
// CONTROLLER CONCURRENCY TESTS
// =============================================================================

// TestConcurrency_SendCancelRead hammers one controller with sends, cancels
// and reads. Run with -race.
func TestConcurrency_SendCancelRead(t *testing.T) {
	srv := ndjsonServer(t, http.StatusOK,
		"{\"response\":\"Hel\"}\n",
		"{\"response\":\"lo\"}\n",
		"{\"done\":true,\"eval_count\":2}\n",
	)

	var hooks int64
	ctrl := newTestController(t, srv, WithFinishHook(func(*Session, *model.Conversation) {
		atomic.AddInt64(&hooks, 1)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), raceTimeout)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sessions []*Session
	)

	// Senders
	for i := 0; i < raceConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < raceIterations; j++ {
				if ctx.Err() != nil {
					return
				}
				s, err := ctrl.Send(ctx, "hi")
				if err != nil {
					t.Errorf("send: %v", err)
					return
				}
				mu.Lock()
				sessions = append(sessions, s)
				mu.Unlock()
			}
		}()
	}

	// Cancellers and readers
	for i := 0; i < raceConcurrency/2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < raceIterations; j++ {
				if ctx.Err() != nil {
					return
				}
				if idx%2 == 0 {
					ctrl.Cancel()
				}
				_ = ctrl.State()
				_ = ctrl.Streaming()
				_ = ctrl.Model()
				_ = ctrl.Conversation().Messages()
			}
		}(i)
	}

	wg.Wait()
	ctrl.Cancel()

	require.Len(t, sessions, raceConcurrency*raceIterations)
	for _, s := range sessions {
		state := waitState(t, s)
		assert.True(t, state.Terminal(), "session %s ended in %s", s.ID, state)
	}

	msgs := ctrl.Conversation().Messages()
	require.Len(t, msgs, 1+2*len(sessions))
	for i, m := range msgs[1:] {
		if i%2 == 0 {
			assert.Equal(t, model.RoleUser, m.Role)
		} else {
			assert.Equal(t, model.RoleAssistant, m.Role)
		}
	}

	assert.Equal(t, int64(len(sessions)), atomic.LoadInt64(&hooks), "finish hook must run once per session")
	assert.False(t, ctrl.Streaming())
}

// TestConcurrency_ObserverTerminalEvent checks that every racing session
// reports exactly one terminal event.
func TestConcurrency_ObserverTerminalEvent(t *testing.T) {
	srv := ndjsonServer(t, http.StatusOK, "{\"response\":\"ok\"}\n", "{\"done\":true}\n")

	var (
		mu   sync.Mutex
		seen = map[string][]State{}
	)
	ctrl := newTestController(t, srv, WithObserver(func(ev Event) {
		mu.Lock()
		seen[ev.SessionID] = append(seen[ev.SessionID], ev.State)
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	var sessions sync.Map
	for i := 0; i < raceConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := ctrl.Send(context.Background(), "hi")
			if err != nil {
				t.Errorf("send: %v", err)
				return
			}
			sessions.Store(s.ID, s)
		}()
	}
	wg.Wait()

	sessions.Range(func(_, v any) bool {
		waitState(t, v.(*Session))
		return true
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, raceConcurrency)
	for id, states := range seen {
		terminal := 0
		for _, st := range states {
			if st.Terminal() {
				terminal++
			}
		}
		assert.Equal(t, 1, terminal, "session %s: %v", id, states)
	}
}
