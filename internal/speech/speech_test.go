// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package speech

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// PARSE
// =============================================================================

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Event
		ok   bool
	}{
		{"blank", "   ", Event{}, false},
		{"plain text is final", "hello world", Event{Text: "hello world", Final: true}, true},
		{"interim json", `{"text":"hel","final":false}`, Event{Text: "hel"}, true},
		{"final json", `{"text":"hello","final":true}`, Event{Text: "hello", Final: true}, true},
		{"final defaults true", `{"text":"hi"}`, Event{Text: "hi", Final: true}, true},
		{"broken json is text", `{"text":`, Event{Text: `{"text":`, Final: true}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseLine(tc.line)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}

	ev, ok := ParseLine(`{"error":"no microphone"}`)
	require.True(t, ok)
	assert.EqualError(t, ev.Err, "no microphone")
}

// =============================================================================
// AUTO SUBMIT
// =============================================================================

type submissions struct {
	mu    sync.Mutex
	texts []string
}

func (s *submissions) add(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
}

func (s *submissions) get() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func TestAutoSubmitter_SubmitsAfterSilence(t *testing.T) {
	var got submissions
	sub := &AutoSubmitter{Silence: 50 * time.Millisecond, Submit: got.add}

	events := make(chan Event)
	done := make(chan error, 1)
	go func() { done <- sub.Run(context.Background(), events) }()

	events <- Event{Text: "what is"}
	events <- Event{Text: "the weather", Final: false}
	events <- Event{Text: "  the weather ", Final: true}
	events <- Event{Text: "what is", Final: true}

	// Nothing is submitted while results keep arriving inside the window
	assert.Empty(t, got.get())

	require.Eventually(t, func() bool { return len(got.get()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"the weather what is"}, got.get())

	// A second utterance starts a fresh transcript
	events <- Event{Text: "thanks", Final: true}
	require.Eventually(t, func() bool { return len(got.get()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "thanks", got.get()[1])

	close(events)
	assert.NoError(t, <-done)
}

func TestAutoSubmitter_NewFinalRestartsWindow(t *testing.T) {
	var got submissions
	sub := &AutoSubmitter{Silence: 150 * time.Millisecond, Submit: got.add}

	events := make(chan Event)
	go sub.Run(context.Background(), events)

	events <- Event{Text: "one", Final: true}
	time.Sleep(100 * time.Millisecond)
	events <- Event{Text: "two", Final: true}
	time.Sleep(100 * time.Millisecond)

	// 200ms since "one" but only 100ms since "two"
	assert.Empty(t, got.get())

	require.Eventually(t, func() bool { return len(got.get()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "one two", got.get()[0])
	close(events)
}

func TestAutoSubmitter_FlushesOnClose(t *testing.T) {
	var got submissions
	sub := &AutoSubmitter{Silence: time.Hour, Submit: got.add}

	events := make(chan Event, 2)
	events <- Event{Text: "pending", Final: true}
	close(events)

	require.NoError(t, sub.Run(context.Background(), events))
	assert.Equal(t, []string{"pending"}, got.get())
}

func TestAutoSubmitter_ErrorDropsPending(t *testing.T) {
	var got submissions
	sub := &AutoSubmitter{Silence: time.Hour, Submit: got.add}

	boom := errors.New("mic unplugged")
	events := make(chan Event, 2)
	events <- Event{Text: "pending", Final: true}
	events <- Event{Err: boom}

	err := sub.Run(context.Background(), events)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, got.get())
}

func TestAutoSubmitter_Cancel(t *testing.T) {
	sub := &AutoSubmitter{Submit: func(string) { t.Error("unexpected submit") }}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sub.Run(ctx, make(chan Event))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAutoSubmitter_OnUpdate(t *testing.T) {
	type update struct{ transcript, interim string }
	var updates []update
	sub := &AutoSubmitter{
		Silence:  time.Hour,
		Submit:   func(string) {},
		OnUpdate: func(tr, in string) { updates = append(updates, update{tr, in}) },
	}

	events := make(chan Event, 3)
	events <- Event{Text: "hel"}
	events <- Event{Text: "hello", Final: true}
	close(events)
	require.NoError(t, sub.Run(context.Background(), events))

	assert.Equal(t, []update{
		{"", "hel"},
		{"hello", ""},
		{"", ""},
	}, updates)
}

// =============================================================================
// COMMAND RECOGNIZER
// =============================================================================

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
}

func collect(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestCommandRecognizer_ReadsEvents(t *testing.T) {
	skipOnWindows(t)

	rec := NewCommandRecognizer(`printf '%s\n' '{"text":"hel","final":false}' '' 'hello there'`)
	require.NoError(t, rec.Start(context.Background()))

	events := collect(rec.Events())
	assert.Equal(t, []Event{
		{Text: "hel"},
		{Text: "hello there", Final: true},
	}, events)
}

func TestCommandRecognizer_FailureBecomesErrorEvent(t *testing.T) {
	skipOnWindows(t)

	rec := NewCommandRecognizer(`echo "no audio device" >&2; exit 3`)
	require.NoError(t, rec.Start(context.Background()))

	events := collect(rec.Events())
	require.Len(t, events, 1)
	require.Error(t, events[0].Err)
	assert.Contains(t, events[0].Err.Error(), "no audio device")
}

func TestCommandRecognizer_Stop(t *testing.T) {
	skipOnWindows(t)

	rec := NewCommandRecognizer(`echo ready; sleep 30`)
	require.NoError(t, rec.Start(context.Background()))
	assert.ErrorIs(t, rec.Start(context.Background()), ErrAlreadyListening)

	first := <-rec.Events()
	assert.Equal(t, "ready", first.Text)

	stopped := make(chan error, 1)
	go func() { stopped <- rec.Stop() }()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}

	// Stop is not an error
	for ev := range rec.Events() {
		assert.NoError(t, ev.Err)
	}
}

func TestCommandRecognizer_Errors(t *testing.T) {
	assert.ErrorIs(t, NewCommandRecognizer("  ").Start(context.Background()), ErrNoCommand)
	assert.ErrorIs(t, NewCommandRecognizer("true").Stop(), ErrNotListening)
}
