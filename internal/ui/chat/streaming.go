// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// FRAME LIMITER
// =============================================================================

// DefaultMaxFPS caps transcript redraws while a reply streams.
const DefaultMaxFPS = 30

// FrameLimiter coalesces stream events into redraws at a capped frame rate.
// The controller's observer marks it dirty from the stream goroutine; the
// Bubble Tea loop asks Ready on each tick.
//
// Redrawing on every fragment makes long replies flicker and burns CPU
// re-wrapping the whole transcript, so fragments only set a flag.
type FrameLimiter struct {
	mu        sync.Mutex
	dirty     bool
	lastFlush time.Time
	interval  time.Duration
}

// NewFrameLimiter creates a limiter for maxFPS frames per second.
// Values outside 1..60 use DefaultMaxFPS.
func NewFrameLimiter(maxFPS int) *FrameLimiter {
	if maxFPS <= 0 || maxFPS > 60 {
		maxFPS = DefaultMaxFPS
	}
	return &FrameLimiter{interval: time.Second / time.Duration(maxFPS)}
}

// Mark records that the transcript changed.
func (f *FrameLimiter) Mark() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirty = true
}

// Ready reports whether a redraw is due at now, and clears the dirty flag
// when it is.
func (f *FrameLimiter) Ready(now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dirty || now.Sub(f.lastFlush) < f.interval {
		return false
	}
	f.dirty = false
	f.lastFlush = now
	return true
}

// Dirty reports whether changes are waiting to be drawn.
func (f *FrameLimiter) Dirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty
}

// Interval returns the minimum time between redraws.
func (f *FrameLimiter) Interval() time.Duration {
	return f.interval
}

// =============================================================================
// STREAMING TICK COMMAND
// =============================================================================

// streamTickCmd sends StreamTickMsg at the frame interval.
func streamTickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return StreamTickMsg{Time: t}
	})
}
