// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	core "github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/config"
)

// =============================================================================
// TEA MESSAGES
// =============================================================================

// EventMsg carries a controller event into the update loop.
type EventMsg struct {
	Event core.Event
}

// StreamTickMsg drives capped-rate redraws while a reply streams.
type StreamTickMsg struct {
	Time time.Time
}

// ConfigMsg delivers a reloaded configuration.
type ConfigMsg struct {
	Config *config.Config
}

// StatusMsg shows a transient line in the footer.
type StatusMsg struct {
	Text  string
	Error bool
}

// =============================================================================
// NOTIFIER
// =============================================================================

// Notifier forwards messages from other goroutines to a running program.
//
// The controller is built before the program exists, so its observer holds
// a Notifier and the program is attached later. Some controller events are
// emitted from inside Update (Send, Cancel), where a direct Program.Send
// would deadlock, so messages are queued and delivered in order by a pump
// goroutine. Messages sent while no program is attached are dropped.
type Notifier struct {
	mu      sync.Mutex
	program *tea.Program
	queue   []tea.Msg
	wake    chan struct{}
	stop    chan struct{}
}

// Attach connects p and starts delivery.
func (n *Notifier) Attach(p *tea.Program) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.program = p
	if n.stop == nil {
		n.wake = make(chan struct{}, 1)
		n.stop = make(chan struct{})
		go n.pump(n.wake, n.stop)
	}
}

// Close detaches the program and stops delivery. Queued messages are dropped.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stop != nil {
		close(n.stop)
		n.stop = nil
		n.wake = nil
	}
	n.program = nil
	n.queue = nil
}

// Send queues msg for the attached program. It never blocks.
func (n *Notifier) Send(msg tea.Msg) {
	n.mu.Lock()
	if n.program == nil {
		n.mu.Unlock()
		return
	}
	n.queue = append(n.queue, msg)
	wake := n.wake
	n.mu.Unlock()

	select {
	case wake <- struct{}{}:
	default:
	}
}

// Observe is a controller observer that forwards events as EventMsg.
func (n *Notifier) Observe(ev core.Event) {
	n.Send(EventMsg{Event: ev})
}

func (n *Notifier) pump(wake <-chan struct{}, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-wake:
		}
		for {
			n.mu.Lock()
			if len(n.queue) == 0 || n.program == nil {
				n.mu.Unlock()
				break
			}
			msg := n.queue[0]
			n.queue = n.queue[1:]
			p := n.program
			n.mu.Unlock()

			p.Send(msg)
		}
	}
}
