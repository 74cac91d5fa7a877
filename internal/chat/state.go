// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

// State is the lifecycle position of one prompt/response exchange.
//
//	Idle -> Sent -> Streaming -> {Completed | Errored | Cancelled}
//
// Sent may also go straight to Errored or Cancelled.
type State int

const (
	StateIdle State = iota
	StateSent
	StateStreaming
	StateCompleted
	StateErrored
	StateCancelled
)

// String returns the display name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSent:
		return "Sent"
	case StateStreaming:
		return "Streaming"
	case StateCompleted:
		return "Completed"
	case StateErrored:
		return "Errored"
	case StateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateErrored || s == StateCancelled
}

// Active reports whether a request is in flight.
func (s State) Active() bool {
	return s == StateSent || s == StateStreaming
}

// canTransition guards the state machine.
func (s State) canTransition(to State) bool {
	switch s {
	case StateIdle:
		return to == StateSent
	case StateSent:
		return to == StateStreaming || to.Terminal()
	case StateStreaming:
		return to.Terminal()
	default:
		return false
	}
}
