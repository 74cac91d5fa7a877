// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the interactive chat view for the rigchat TUI.

The view is a Bubble Tea model around a chat.Controller. It never touches
the transcript directly: the controller streams replies into its
conversation and the view renders Conversation.Messages().

# Event Flow

	notifier := &chat.Notifier{}
	ctrl := core.NewController(client, conv, core.WithObserver(notifier.Observe))
	p := tea.NewProgram(chat.New(chat.Options{Controller: ctrl}), tea.WithAltScreen())
	notifier.Attach(p)

Controller events arrive as EventMsg. They mark the transcript dirty; a
StreamTickMsg loop redraws at most DefaultMaxFPS times per second while a
reply streams. Terminal states redraw immediately and update the footer.

# Keys

  - Enter sends the input; a new send cancels any reply still streaming
  - Esc cancels the current reply and keeps the partial text
  - Ctrl+L starts a new conversation
  - Ctrl+C quits

# Rendering

Settled assistant replies go through glamour and are cached per message.
The reply that is still streaming only gets code block highlighting.
*/
package chat
