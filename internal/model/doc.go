// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// A Conversation is the transcript handed to presentation. It is ordered and
// append-only: the only in-place change ever made is to the trailing assistant
// message while a response is streaming into it.
//
// # Key Types
//
//   - Conversation: ordered transcript with metadata, safe for concurrent use
//   - Message: single message with role, content, timestamp and stream statistics
//   - Role: system, user or assistant
//   - Statistics: timing and token counts for one generation
//
// # Usage
//
//	conv := model.NewConversationWithSystem("You are chatting with a model.")
//	_ = conv.Append(model.NewUserMessage("Hello!"))
//
//	reply := model.NewAssistantMessage()
//	_ = conv.Append(reply)
//	_ = conv.AppendToLast(reply.ID, "Hi")
//	_ = conv.AppendToLast(reply.ID, " there")
//
//	for _, msg := range conv.Messages() {
//	    fmt.Printf("%s: %s\n", msg.Role.DisplayName(), msg.Content)
//	}
package model
