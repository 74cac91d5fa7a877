// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat drives prompt/response exchanges against a streaming generate API.
//
// A Controller owns the Conversation being written to and at most one
// in-flight Session. Each Send appends the user message and an empty
// assistant placeholder, then streams fragments into that placeholder
// through an Aggregator until the response body ends.
//
// # States
//
//	Idle -> Sent -> Streaming -> Completed
//	                          -> Errored    (placeholder replaced by ErrorText)
//	                          -> Cancelled  (partial reply kept, never touched again)
//
// # Usage
//
//	ctrl := chat.NewController(client, conv,
//	    chat.WithModel("gemma3:latest"),
//	    chat.WithObserver(func(ev chat.Event) { program.Send(ev) }),
//	)
//	session, err := ctrl.Send(ctx, "Hello")
//	if err != nil {
//	    return err
//	}
//	state := session.Wait(ctx)
package chat
