// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/ollama"
)

// Aggregator folds streamed fragments into one assistant message.
//
// It writes only to the message it was created for, and only while that
// message is still the conversation's last one. It does no locking of its
// own beyond the Conversation's; the Controller serializes calls.
type Aggregator struct {
	conv      *model.Conversation
	messageID string
	stats     *model.Statistics

	fragments int
	chars     int
}

// NewAggregator creates an aggregator targeting the message with messageID.
// stats may be nil.
func NewAggregator(conv *model.Conversation, messageID string, stats *model.Statistics) *Aggregator {
	if stats == nil {
		stats = model.NewStatistics()
	}
	return &Aggregator{
		conv:      conv,
		messageID: messageID,
		stats:     stats,
	}
}

// Apply appends the fragment's text delta to the target message and records
// any metrics it carries. Fragments with no text still count.
func (a *Aggregator) Apply(f ollama.Fragment) error {
	a.fragments++

	if f.Response != "" {
		a.stats.RecordFirstToken()
		if err := a.conv.AppendToLast(a.messageID, f.Response); err != nil {
			return err
		}
		a.chars += len(f.Response)
	}

	if f.HasStats() {
		a.stats.CompletionTokens = f.EvalCount
		a.stats.PromptTokens = f.PromptEvalCount
		a.stats.TotalDuration = time.Duration(f.TotalDuration)
		a.stats.TokensPerSecond = f.TokensPerSecond()
	}
	return nil
}

// Fragments returns how many fragments were applied.
func (a *Aggregator) Fragments() int {
	return a.fragments
}

// Bytes returns how many bytes of text were appended.
func (a *Aggregator) Bytes() int {
	return a.chars
}

// Stats returns the statistics being recorded.
func (a *Aggregator) Stats() *model.Statistics {
	return a.stats
}
