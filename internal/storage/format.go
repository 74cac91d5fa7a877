// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/util"
)

// =============================================================================
// LIST FORMATTING
// =============================================================================

// FormatList formats conversation metadata as a plain-text table.
func FormatList(metas []model.ConversationMeta) string {
	if len(metas) == 0 {
		return "No conversations found."
	}

	var sb strings.Builder
	rule := strings.Repeat("-", 78) + "\n"
	sb.WriteString(rule)
	sb.WriteString(util.PadRight("ID", 14) + " " + util.PadRight("Updated", 17) + " " +
		util.PadRight("Msgs", 5) + " Title\n")
	sb.WriteString(rule)

	for _, m := range metas {
		sb.WriteString(util.PadRight(shortID(m.ID), 14) + " " +
			util.PadRight(m.UpdatedAt.Format("2006-01-02 15:04"), 17) + " " +
			util.PadRight(strconv.Itoa(m.MessageCount), 5) + " " +
			util.TruncateWidth(m.Title, 38) + "\n")
	}
	return sb.String()
}

// shortID drops the "conv_" prefix and keeps the first 13 characters,
// enough to be unique in practice and accepted by Resolve.
func shortID(id string) string {
	id = strings.TrimPrefix(id, "conv_")
	if len(id) > 13 {
		id = id[:13]
	}
	return id
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportMarkdown renders the conversation as Markdown with role labels.
func ExportMarkdown(conv *model.Conversation) string {
	var sb strings.Builder
	sb.WriteString("# " + conv.Title() + "\n\n")
	sb.WriteString("Created: " + conv.CreatedAt().Format(time.RFC3339) + "\n\n")
	if m := conv.Model(); m != "" {
		sb.WriteString("Model: `" + m + "`\n\n")
	}
	sb.WriteString("---\n\n")

	for _, msg := range conv.Messages() {
		sb.WriteString("**" + msg.Role.DisplayName() + "** (" + msg.Timestamp.Format("15:04") + "):\n\n")
		sb.WriteString(msg.Content)
		if stats := msg.FormatStats(); stats != "" {
			sb.WriteString("\n\n_" + stats + "_")
		}
		sb.WriteString("\n\n---\n\n")
	}
	return sb.String()
}

// exportedConversation is the JSON shape of `history show --json`.
type exportedConversation struct {
	model.ConversationMeta
	Messages []model.Message `json:"messages"`
}

// ExportJSON exports the conversation as pretty-printed JSON.
func ExportJSON(conv *model.Conversation) ([]byte, error) {
	return json.MarshalIndent(exportedConversation{
		ConversationMeta: conv.Meta(),
		Messages:         conv.Messages(),
	}, "", "  ")
}
