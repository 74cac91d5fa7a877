// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNilMessage is returned when appending a nil message.
	ErrNilMessage = errors.New("message is nil")

	// ErrInvalidRole is returned for roles outside system/user/assistant.
	ErrInvalidRole = errors.New("invalid message role")

	// ErrSystemNotFirst is returned when a system message would not seed the transcript.
	ErrSystemNotFirst = errors.New("system message may only seed an empty conversation")

	// ErrNotLast is returned when mutating a message that is no longer the trailing one.
	ErrNotLast = errors.New("message is not the last in the conversation")

	// ErrNotAssistant is returned when the trailing message is not an assistant message.
	ErrNotAssistant = errors.New("last message is not an assistant message")
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is the ordered transcript of a chat.
//
// Messages are append-only. The only in-place mutation allowed is on the
// trailing assistant message, addressed by ID so a stale writer can never
// touch a message that has since been superseded.
//
// Conversation is safe for concurrent use; readers get value snapshots.
type Conversation struct {
	mu sync.RWMutex

	id        string
	title     string
	model     string
	createdAt time.Time
	updatedAt time.Time

	messages []*Message
}

// NewConversation creates a new, empty conversation with a generated ID.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		id:        "conv_" + uuid.NewString(),
		createdAt: now,
		updatedAt: now,
		messages:  make([]*Message, 0),
	}
}

// NewConversationWithSystem creates a conversation seeded with a system prompt.
// An empty prompt yields an unseeded conversation.
func NewConversationWithSystem(prompt string) *Conversation {
	c := NewConversation()
	if prompt != "" {
		c.messages = append(c.messages, NewSystemMessage(prompt))
	}
	return c
}

// Restore rebuilds a conversation from persisted parts. Messages are copied.
func Restore(id, title, model string, createdAt, updatedAt time.Time, messages []Message) *Conversation {
	c := &Conversation{
		id:        id,
		title:     title,
		model:     model,
		createdAt: createdAt,
		updatedAt: updatedAt,
		messages:  make([]*Message, 0, len(messages)),
	}
	for i := range messages {
		msg := messages[i]
		c.messages = append(c.messages, &msg)
	}
	return c
}

// =============================================================================
// MUTATION
// =============================================================================

// Append adds msg to the end of the conversation.
func (c *Conversation) Append(msg *Message) error {
	if msg == nil {
		return ErrNilMessage
	}
	if !msg.Role.Valid() {
		return ErrInvalidRole
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.Role == RoleSystem && len(c.messages) > 0 {
		return ErrSystemNotFirst
	}

	c.messages = append(c.messages, msg)
	c.updatedAt = time.Now()
	if c.title == "" && msg.Role == RoleUser {
		c.title = msg.Preview(50)
	}
	return nil
}

// AppendToLast appends text to the trailing assistant message identified by id.
func (c *Conversation) AppendToLast(id, text string) error {
	return c.updateLast(id, func(m *Message) {
		m.Content += text
	})
}

// ReplaceLast overwrites the content of the trailing assistant message identified by id.
func (c *Conversation) ReplaceLast(id, text string) error {
	return c.updateLast(id, func(m *Message) {
		m.Content = text
	})
}

// FinalizeLast copies generation statistics onto the trailing assistant message.
func (c *Conversation) FinalizeLast(id string, stats *Statistics) error {
	if stats == nil {
		return nil
	}
	return c.updateLast(id, func(m *Message) {
		m.TTFT = stats.TTFT
		m.TotalDuration = stats.TotalDuration
		m.TokenCount = stats.CompletionTokens
		m.TokensPerSec = stats.TokensPerSecond
	})
}

func (c *Conversation) updateLast(id string, fn func(*Message)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.messages) == 0 {
		return ErrNotLast
	}
	last := c.messages[len(c.messages)-1]
	if last.ID != id {
		return ErrNotLast
	}
	if last.Role != RoleAssistant {
		return ErrNotAssistant
	}

	fn(last)
	c.updatedAt = time.Now()
	return nil
}

// SetModel records the model the conversation talks to.
func (c *Conversation) SetModel(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = model
}

// SetTitle manually sets the conversation title.
func (c *Conversation) SetTitle(title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.title = title
	c.updatedAt = time.Now()
}

// =============================================================================
// READ ACCESS
// =============================================================================

// Messages returns an ordered snapshot of every message.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = *m
	}
	return out
}

// Last returns a copy of the trailing message.
func (c *Conversation) Last() (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.messages) == 0 {
		return Message{}, false
	}
	return *c.messages[len(c.messages)-1], true
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return c.Len() == 0
}

// SystemPrompt returns the seeding system message content, if any.
func (c *Conversation) SystemPrompt() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.messages) > 0 && c.messages[0].Role == RoleSystem {
		return c.messages[0].Content
	}
	return ""
}

// ID returns the conversation ID.
func (c *Conversation) ID() string {
	return c.id
}

// Model returns the model recorded for the conversation.
func (c *Conversation) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// Title returns the conversation title or a default.
func (c *Conversation) Title() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.title != "" {
		return c.title
	}
	return "New Conversation"
}

// CreatedAt returns when the conversation was created.
func (c *Conversation) CreatedAt() time.Time {
	return c.createdAt
}

// UpdatedAt returns when the conversation last changed.
func (c *Conversation) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// EstimateTokens estimates the total token count of the conversation.
func (c *Conversation) EstimateTokens() int {
	total := 0
	for _, msg := range c.Messages() {
		// ~4 tokens of overhead per message
		total += msg.EstimateTokens() + 4
	}
	return total
}

// =============================================================================
// METADATA
// =============================================================================

// ConversationMeta holds lightweight metadata for listing.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Preview      string    `json:"preview"`
}

// Meta returns metadata about the conversation.
func (c *Conversation) Meta() ConversationMeta {
	msgs := c.Messages()
	preview := "Empty conversation"
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			preview = msgs[i].Preview(100)
			break
		}
	}

	return ConversationMeta{
		ID:           c.id,
		Title:        c.Title(),
		Model:        c.Model(),
		MessageCount: len(msgs),
		CreatedAt:    c.createdAt,
		UpdatedAt:    c.UpdatedAt(),
		Preview:      preview,
	}
}
