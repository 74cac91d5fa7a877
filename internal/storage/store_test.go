// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/model"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// exchange builds a seeded conversation with one finished exchange.
func exchange(t *testing.T, prompt, reply string) *model.Conversation {
	t.Helper()
	conv := model.NewConversationWithSystem("You are chatting with a model.")
	conv.SetModel("gemma3:latest")
	require.NoError(t, conv.Append(model.NewUserMessage(prompt)))

	asst := model.NewAssistantMessage()
	require.NoError(t, conv.Append(asst))
	require.NoError(t, conv.AppendToLast(asst.ID, reply))

	stats := model.NewStatistics()
	stats.CompletionTokens = 12
	stats.TotalDuration = 2 * time.Second
	require.NoError(t, conv.FinalizeLast(asst.ID, stats))
	return conv
}

func TestStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	conv := exchange(t, "Hello there", "Hi! How can I help?")

	require.NoError(t, store.Save(ctx, conv))

	loaded, err := store.Load(ctx, conv.ID())
	require.NoError(t, err)
	assert.Equal(t, conv.ID(), loaded.ID())
	assert.Equal(t, "Hello there", loaded.Title())
	assert.Equal(t, "gemma3:latest", loaded.Model())

	want := conv.Messages()
	got := loaded.Messages()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Role, got[i].Role)
		assert.Equal(t, want[i].Content, got[i].Content)
		assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp), "timestamp %d", i)
	}
	assert.Equal(t, 12, got[2].TokenCount)
	assert.Equal(t, 2*time.Second, got[2].TotalDuration)
}

func TestStore_SaveTwiceReplacesMessages(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	conv := exchange(t, "first", "one")
	require.NoError(t, store.Save(ctx, conv))

	require.NoError(t, conv.Append(model.NewUserMessage("second")))
	require.NoError(t, store.Save(ctx, conv))

	loaded, err := store.Load(ctx, conv.ID())
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Len())

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_SkipsConversationWithoutUserMessage(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.Save(ctx, model.NewConversationWithSystem("sys")))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_LoadNotFound(t *testing.T) {
	store := openStore(t)
	_, err := store.Load(context.Background(), "conv_missing")
	assert.True(t, errors.Is(err, ErrConversationNotFound))
}

func TestStore_ListMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	older := exchange(t, "older question", "a")
	require.NoError(t, store.Save(ctx, older))
	time.Sleep(5 * time.Millisecond)
	newer := exchange(t, "newer question", "b")
	require.NoError(t, store.Save(ctx, newer))

	metas, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, newer.ID(), metas[0].ID)
	assert.Equal(t, 3, metas[0].MessageCount)
	assert.Equal(t, "newer question", metas[0].Preview)

	limited, err := store.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_Search(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.Save(ctx, exchange(t, "tell me about Go", "Go is a language")))
	require.NoError(t, store.Save(ctx, exchange(t, "weather today", "sunny, 100% humid")))

	hits, err := store.Search(ctx, "LANGUAGE", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "tell me about Go", hits[0].Title)

	// LIKE wildcards are literal
	hits, err = store.Search(ctx, "100%", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = store.Search(ctx, "_", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	conv := exchange(t, "bye", "ok")
	require.NoError(t, store.Save(ctx, conv))

	require.NoError(t, store.Delete(ctx, conv.ID()))
	_, err := store.Load(ctx, conv.ID())
	assert.ErrorIs(t, err, ErrConversationNotFound)
	assert.ErrorIs(t, store.Delete(ctx, conv.ID()), ErrConversationNotFound)
}

func TestStore_EnforcesLimit(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	store.MaxConversations = 2

	var ids []string
	for i := 0; i < 3; i++ {
		conv := exchange(t, "q", "a")
		require.NoError(t, store.Save(ctx, conv))
		ids = append(ids, conv.ID())
		time.Sleep(5 * time.Millisecond)
	}

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = store.Load(ctx, ids[0])
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestStore_Resolve(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	conv := exchange(t, "q", "a")
	require.NoError(t, store.Save(ctx, conv))

	id, err := store.Resolve(ctx, conv.ID())
	require.NoError(t, err)
	assert.Equal(t, conv.ID(), id)

	id, err = store.Resolve(ctx, shortID(conv.ID()))
	require.NoError(t, err)
	assert.Equal(t, conv.ID(), id)

	_, err = store.Resolve(ctx, "zzzz")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestFormatList(t *testing.T) {
	assert.Equal(t, "No conversations found.", FormatList(nil))

	conv := exchange(t, "a fairly long question about something", "a")
	out := FormatList([]model.ConversationMeta{conv.Meta()})
	assert.Contains(t, out, shortID(conv.ID()))
	assert.Contains(t, out, "a fairly long question")
	assert.False(t, strings.Contains(out, "conv_"))
}

func TestExport(t *testing.T) {
	conv := exchange(t, "hello", "**hi**")

	md := ExportMarkdown(conv)
	assert.Contains(t, md, "# hello")
	assert.Contains(t, md, "**hi**")
	assert.Contains(t, md, "12 tokens")

	data, err := ExportJSON(conv)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, conv.ID(), decoded["id"])
	assert.Len(t, decoded["messages"], 3)
}
