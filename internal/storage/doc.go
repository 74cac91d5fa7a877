// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the transcript archive for rigchat.
//
// Conversations are written to a single SQLite database after every
// finished exchange, so `rigchat history` can list, show and delete them.
//
// # Key Types
//
//   - Store: SQLite-backed archive
//   - model.ConversationMeta: Lightweight metadata for listing
//
// # Usage
//
//	store, err := storage.Open(cfg.StoragePath())
//	defer store.Close()
//
//	err = store.Save(ctx, conv)
//	metas, err := store.List(ctx, 20)
//	conv, err := store.Load(ctx, metas[0].ID)
//
// # Storage Location
//
// ~/.rigchat/history.db unless storage.path is set.
package storage
