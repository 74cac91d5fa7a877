// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrConversationNotFound is returned when a conversation doesn't exist.
// Use errors.Is(err, ErrConversationNotFound) to check for this error.
var ErrConversationNotFound = &ConversationError{Message: "conversation not found"}

// ErrDatabaseError wraps driver failures.
var ErrDatabaseError = errors.New("database error")

// ConversationError represents a conversation-related error.
type ConversationError struct {
	Message string
}

// Error implements the error interface.
func (e *ConversationError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing conversation errors.
func (e *ConversationError) Is(target error) bool {
	t, ok := target.(*ConversationError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// STORE
// =============================================================================

// DefaultMaxConversations bounds the archive; the oldest entries are pruned.
const DefaultMaxConversations = 500

// Store is the SQLite transcript archive.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex

	// MaxConversations limits stored conversations (0 = unlimited)
	MaxConversations int
}

// Open opens (creating if needed) the archive at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if path != ":memory:" {
		_ = os.Chmod(path, 0600)
	}

	return &Store{
		db:               db,
		path:             path,
		MaxConversations: DefaultMaxConversations,
	}, nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// =============================================================================
// SAVE
// =============================================================================

// Save writes the conversation and replaces its stored messages.
// Conversations with no user message are not archived.
func (s *Store) Save(ctx context.Context, conv *model.Conversation) error {
	msgs := conv.Messages()
	if !hasUserMessage(msgs) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, title, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			model = excluded.model,
			updated_at = excluded.updated_at`,
		conv.ID(), conv.Title(), conv.Model(),
		conv.CreatedAt().UnixNano(), conv.UpdatedAt().UnixNano())
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", conv.ID()); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (conversation_id, seq, id, role, content, timestamp,
			token_count, ttft_ns, duration_ns, tokens_per_sec)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range msgs {
		_, err := stmt.ExecContext(ctx, conv.ID(), i, m.ID, string(m.Role), m.Content,
			m.Timestamp.UnixNano(), m.TokenCount, int64(m.TTFT), int64(m.TotalDuration), m.TokensPerSec)
		if err != nil {
			return fmt.Errorf("save message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	if s.MaxConversations > 0 {
		s.enforceLimit(ctx)
	}
	return nil
}

// enforceLimit removes the oldest conversations if over limit.
// Callers hold s.mu.
func (s *Store) enforceLimit(ctx context.Context) {
	_, _ = s.db.ExecContext(ctx, `
		DELETE FROM conversations WHERE id IN (
			SELECT id FROM conversations
			ORDER BY updated_at DESC
			LIMIT -1 OFFSET ?
		)`, s.MaxConversations)
}

func hasUserMessage(msgs []model.Message) bool {
	for _, m := range msgs {
		if m.Role == model.RoleUser {
			return true
		}
	}
	return false
}

// =============================================================================
// LOAD
// =============================================================================

// Load rebuilds a conversation by ID.
func (s *Store) Load(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		title, modelName     string
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT title, model, created_at, updated_at FROM conversations WHERE id = ?", id).
		Scan(&title, &modelName, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, timestamp, token_count, ttft_ns, duration_ns, tokens_per_sec
		FROM messages WHERE conversation_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var (
			m               model.Message
			role            string
			ts, ttft, total int64
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &ts, &m.TokenCount, &ttft, &total, &m.TokensPerSec); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		m.Role = model.Role(role)
		m.Timestamp = time.Unix(0, ts)
		m.TTFT = time.Duration(ttft)
		m.TotalDuration = time.Duration(total)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return model.Restore(id, title, modelName, time.Unix(0, createdAt), time.Unix(0, updatedAt), msgs), nil
}

// =============================================================================
// LIST / SEARCH
// =============================================================================

const listQuery = `
	SELECT c.id, c.title, c.model, c.created_at, c.updated_at,
		(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id),
		COALESCE((SELECT m.content FROM messages m
			WHERE m.conversation_id = c.id AND m.role = 'user'
			ORDER BY m.seq DESC LIMIT 1), '')
	FROM conversations c`

// List returns saved conversations, most recent first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) ([]model.ConversationMeta, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryMetas(ctx, listQuery+" ORDER BY c.updated_at DESC LIMIT ?", limit)
}

// Search finds conversations whose title or any message contains query
// (case-insensitive).
func (s *Store) Search(ctx context.Context, query string, limit int) ([]model.ConversationMeta, error) {
	if strings.TrimSpace(query) == "" {
		return s.List(ctx, limit)
	}
	if limit <= 0 {
		limit = -1
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	return s.queryMetas(ctx, listQuery+`
		WHERE lower(c.title) LIKE ? ESCAPE '\'
			OR EXISTS (SELECT 1 FROM messages m
				WHERE m.conversation_id = c.id AND lower(m.content) LIKE ? ESCAPE '\')
		ORDER BY c.updated_at DESC LIMIT ?`, pattern, pattern, limit)
}

func (s *Store) queryMetas(ctx context.Context, query string, args ...any) ([]model.ConversationMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	metas := []model.ConversationMeta{}
	for rows.Next() {
		var (
			meta                 model.ConversationMeta
			createdAt, updatedAt int64
			lastUser             string
		)
		if err := rows.Scan(&meta.ID, &meta.Title, &meta.Model, &createdAt, &updatedAt,
			&meta.MessageCount, &lastUser); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		meta.CreatedAt = time.Unix(0, createdAt)
		meta.UpdatedAt = time.Unix(0, updatedAt)
		meta.Preview = model.Message{Content: lastUser}.Preview(100)
		if meta.Preview == "" {
			meta.Preview = "Empty conversation"
		}
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes a conversation by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// Resolve expands a full ID, or a unique prefix with or without the "conv_"
// prefix, to a stored conversation ID.
func (s *Store) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrConversationNotFound
	}
	if !strings.HasPrefix(ref, "conv_") {
		ref = "conv_" + ref
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM conversations WHERE substr(id, 1, ?) = ? LIMIT 2", len(ref), ref)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	switch len(ids) {
	case 0:
		return "", ErrConversationNotFound
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("ambiguous conversation id %q", ref)
	}
}

// Count returns the number of archived conversations.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return n, nil
}
