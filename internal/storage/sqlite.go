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
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/medassist-tui/internal/model"
)

// sqliteSchema stores timestamps as unix nanoseconds so ORDER BY is exact.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
    id                   TEXT PRIMARY KEY,
    user_id              TEXT NOT NULL,
    title                TEXT NOT NULL,
    last_message_preview TEXT NOT NULL,
    created_at           INTEGER NOT NULL,
    updated_at           INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_user_updated
    ON conversations (user_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS turns (
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    id              TEXT NOT NULL,
    seq             INTEGER NOT NULL,
    role            TEXT NOT NULL,
    content         TEXT NOT NULL,
    created_at      INTEGER NOT NULL,
    PRIMARY KEY (conversation_id, id)
);

CREATE INDEX IF NOT EXISTS idx_turns_conversation_created
    ON turns (conversation_id, created_at, seq);
`

// SQLiteStore persists conversations in a local SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows a single writer.
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
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file.
func (s *SQLiteStore) Path() string {
	return s.path
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// CreateHeader implements Store.
func (s *SQLiteStore) CreateHeader(ctx context.Context, h model.ConversationHeader) (string, error) {
	if h.UserID == "" {
		return "", ErrMissingUser
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	if h.UpdatedAt.IsZero() {
		h.UpdatedAt = h.CreatedAt
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, last_message_preview, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID, h.UserID, h.Title, h.LastMessagePreview, toNanos(h.CreatedAt), toNanos(h.UpdatedAt))
	if err != nil {
		return "", fmt.Errorf("create header: %w", err)
	}
	return h.ID, nil
}

// UpdateHeader implements Store.
func (s *SQLiteStore) UpdateHeader(ctx context.Context, h model.ConversationHeader) error {
	if h.UpdatedAt.IsZero() {
		h.UpdatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, last_message_preview = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		h.Title, h.LastMessagePreview, toNanos(h.UpdatedAt), h.ID, h.UserID)
	if err != nil {
		return fmt.Errorf("update header: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update header: %w", err)
	}
	if n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// GetHeader implements Store.
func (s *SQLiteStore) GetHeader(ctx context.Context, userID, id string) (model.ConversationHeader, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, last_message_preview, created_at, updated_at
		 FROM conversations WHERE id = ? AND user_id = ?`, id, userID)
	h, err := scanSQLiteHeader(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ConversationHeader{}, ErrConversationNotFound
	}
	if err != nil {
		return model.ConversationHeader{}, fmt.Errorf("get header: %w", err)
	}
	return h, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteHeader(row rowScanner) (model.ConversationHeader, error) {
	var h model.ConversationHeader
	var created, updated int64
	if err := row.Scan(&h.ID, &h.UserID, &h.Title, &h.LastMessagePreview, &created, &updated); err != nil {
		return model.ConversationHeader{}, err
	}
	h.CreatedAt = fromNanos(created)
	h.UpdatedAt = fromNanos(updated)
	return h, nil
}

// ListHeaders implements Store.
func (s *SQLiteStore) ListHeaders(ctx context.Context, userID string) ([]model.ConversationHeader, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, last_message_preview, created_at, updated_at
		 FROM conversations WHERE user_id = ? ORDER BY updated_at DESC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list headers: %w", err)
	}
	defer rows.Close()

	out := make([]model.ConversationHeader, 0)
	for rows.Next() {
		h, err := scanSQLiteHeader(rows)
		if err != nil {
			return nil, fmt.Errorf("scan header: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate headers: %w", err)
	}
	return out, nil
}

// InsertTurns implements Store.
func (s *SQLiteStore) InsertTurns(ctx context.Context, conversationID string, turns []model.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert turns: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM conversations WHERE id = ?`, conversationID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check conversation: %w", err)
	}
	if exists == 0 {
		return ErrConversationNotFound
	}

	var next int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM turns WHERE conversation_id = ?`, conversationID).Scan(&next)
	if err != nil {
		return fmt.Errorf("next turn seq: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO turns (conversation_id, id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert turn: %w", err)
	}
	defer stmt.Close()

	for i, t := range turns {
		if _, err := stmt.ExecContext(ctx, conversationID, t.ID, next+int64(i), string(t.Role), t.Content, toNanos(t.CreatedAt)); err != nil {
			return fmt.Errorf("insert turn %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert turns: %w", err)
	}
	return nil
}

// ListTurns implements Store.
func (s *SQLiteStore) ListTurns(ctx context.Context, conversationID string) ([]model.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, created_at FROM turns
		 WHERE conversation_id = ? ORDER BY created_at ASC, seq ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	out := make([]model.Turn, 0)
	for rows.Next() {
		var t model.Turn
		var role string
		var created int64
		if err := rows.Scan(&t.ID, &role, &t.Content, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if t.Role, err = model.ParseRole(role); err != nil {
			return nil, fmt.Errorf("turn %s: %w", t.ID, err)
		}
		t.CreatedAt = fromNanos(created)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return out, nil
}

// DeleteConversation implements Store.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
