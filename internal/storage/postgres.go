// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jeranaias/medassist-tui/internal/model"
)

// PostgresStore persists conversations in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and creates the schema if missing.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			last_message_preview TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user_updated ON conversations (user_id, updated_at DESC);`,
		`CREATE TABLE IF NOT EXISTS turns (
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			id TEXT NOT NULL,
			seq BIGINT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (conversation_id, id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_turns_conversation_created ON turns (conversation_id, created_at, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// CreateHeader implements Store.
func (s *PostgresStore) CreateHeader(ctx context.Context, h model.ConversationHeader) (string, error) {
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

	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, user_id, title, last_message_preview, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		h.ID, h.UserID, h.Title, h.LastMessagePreview, h.CreatedAt, h.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("create header: %w", err)
	}
	return h.ID, nil
}

// UpdateHeader implements Store.
func (s *PostgresStore) UpdateHeader(ctx context.Context, h model.ConversationHeader) error {
	if h.UpdatedAt.IsZero() {
		h.UpdatedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET title = $1, last_message_preview = $2, updated_at = $3
		 WHERE id = $4 AND user_id = $5`,
		h.Title, h.LastMessagePreview, h.UpdatedAt, h.ID, h.UserID)
	if err != nil {
		return fmt.Errorf("update header: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// GetHeader implements Store.
func (s *PostgresStore) GetHeader(ctx context.Context, userID, id string) (model.ConversationHeader, error) {
	var h model.ConversationHeader
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, title, last_message_preview, created_at, updated_at
		 FROM conversations WHERE id = $1 AND user_id = $2`, id, userID).
		Scan(&h.ID, &h.UserID, &h.Title, &h.LastMessagePreview, &h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ConversationHeader{}, ErrConversationNotFound
	}
	if err != nil {
		return model.ConversationHeader{}, fmt.Errorf("get header: %w", err)
	}
	h.CreatedAt = h.CreatedAt.UTC()
	h.UpdatedAt = h.UpdatedAt.UTC()
	return h, nil
}

// ListHeaders implements Store.
func (s *PostgresStore) ListHeaders(ctx context.Context, userID string) ([]model.ConversationHeader, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, title, last_message_preview, created_at, updated_at
		 FROM conversations WHERE user_id = $1 ORDER BY updated_at DESC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list headers: %w", err)
	}
	defer rows.Close()

	out := make([]model.ConversationHeader, 0)
	for rows.Next() {
		var h model.ConversationHeader
		if err := rows.Scan(&h.ID, &h.UserID, &h.Title, &h.LastMessagePreview, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan header: %w", err)
		}
		h.CreatedAt = h.CreatedAt.UTC()
		h.UpdatedAt = h.UpdatedAt.UTC()
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate headers: %w", err)
	}
	return out, nil
}

// InsertTurns implements Store.
func (s *PostgresStore) InsertTurns(ctx context.Context, conversationID string, turns []model.Turn) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert turns: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the header row so concurrent appends get distinct seq values.
	var id string
	err = tx.QueryRow(ctx, `SELECT id FROM conversations WHERE id = $1 FOR UPDATE`, conversationID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrConversationNotFound
	}
	if err != nil {
		return fmt.Errorf("lock conversation: %w", err)
	}

	var next int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM turns WHERE conversation_id = $1`, conversationID).Scan(&next)
	if err != nil {
		return fmt.Errorf("next turn seq: %w", err)
	}

	batch := &pgx.Batch{}
	for i, t := range turns {
		batch.Queue(
			`INSERT INTO turns (conversation_id, id, seq, role, content, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			conversationID, t.ID, next+int64(i), string(t.Role), t.Content, t.CreatedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert turns: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert turns: %w", err)
	}
	return nil
}

// ListTurns implements Store.
func (s *PostgresStore) ListTurns(ctx context.Context, conversationID string) ([]model.Turn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, role, content, created_at FROM turns
		 WHERE conversation_id = $1 ORDER BY created_at ASC, seq ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	out := make([]model.Turn, 0)
	for rows.Next() {
		var t model.Turn
		var role string
		if err := rows.Scan(&t.ID, &role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if t.Role, err = model.ParseRole(role); err != nil {
			return nil, fmt.Errorf("turn %s: %w", t.ID, err)
		}
		t.CreatedAt = t.CreatedAt.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return out, nil
}

// DeleteConversation implements Store.
func (s *PostgresStore) DeleteConversation(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
