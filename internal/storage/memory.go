// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/medassist-tui/internal/model"
)

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	headers map[string]model.ConversationHeader
	turns   map[string][]model.Turn
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		headers: make(map[string]model.ConversationHeader),
		turns:   make(map[string][]model.Turn),
	}
}

// CreateHeader implements Store.
func (s *MemoryStore) CreateHeader(ctx context.Context, h model.ConversationHeader) (string, error) {
	if h.UserID == "" {
		return "", ErrMissingUser
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	if h.UpdatedAt.IsZero() {
		h.UpdatedAt = h.CreatedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.headers[h.ID]; exists {
		return "", fmt.Errorf("create header: id %s already exists", h.ID)
	}
	s.headers[h.ID] = h
	return h.ID, nil
}

// UpdateHeader implements Store.
func (s *MemoryStore) UpdateHeader(ctx context.Context, h model.ConversationHeader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.headers[h.ID]
	if !ok || cur.UserID != h.UserID {
		return ErrConversationNotFound
	}
	cur.Title = h.Title
	cur.LastMessagePreview = h.LastMessagePreview
	cur.UpdatedAt = h.UpdatedAt
	if cur.UpdatedAt.IsZero() {
		cur.UpdatedAt = time.Now().UTC()
	}
	s.headers[h.ID] = cur
	return nil
}

// GetHeader implements Store.
func (s *MemoryStore) GetHeader(ctx context.Context, userID, id string) (model.ConversationHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.headers[id]
	if !ok || h.UserID != userID {
		return model.ConversationHeader{}, ErrConversationNotFound
	}
	return h, nil
}

// ListHeaders implements Store.
func (s *MemoryStore) ListHeaders(ctx context.Context, userID string) ([]model.ConversationHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ConversationHeader, 0)
	for _, h := range s.headers {
		if h.UserID == userID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// InsertTurns implements Store.
func (s *MemoryStore) InsertTurns(ctx context.Context, conversationID string, turns []model.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.headers[conversationID]; !ok {
		return ErrConversationNotFound
	}
	existing := make(map[string]bool, len(s.turns[conversationID]))
	for _, t := range s.turns[conversationID] {
		existing[t.ID] = true
	}
	for _, t := range turns {
		if existing[t.ID] {
			return fmt.Errorf("insert turns: duplicate turn id %s", t.ID)
		}
		existing[t.ID] = true
	}
	s.turns[conversationID] = append(s.turns[conversationID], model.CloneTurns(turns)...)
	return nil
}

// ListTurns implements Store.
func (s *MemoryStore) ListTurns(ctx context.Context, conversationID string) ([]model.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := model.CloneTurns(s.turns[conversationID])
	if out == nil {
		out = []model.Turn{}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteConversation implements Store.
func (s *MemoryStore) DeleteConversation(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.headers[id]
	if !ok || h.UserID != userID {
		return ErrConversationNotFound
	}
	delete(s.headers, id)
	delete(s.turns, id)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
