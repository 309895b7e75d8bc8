// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package scratch provides local best-effort key-value storage used for
// crash recovery of unsaved consultations.
package scratch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jeranaias/medassist-tui/internal/util"
)

// Storage is a string key-value store. Get reports ok=false for a missing key.
type Storage interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

// =============================================================================
// FILE STORAGE
// =============================================================================

// FileStorage keeps one file per key under a directory.
type FileStorage struct {
	dir string
}

// NewFileStorage creates the directory if needed.
func NewFileStorage(dir string) (*FileStorage, error) {
	if dir == "" {
		return nil, errors.New("scratch directory is empty")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	return &FileStorage{dir: dir}, nil
}

// Dir returns the backing directory.
func (s *FileStorage) Dir() string {
	return s.dir
}

func (s *FileStorage) path(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+".json")
}

// sanitizeKey maps a key onto a safe file name.
func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, key)
}

// Get implements Storage.
func (s *FileStorage) Get(key string) (string, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read scratch %q: %w", key, err)
	}
	return string(data), true, nil
}

// Set implements Storage.
func (s *FileStorage) Set(key, value string) error {
	if err := util.WriteFileAtomic(s.path(key), []byte(value), 0600); err != nil {
		return fmt.Errorf("write scratch %q: %w", key, err)
	}
	return nil
}

// Remove implements Storage. Removing a missing key is not an error.
func (s *FileStorage) Remove(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove scratch %q: %w", key, err)
	}
	return nil
}

// =============================================================================
// MEMORY STORAGE
// =============================================================================

// MemoryStorage is an in-process Storage.
type MemoryStorage struct {
	mu   sync.Mutex
	data map[string]string
}

// NewMemoryStorage creates an empty store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string]string)}
}

// Get implements Storage.
func (s *MemoryStorage) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

// Set implements Storage.
func (s *MemoryStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Remove implements Storage.
func (s *MemoryStorage) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}
