// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the durable store for saved consultations.
//
// Three backends implement Store: SQLite (the default, pure Go), PostgreSQL
// through pgxpool, and an in-memory store for tests and ephemeral runs.
// Open picks one from a URL.
//
// # Tables
//
//   - conversations: one header row per saved consultation, owned by a user
//   - turns: the turns of a consultation, ordered by created_at then seq
//
// # Usage
//
//	store, err := storage.Open(ctx, "sqlite:///home/me/.medassist/history.db")
//	id, err := store.CreateHeader(ctx, header)
//	err = store.InsertTurns(ctx, id, turns)
//	md := storage.ExportMarkdown(conv)
package storage
