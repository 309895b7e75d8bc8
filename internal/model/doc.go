// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for consultations and turns.
//
// This package defines the core domain types shared by the chat controller,
// the lifecycle manager and the durable store.
//
// # Key Types
//
//   - Turn: one message in a consultation (user, assistant or error role)
//   - Role: closed enumeration of turn roles
//   - ConversationHeader: metadata of a saved consultation
//   - IDGenerator: per-session minting of sortable, collision-resistant turn ids
//
// # Usage
//
//	ids := model.NewIDGenerator()
//	turn := model.NewTurn(ids.Next(model.RoleUser), model.RoleUser, "I have a headache")
//	title := model.DeriveTitle([]model.Turn{turn}, 40)
package model
