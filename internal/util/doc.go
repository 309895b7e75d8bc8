// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across medassist.
//
// # Key Functions
//
// Text:
//   - CollapseWhitespace: fold runs of whitespace into single spaces
//   - TruncateWidth: display-width aware truncation with ellipsis
//   - TruncateRunes: rune-count truncation with ellipsis
//   - NormalizeInput: trim and NFC-normalize user text
//
// File Operations:
//   - WriteFileAtomic: crash-safe file writing with fsync
//
// # Usage
//
//	title := util.TruncateWidth(util.CollapseWhitespace(text), 40)
//	err := util.WriteFileAtomic(path, data, 0600)
package util
