// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat screen for the TUI.
//
// The screen is a thin shell around chat.Controller from internal/chat. It
// owns the widgets (viewport, text input, spinner) and forwards every
// controller message back into the controller, so the Bubble Tea Update loop
// doubles as the controller's scheduler. The viewport is handed to the
// controller's scroll coordinator, which keeps it pinned to the newest turn.
// Completed replies and saves raise short-lived toasts in the bottom-right
// corner of the transcript.
//
// # Keys
//
//	Enter      send the message
//	Ctrl+N     start a new consultation (asks to save first)
//	Esc/Ctrl+C leave (asks to save first)
//	Ctrl+Q     quit immediately, keeping the unsaved turns for next start
//	PgUp/PgDn  scroll the transcript
//
// While the exit prompt is open: s saves, d discards, Esc returns to the
// conversation.
package chat
