// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the streaming chat session controller.
//
// All state lives on values owned by a single Controller and is mutated only
// from its Update method, which is driven by a Bubble Tea program (or by Run
// for line-mode front ends). Timers are plain tea.Cmds carrying a generation
// number; a message whose generation no longer matches is ignored, which is
// how streams and scroll pulses are cancelled.
//
// # Components
//
//   - Store: ordered turn log with stale-write guards and change events
//   - Streamer: reveals an already-known reply one rune per tick
//   - ScrollCoordinator: debounced and continuous pin-to-bottom requests
//   - Controller: wires the above to inference and the session lifecycle
//
// # Usage
//
//	ctrl := chat.NewController(client, lifecycle, chat.DefaultOptions())
//	cmd := ctrl.Send("I have a headache")
//	// feed every resulting tea.Msg back through ctrl.Update
package chat
