// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the medassist TUI.
//
// Colors are lipgloss.AdaptiveColor pairs so the same palette reads on light
// and dark terminals. Theme bundles the concrete styles used by the chat
// screen: header, the three turn bubbles, the input box, the status bar and
// the exit confirmation overlay.
//
// Every status rendering pairs its color with an ASCII indicator ([OK], [X],
// [!], [i]) so state is never conveyed by color alone.
package styles
