// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
	"golang.org/x/text/unicode/norm"
)

// Ellipsis is appended by the truncation helpers.
const Ellipsis = "..."

// UNICODE: all helpers below operate on runes or display cells so multi-byte
// characters are never split.

// CollapseWhitespace trims s and folds every run of whitespace (including
// newlines and tabs) into a single space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeInput trims surrounding whitespace and converts s to Unicode NFC
// so composed and decomposed forms of the same text compare equal.
func NormalizeInput(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// TruncateWidth cuts s so it occupies at most maxWidth terminal cells,
// ellipsis included. Wide (CJK, emoji) runes count as two cells.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if DisplayWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= len(Ellipsis) {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, Ellipsis)
}

// TruncateRunes truncates s to at most maxRunes runes, ellipsis included.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if RuneLen(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	if maxRunes <= len(Ellipsis) {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-len(Ellipsis)]) + Ellipsis
}

// RuneLen returns the number of runes in s.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// DisplayWidth returns the number of terminal cells s occupies.
func DisplayWidth(s string) int {
	return runewidth.StringWidth(s)
}
