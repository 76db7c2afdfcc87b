// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small string and file helpers.
package util

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Ellipsis is appended by TruncateRunes when it shortens a string.
const Ellipsis = "..."

// TruncateRunes truncates s to at most maxRunes runes, including the
// trailing ellipsis when truncation happens.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= len(Ellipsis) {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-len(Ellipsis)]) + Ellipsis
}

// FoldWhitespace collapses every run of whitespace (including newlines)
// into a single space and trims the ends.
func FoldWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// Preview returns a single-line, NFC-normalised form of s truncated to
// maxRunes. Returns "" when s has no visible text.
func Preview(s string, maxRunes int) string {
	folded := FoldWhitespace(norm.NFC.String(s))
	if folded == "" {
		return ""
	}
	return TruncateRunes(folded, maxRunes)
}
