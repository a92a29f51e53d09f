// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/text/unicode/norm"
)

// Ellipsis is appended to text cut by Truncate.
const Ellipsis = "..."

// Truncate shortens s to at most width terminal columns, appending an
// ellipsis when anything was dropped. Wide runes (CJK, emoji) count as two
// columns.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= len(Ellipsis) {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, Ellipsis)
}

// SingleLine collapses all whitespace runs (newlines included) to a single
// space so that multi-line text fits in one list row.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// PadRight pads s with spaces to exactly width columns, truncating first if
// it is wider.
func PadRight(s string, width int) string {
	s = Truncate(s, width)
	return s + strings.Repeat(" ", width-runewidth.StringWidth(s))
}

// Normalize returns s in Unicode NFC form. Text typed in terminals can arrive
// decomposed; the backend stores and compares composed text.
func Normalize(s string) string {
	return norm.NFC.String(s)
}

// IsBlank reports whether s has no visible content.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// FormatGB renders a byte count in gigabytes with two decimals, e.g. "4.66 GB".
func FormatGB(size int64) string {
	return fmt.Sprintf("%.2f GB", float64(size)/1024/1024/1024)
}
