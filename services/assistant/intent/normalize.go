// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"strings"
	"unicode"
)

// Normalize canonicalizes a query for keyword matching.
//
// # Description
//
// Lowercases, strips punctuation, and collapses whitespace. Arabic text is
// additionally stripped of diacritics and tatweel, and common letter variants
// are folded (alef forms to bare alef, alef maqsura to yaa) so that queries
// typed with or without hamza or harakat match the same rules.
//
// Normalize is pure and deterministic; both rule keywords and user queries
// pass through it, so the two sides always agree on canonical form.
//
// # Inputs
//
//   - query: Raw user text in either locale.
//
// # Outputs
//
//   - string: Canonical form, possibly empty.
func Normalize(query string) string {
	var b strings.Builder
	b.Grow(len(query))
	lastSpace := true

	for _, r := range strings.ToLower(query) {
		switch {
		case isArabicDiacritic(r):
			// Dropped entirely: harakat never separate words.
			continue
		case r == arabicTatweel:
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(foldArabic(r))
			lastSpace = false
		default:
			// Punctuation and whitespace both collapse to one separator.
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}

	return strings.TrimSpace(b.String())
}

const arabicTatweel = 'ـ'

// isArabicDiacritic reports whether r is an Arabic combining mark
// (harakat, superscript alef, and the Quranic annotation range).
func isArabicDiacritic(r rune) bool {
	switch {
	case r >= 'ؐ' && r <= 'ؚ':
		return true
	case r >= 'ً' && r <= 'ٟ':
		return true
	case r == 'ٰ':
		return true
	case r >= 'ۖ' && r <= 'ۭ':
		return true
	}
	return false
}

// foldArabic maps common Arabic letter variants onto one canonical letter.
func foldArabic(r rune) rune {
	switch r {
	case 'أ', 'إ', 'آ', 'ٱ':
		return 'ا'
	case 'ى':
		return 'ي'
	case 'ؤ':
		return 'و'
	case 'ئ':
		return 'ي'
	}
	return r
}
