// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the assistant service.
//
// This file contains the platform language type. The platform serves exactly
// two locales, Arabic and English; Arabic is the primary locale and the
// fallback for any unrecognized language code.
package datatypes

import "strings"

// Language identifies one of the two supported platform locales.
type Language string

const (
	// LanguageArabic is the primary platform locale.
	LanguageArabic Language = "ar"

	// LanguageEnglish is the secondary platform locale.
	LanguageEnglish Language = "en"
)

// NormalizeLanguage maps an arbitrary language code onto a supported Language.
//
// # Description
//
// Accepts codes like "en", "EN", "en-US" and resolves them to LanguageEnglish.
// Everything else, including the empty string, resolves to LanguageArabic,
// which is the platform default.
//
// # Inputs
//
//   - code: Raw language code from the client. May be empty.
//
// # Outputs
//
//   - Language: Always one of LanguageArabic or LanguageEnglish.
func NormalizeLanguage(code string) Language {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "en" || strings.HasPrefix(code, "en-") {
		return LanguageEnglish
	}
	return LanguageArabic
}
