// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for identity
// fields entered through the portal forms.
//
// Users type national codes, phone numbers and personnel codes with
// Persian (U+06F0..U+06F9) or Arabic-Indic (U+0660..U+0669) digits as
// often as with ASCII digits. Every validator here normalizes first, so
// callers should store the value returned by the Sanitize* functions.
package validation

import (
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// digitMapper rewrites Persian and Arabic-Indic digits to ASCII.
var digitMapper = runes.Map(func(r rune) rune {
	switch {
	case r >= '۰' && r <= '۹':
		return '0' + (r - '۰')
	case r >= '٠' && r <= '٩':
		return '0' + (r - '٠')
	default:
		return r
	}
})

// NormalizeDigits converts Persian and Arabic-Indic digits in s to ASCII
// and trims surrounding whitespace.
//
// Example:
//
//	validation.NormalizeDigits("۰۹۱۲ ۳۴۵ ۶۷۸۹") // "0912 345 6789"
func NormalizeDigits(s string) string {
	out, _, err := transform.String(digitMapper, s)
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(out)
}

func isASCIIDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
