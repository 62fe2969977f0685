// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// mobilePattern matches Iranian mobile numbers in national format.
var mobilePattern = regexp.MustCompile(`^09[0-9]{9}$`)

// personnelPattern matches ministry personnel codes (8 to 10 digits).
var personnelPattern = regexp.MustCompile(`^[0-9]{8,10}$`)

// codePattern matches organisational codes (province, district, exam
// center, reason codes): letters, digits, hyphen and underscore.
var codePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-]{0,31}$`)

// ValidateNationalCode checks a 10-digit Iranian national code.
//
// # Description
//
// The last digit is a check digit. With s = sum(d[i] * (10 - i)) over
// the first nine digits and r = s mod 11, the check digit must equal r
// when r < 2, otherwise 11 - r. Codes made of one repeated digit pass
// the checksum but are never issued, so they are rejected.
//
// # Inputs
//
//   - code: Already normalized (ASCII digits).
//
// # Outputs
//
//   - error: Describes the first problem found, nil when valid.
func ValidateNationalCode(code string) error {
	if code == "" {
		return fmt.Errorf("national code cannot be empty")
	}
	if len(code) != 10 || !isASCIIDigits(code) {
		return fmt.Errorf("invalid national code %q (must be exactly 10 digits)", code)
	}
	if strings.Count(code, code[:1]) == 10 {
		return fmt.Errorf("invalid national code %q", code)
	}

	sum := 0
	for i := 0; i < 9; i++ {
		sum += int(code[i]-'0') * (10 - i)
	}
	r := sum % 11
	check := int(code[9] - '0')
	if (r < 2 && check != r) || (r >= 2 && check != 11-r) {
		return fmt.Errorf("invalid national code %q (checksum mismatch)", code)
	}
	return nil
}

// SanitizeNationalCode normalizes digits, zero-pads 8 and 9 digit inputs
// (leading zeros are often dropped by spreadsheets) and validates.
func SanitizeNationalCode(code string) (string, error) {
	normalized := strings.ReplaceAll(NormalizeDigits(code), "-", "")
	if isASCIIDigits(normalized) && len(normalized) >= 8 && len(normalized) < 10 {
		normalized = strings.Repeat("0", 10-len(normalized)) + normalized
	}
	if err := ValidateNationalCode(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// ValidatePhone checks a mobile number in 09xxxxxxxxx form.
func ValidatePhone(phone string) error {
	if phone == "" {
		return fmt.Errorf("phone cannot be empty")
	}
	if !mobilePattern.MatchString(phone) {
		return fmt.Errorf("invalid phone %q (must be 11 digits starting with 09)", phone)
	}
	return nil
}

// SanitizePhone normalizes digits, strips separators and a +98/0098
// country prefix, then validates.
//
//	validation.SanitizePhone("+98 912 345 6789") // "09123456789", nil
func SanitizePhone(phone string) (string, error) {
	normalized := NormalizeDigits(phone)
	normalized = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(normalized)
	switch {
	case strings.HasPrefix(normalized, "+98"):
		normalized = "0" + normalized[3:]
	case strings.HasPrefix(normalized, "0098"):
		normalized = "0" + normalized[4:]
	case strings.HasPrefix(normalized, "9") && len(normalized) == 10:
		normalized = "0" + normalized
	}
	if err := ValidatePhone(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// ValidatePersonnelCode checks an 8 to 10 digit personnel code.
func ValidatePersonnelCode(code string) error {
	if code == "" {
		return fmt.Errorf("personnel code cannot be empty")
	}
	if !personnelPattern.MatchString(code) {
		return fmt.Errorf("invalid personnel code %q (must be 8-10 digits)", code)
	}
	return nil
}

// SanitizePersonnelCode normalizes digits and validates.
func SanitizePersonnelCode(code string) (string, error) {
	normalized := NormalizeDigits(code)
	if err := ValidatePersonnelCode(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// ValidateCode checks an organisational or reason code.
func ValidateCode(code string) error {
	if code == "" {
		return fmt.Errorf("code cannot be empty")
	}
	if !codePattern.MatchString(code) {
		return fmt.Errorf("invalid code %q (1-32 letters, digits, '-' or '_')", code)
	}
	return nil
}

// SanitizeCode normalizes digits and validates.
func SanitizeCode(code string) (string, error) {
	normalized := NormalizeDigits(code)
	if err := ValidateCode(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
