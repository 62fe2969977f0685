// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDigits(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ascii unchanged", "0912", "0912"},
		{"persian digits", "۰۹۱۲۳۴۵۶۷۸۹", "09123456789"},
		{"arabic-indic digits", "٠١٢٣٤٥٦٧٨٩", "0123456789"},
		{"mixed with text", " کد ۱۲ ab3 ", "کد 12 ab3"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDigits(tt.in))
		})
	}
}

func TestValidateNationalCode(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr bool
	}{
		{"valid", "0499370899", false},
		{"valid remainder below two", "0013542419", false},
		{"valid nonzero prefix", "1234567891", false},
		{"empty", "", true},
		{"too short", "049937089", true},
		{"letters", "04993708a9", true},
		{"checksum mismatch", "0012345678", true},
		{"repeated digit", "1111111111", true},
		{"persian digits not normalized", "۰۴۹۹۳۷۰۸۹۹", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNationalCode(tt.code)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizeNationalCode(t *testing.T) {
	got, err := SanitizeNationalCode("۰۴۹۹۳۷۰۸۹۹")
	require.NoError(t, err)
	assert.Equal(t, "0499370899", got)

	got, err = SanitizeNationalCode("13542419")
	require.NoError(t, err)
	assert.Equal(t, "0013542419", got, "dropped leading zeros are restored")

	got, err = SanitizeNationalCode("049-937089-9")
	require.NoError(t, err)
	assert.Equal(t, "0499370899", got)

	_, err = SanitizeNationalCode("0012345678")
	assert.Error(t, err)
}

func TestSanitizePhone(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"national format", "09123456789", "09123456789", false},
		{"persian digits", "۰۹۱۲۳۴۵۶۷۸۹", "09123456789", false},
		{"plus country code", "+98 912 345 6789", "09123456789", false},
		{"double zero country code", "00989123456789", "09123456789", false},
		{"missing leading zero", "9123456789", "09123456789", false},
		{"landline", "02188776655", "", true},
		{"too short", "0912345", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizePhone(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizePersonnelCode(t *testing.T) {
	got, err := SanitizePersonnelCode("۱۲۳۴۵۶۷۸")
	require.NoError(t, err)
	assert.Equal(t, "12345678", got)

	for _, bad := range []string{"", "1234567", "12345678901", "1234abcd"} {
		_, err := SanitizePersonnelCode(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestValidateCode(t *testing.T) {
	assert.NoError(t, ValidateCode("THR-01"))
	assert.NoError(t, ValidateCode("illness_2"))
	assert.Error(t, ValidateCode(""))
	assert.Error(t, ValidateCode("-leading"))
	assert.Error(t, ValidateCode("has space"))
	assert.Error(t, ValidateCode("x/../../etc"))

	got, err := SanitizeCode("۱۰۱")
	require.NoError(t, err)
	assert.Equal(t, "101", got)
}
