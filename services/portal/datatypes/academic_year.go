// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"regexp"
	"strconv"
	"time"

	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/validation"
)

// academicYearPattern matches a Solar Hijri year pair such as 1403-1404.
var academicYearPattern = regexp.MustCompile(`^([0-9]{4})-([0-9]{4})$`)

// AcademicYear is a school year. At most one is active at a time.
type AcademicYear struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
	IsActive  bool       `json:"isActive"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (y AcademicYear) DocID() string { return y.ID }

// AcademicYearRequest is the body of POST and PUT /v1/academic-years.
type AcademicYearRequest struct {
	Name      string     `json:"name" binding:"required,acyear"`
	StartDate *time.Time `json:"startDate"`
	EndDate   *time.Time `json:"endDate"`
}

// NormalizeAcademicYearName converts digits and validates the name.
//
//	NormalizeAcademicYearName("۱۴۰۳-۱۴۰۴") // "1403-1404", nil
func NormalizeAcademicYearName(name string) (string, error) {
	name = validation.NormalizeDigits(name)
	m := academicYearPattern.FindStringSubmatch(name)
	if m == nil {
		return "", Invalid("name", "must look like 1403-1404")
	}
	first, _ := strconv.Atoi(m[1])
	second, _ := strconv.Atoi(m[2])
	if second != first+1 {
		return "", Invalid("name", "second year must follow the first")
	}
	return name, nil
}

// ValidateDates checks that the start date precedes the end date when
// both are given.
func (r AcademicYearRequest) ValidateDates() error {
	if r.StartDate != nil && r.EndDate != nil && !r.StartDate.Before(*r.EndDate) {
		return Invalid("endDate", "must be after startDate")
	}
	return nil
}
