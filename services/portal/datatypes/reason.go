// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// Reason kinds. Each kind lives in its own collection.
const (
	ReasonDropout  = "dropout"
	ReasonApproval = "approval"
)

// Reason is a coded reason picked from a list: why a student dropped out,
// or why a transfer request deserves approval.
type Reason struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	DisplayOrder int    `json:"displayOrder"`
	IsActive     bool   `json:"isActive"`

	// RequiresDocument is only meaningful for approval reasons.
	RequiresDocument bool `json:"requiresDocument,omitempty"`

	// ParentCode is only meaningful for dropout reasons.
	ParentCode string `json:"parentCode,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (r Reason) DocID() string { return r.ID }

// ReasonRequest is the body of POST and PUT on both reason collections.
type ReasonRequest struct {
	Code             string `json:"code" binding:"required,code"`
	Title            string `json:"title" binding:"required,max=200"`
	Description      string `json:"description" binding:"max=2000"`
	DisplayOrder     int    `json:"displayOrder" binding:"min=0"`
	IsActive         *bool  `json:"isActive"`
	RequiresDocument bool   `json:"requiresDocument"`
	ParentCode       string `json:"parentCode" binding:"omitempty,code"`
}

// Check rejects fields that do not belong to kind.
func (r ReasonRequest) Check(kind string) error {
	if strings.TrimSpace(r.Title) == "" {
		return Invalid("title", "must not be blank")
	}
	if kind != ReasonDropout && r.ParentCode != "" {
		return Invalid("parentCode", "only dropout reasons can be nested")
	}
	if kind != ReasonApproval && r.RequiresDocument {
		return Invalid("requiresDocument", "only approval reasons can require a document")
	}
	if r.ParentCode != "" && r.ParentCode == r.Code {
		return Invalid("parentCode", "a reason cannot be its own parent")
	}
	return nil
}

// ApplyTo copies the request into reason.
func (r ReasonRequest) ApplyTo(reason *Reason, now time.Time) {
	reason.Code = r.Code
	reason.Title = strings.TrimSpace(r.Title)
	reason.Description = strings.TrimSpace(r.Description)
	reason.DisplayOrder = r.DisplayOrder
	reason.RequiresDocument = r.RequiresDocument
	reason.ParentCode = r.ParentCode
	if r.IsActive != nil {
		reason.IsActive = *r.IsActive
	} else if reason.CreatedAt.IsZero() {
		reason.IsActive = true
	}
	reason.UpdatedAt = now
}

// SortReasons orders by display order, then code.
func SortReasons(reasons []Reason) {
	slices.SortFunc(reasons, func(a, b Reason) int {
		return cmp.Or(cmp.Compare(a.DisplayOrder, b.DisplayOrder), cmp.Compare(a.Code, b.Code))
	})
}
