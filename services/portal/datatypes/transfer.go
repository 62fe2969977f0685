// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"slices"
	"strings"
	"time"

	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
)

// Transfer request statuses.
const (
	TransferAwaitingUserApproval = "awaiting_user_approval"
	TransferUserApproval         = "user_approval"
	TransferSourceReview         = "source_review"
	TransferSourceApproval       = "source_approval"
	TransferSourceRejection      = "source_rejection"
	TransferProvinceReview       = "province_review"
	TransferProvinceApproval     = "province_approval"
	TransferProvinceRejection    = "province_rejection"
)

// Transfer types for a destination.
const (
	TransferPermanent = "permanent"
	TransferTemporary = "temporary"
)

// MaxDestinations caps the destination preference list.
const MaxDestinations = 7

// TransferStatusLabels maps each status to its Persian label.
var TransferStatusLabels = map[string]string{
	TransferAwaitingUserApproval: "در انتظار تایید متقاضی",
	TransferUserApproval:         "تایید شده توسط متقاضی",
	TransferSourceReview:         "در حال بررسی مبدا",
	TransferSourceApproval:       "موافقت مبدا",
	TransferSourceRejection:      "مخالفت مبدا",
	TransferProvinceReview:       "در حال بررسی استان",
	TransferProvinceApproval:     "موافقت استان",
	TransferProvinceRejection:    "مخالفت استان",
}

// TransferStatusOrdering is the natural order of the review pipeline.
var TransferStatusOrdering = []string{
	TransferAwaitingUserApproval,
	TransferUserApproval,
	TransferSourceReview,
	TransferSourceApproval,
	TransferSourceRejection,
	TransferProvinceReview,
	TransferProvinceApproval,
	TransferProvinceRejection,
}

// IsValidTransferStatus reports whether status is known.
func IsValidTransferStatus(status string) bool {
	_, ok := TransferStatusLabels[status]
	return ok
}

// transferRule allows one status change for a set of roles.
type transferRule struct {
	from           string
	to             string
	roles          []string
	requireComment bool
}

// transferRules lists every non-admin status change.
var transferRules = []transferRule{
	{TransferAwaitingUserApproval, TransferUserApproval, []string{RoleTransferApplicant}, false},
	{TransferUserApproval, TransferSourceReview, []string{RoleDistrictExpert}, false},
	{TransferSourceReview, TransferSourceApproval, []string{RoleDistrictExpert}, false},
	{TransferSourceReview, TransferSourceRejection, []string{RoleDistrictExpert}, true},
	{TransferSourceApproval, TransferProvinceReview, []string{RoleProvinceExpert}, false},
	{TransferProvinceReview, TransferProvinceApproval, []string{RoleProvinceExpert}, false},
	{TransferProvinceReview, TransferProvinceRejection, []string{RoleProvinceExpert}, true},
}

func findTransferRule(from, to string) (transferRule, bool) {
	for _, r := range transferRules {
		if r.from == from && r.to == to {
			return r, true
		}
	}
	return transferRule{}, false
}

// NextTransferStatuses returns the statuses role may move a spec to from
// status. Used by the pages to render action buttons.
func NextTransferStatuses(status, role string) []string {
	if role == RoleSystemAdmin {
		out := make([]string, 0, len(TransferStatusOrdering)-1)
		for _, s := range TransferStatusOrdering {
			if s != status {
				out = append(out, s)
			}
		}
		return out
	}
	var out []string
	for _, r := range transferRules {
		if r.from == status && slices.Contains(r.roles, role) {
			out = append(out, r.to)
		}
	}
	return out
}

// Destination is one ranked destination district.
type Destination struct {
	Priority     int    `json:"priority" binding:"required,min=1,max=7"`
	DistrictCode string `json:"districtCode" binding:"required,code"`
	TransferType string `json:"transferType" binding:"required,oneof=permanent temporary"`
}

// StatusLogEntry records one status change.
type StatusLogEntry struct {
	FromStatus string    `json:"fromStatus"`
	ToStatus   string    `json:"toStatus"`
	ActorID    string    `json:"actorId"`
	ActorRole  string    `json:"actorRole"`
	Comment    string    `json:"comment,omitempty"`
	At         time.Time `json:"at"`
}

// TransferSpec is a personnel member's transfer request for one
// academic year.
type TransferSpec struct {
	ID                   string           `json:"id"`
	PersonnelCode        string           `json:"personnelCode"`
	NationalCode         string           `json:"nationalCode"`
	FirstName            string           `json:"firstName"`
	LastName             string           `json:"lastName"`
	Gender               string           `json:"gender"`
	EmploymentType       string           `json:"employmentType"`
	Phone                string           `json:"phone,omitempty"`
	ProvinceCode         string           `json:"provinceCode"`
	CurrentDistrictCode  string           `json:"currentDistrictCode"`
	AcademicYearID       string           `json:"academicYearId"`
	Destinations         []Destination    `json:"destinations"`
	ApprovalReasonCodes  []string         `json:"approvalReasonCodes"`
	CurrentRequestStatus string           `json:"currentRequestStatus"`
	StatusLog            []StatusLogEntry `json:"statusLog"`
	UserID               string           `json:"userId,omitempty"`
	CreatedAt            time.Time        `json:"createdAt"`
	UpdatedAt            time.Time        `json:"updatedAt"`
}

func (s TransferSpec) DocID() string { return s.ID }

// YearPersonnelKey is the unique key of a spec: one per personnel code
// per academic year.
func (s TransferSpec) YearPersonnelKey() string {
	if s.PersonnelCode == "" || s.AcademicYearID == "" {
		return ""
	}
	return s.AcademicYearID + ":" + s.PersonnelCode
}

// CreateTransferRequest is the body of POST /v1/transfers.
type CreateTransferRequest struct {
	PersonnelCode       string        `json:"personnelCode" binding:"required,personnelcode"`
	NationalCode        string        `json:"nationalCode" binding:"required,nationalcode"`
	FirstName           string        `json:"firstName" binding:"required,max=100"`
	LastName            string        `json:"lastName" binding:"required,max=100"`
	Gender              string        `json:"gender" binding:"required,oneof=male female"`
	EmploymentType      string        `json:"employmentType" binding:"required,oneof=official contractual covenant"`
	Phone               string        `json:"phone" binding:"omitempty,mobile"`
	CurrentDistrictCode string        `json:"currentDistrictCode" binding:"omitempty,code"`
	ProvinceCode        string        `json:"provinceCode" binding:"omitempty,code"`
	AcademicYearID      string        `json:"academicYearId"`
	Destinations        []Destination `json:"destinations" binding:"omitempty,max=7,dive"`
	ApprovalReasonCodes []string      `json:"approvalReasonCodes" binding:"omitempty,dive,code"`
}

// UpdateTransferRequest is the body of PUT /v1/transfers/:id. Nil fields
// are left unchanged.
type UpdateTransferRequest struct {
	FirstName           *string        `json:"firstName" binding:"omitempty,max=100"`
	LastName            *string        `json:"lastName" binding:"omitempty,max=100"`
	Gender              *string        `json:"gender" binding:"omitempty,oneof=male female"`
	EmploymentType      *string        `json:"employmentType" binding:"omitempty,oneof=official contractual covenant"`
	Phone               *string        `json:"phone" binding:"omitempty,mobile"`
	Destinations        *[]Destination `json:"destinations" binding:"omitempty,max=7,dive"`
	ApprovalReasonCodes *[]string      `json:"approvalReasonCodes" binding:"omitempty,dive,code"`
}

// TouchesPersonalFields reports whether the request edits anything other
// than destinations and approval reasons.
func (r UpdateTransferRequest) TouchesPersonalFields() bool {
	return r.FirstName != nil || r.LastName != nil || r.Gender != nil ||
		r.EmploymentType != nil || r.Phone != nil
}

// VisibleTo reports whether actor may read the transfer.
func (s *TransferSpec) VisibleTo(actor *extensions.AuthInfo) bool {
	if actor == nil {
		return false
	}
	switch actor.Role {
	case RoleSystemAdmin:
		return true
	case RoleProvinceExpert:
		return actor.ProvinceCode == s.ProvinceCode
	case RoleDistrictExpert:
		return actor.DistrictCode == s.CurrentDistrictCode
	case RoleTransferApplicant:
		return s.OwnedBy(actor)
	}
	return false
}

// OwnedBy reports whether actor is the applicant. Specs created before
// the applicant's account existed are matched by national code.
func (s *TransferSpec) OwnedBy(actor *extensions.AuthInfo) bool {
	if s.UserID != "" {
		return s.UserID == actor.UserID
	}
	return s.NationalCode != "" && s.NationalCode == actor.Username
}

// CheckEditable decides whether actor may apply req.
//
// Applicants may change destinations and approval reasons while the transfer
// awaits or holds their approval. District experts may edit until the
// source decision. Admins may always edit.
func (s *TransferSpec) CheckEditable(actor *extensions.AuthInfo, req UpdateTransferRequest) error {
	switch actor.Role {
	case RoleSystemAdmin:
		return nil
	case RoleTransferApplicant:
		if req.TouchesPersonalFields() {
			return extensions.ErrForbidden
		}
		if s.CurrentRequestStatus != TransferAwaitingUserApproval && s.CurrentRequestStatus != TransferUserApproval {
			return ErrNotEditable
		}
		return nil
	case RoleDistrictExpert:
		switch s.CurrentRequestStatus {
		case TransferAwaitingUserApproval, TransferUserApproval, TransferSourceReview:
			return nil
		}
		return ErrNotEditable
	}
	return extensions.ErrForbidden
}

// Apply copies the non-nil fields of req into s.
func (s *TransferSpec) Apply(req UpdateTransferRequest, now time.Time) {
	if req.FirstName != nil {
		s.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		s.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Gender != nil {
		s.Gender = *req.Gender
	}
	if req.EmploymentType != nil {
		s.EmploymentType = *req.EmploymentType
	}
	if req.Phone != nil {
		s.Phone = *req.Phone
	}
	if req.Destinations != nil {
		s.Destinations = slices.Clone(*req.Destinations)
		SortDestinations(s.Destinations)
	}
	if req.ApprovalReasonCodes != nil {
		s.ApprovalReasonCodes = slices.Clone(*req.ApprovalReasonCodes)
	}
	s.UpdatedAt = now
}

// ApplyStatus moves the transfer to status to and appends a log entry.
//
// # Description
//
// Non-admin changes must match a row of the rule table for the current
// status. Admins may set any status. Rejections always need a comment.
//
// # Outputs
//
//   - error: *ValidationError for unknown statuses, *TransitionError
//     when no rule leads from the current status to the target,
//     extensions.ErrForbidden when the rule belongs to another role,
//     ErrCommentRequired for rejections without a comment.
func (s *TransferSpec) ApplyStatus(actor *extensions.AuthInfo, to, comment string, now time.Time) error {
	if !IsValidTransferStatus(to) {
		return Invalid("status", "unknown transfer status %q", to)
	}
	from := s.CurrentRequestStatus
	if from == to {
		return &TransitionError{From: from, To: to}
	}
	comment = strings.TrimSpace(comment)

	requireComment := to == TransferSourceRejection || to == TransferProvinceRejection
	if !actor.HasRole(RoleSystemAdmin) {
		rule, ok := findTransferRule(from, to)
		if !ok {
			return &TransitionError{From: from, To: to}
		}
		if !slices.Contains(rule.roles, actor.Role) {
			return extensions.ErrForbidden
		}
		requireComment = rule.requireComment
	}
	if requireComment && comment == "" {
		return ErrCommentRequired
	}

	s.CurrentRequestStatus = to
	s.UpdatedAt = now
	s.StatusLog = append(s.StatusLog, StatusLogEntry{
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
		Comment:    comment,
		At:         now,
	})
	return nil
}

// ValidateDestinations checks the preference list.
//
// At most MaxDestinations entries; priorities are exactly 1..n with no
// gaps or repeats; districts are unique and differ from the current one.
func ValidateDestinations(dests []Destination, currentDistrict string) error {
	if len(dests) > MaxDestinations {
		return Invalid("destinations", "at most %d destinations allowed", MaxDestinations)
	}
	seenPriority := make(map[int]bool, len(dests))
	seenDistrict := make(map[string]bool, len(dests))
	for _, d := range dests {
		if d.Priority < 1 || d.Priority > len(dests) {
			return Invalid("destinations", "priority %d out of range 1..%d", d.Priority, len(dests))
		}
		if seenPriority[d.Priority] {
			return Invalid("destinations", "priority %d used twice", d.Priority)
		}
		seenPriority[d.Priority] = true

		if d.TransferType != TransferPermanent && d.TransferType != TransferTemporary {
			return Invalid("destinations", "unknown transfer type %q", d.TransferType)
		}
		if d.DistrictCode == "" {
			return Invalid("destinations", "district code required")
		}
		if d.DistrictCode == currentDistrict {
			return Invalid("destinations", "destination %s is the current district", d.DistrictCode)
		}
		if seenDistrict[d.DistrictCode] {
			return Invalid("destinations", "district %s listed twice", d.DistrictCode)
		}
		seenDistrict[d.DistrictCode] = true
	}
	return nil
}

// SortDestinations orders destinations by priority.
func SortDestinations(dests []Destination) {
	slices.SortFunc(dests, func(a, b Destination) int { return a.Priority - b.Priority })
}

// TimelineEntry is one row of the applicant-facing timeline.
type TimelineEntry struct {
	Status     string    `json:"status"`
	Label      string    `json:"label"`
	ActorID    string    `json:"actorId"`
	ActorRole  string    `json:"actorRole"`
	ActorLabel string    `json:"actor"`
	Comment    string    `json:"comment,omitempty"`
	At         time.Time `json:"at"`
}

// Timeline projects the status log, oldest first.
func (s *TransferSpec) Timeline() []TimelineEntry {
	out := make([]TimelineEntry, 0, len(s.StatusLog))
	for _, e := range s.StatusLog {
		out = append(out, TimelineEntry{
			Status:     e.ToStatus,
			Label:      TransferStatusLabels[e.ToStatus],
			ActorID:    e.ActorID,
			ActorRole:  e.ActorRole,
			ActorLabel: RoleLabel(e.ActorRole),
			Comment:    e.Comment,
			At:         e.At,
		})
	}
	slices.SortStableFunc(out, func(a, b TimelineEntry) int { return a.At.Compare(b.At) })
	return out
}

// TransferFilter holds the list query parameters.
type TransferFilter struct {
	Status         string `form:"status"`
	DistrictCode   string `form:"districtCode"`
	AcademicYearID string `form:"academicYearId"`
	Query          string `form:"q"`
}

// Match reports whether s passes the filter. Query matches names,
// personnel code and national code.
func (f TransferFilter) Match(s TransferSpec) bool {
	if f.Status != "" && s.CurrentRequestStatus != f.Status {
		return false
	}
	if f.DistrictCode != "" && s.CurrentDistrictCode != f.DistrictCode {
		return false
	}
	if f.AcademicYearID != "" && s.AcademicYearID != f.AcademicYearID {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	for _, field := range []string{s.FirstName + " " + s.LastName, s.PersonnelCode, s.NationalCode} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
