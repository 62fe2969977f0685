// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"strings"
	"time"

	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
)

// Ticket statuses.
const (
	TicketNew              = "new"
	TicketSeen             = "seen"
	TicketInProgress       = "inProgress"
	TicketAnswered         = "answered"
	TicketReferredProvince = "referred_province"
	TicketClosed           = "closed"
)

// Ticket priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Ticket receivers: the level expected to answer.
const (
	ReceiverDistrict = "district"
	ReceiverProvince = "province"
)

// TicketStatusMeta holds display metadata for each ticket status.
type TicketStatusMeta struct {
	Status string
	Label  string
	Closed bool
}

// TicketStatusMetadata provides lookup by status.
var TicketStatusMetadata = map[string]TicketStatusMeta{
	TicketNew:              {Status: TicketNew, Label: "جدید"},
	TicketSeen:             {Status: TicketSeen, Label: "دیده شده"},
	TicketInProgress:       {Status: TicketInProgress, Label: "در حال بررسی"},
	TicketAnswered:         {Status: TicketAnswered, Label: "پاسخ داده شده"},
	TicketReferredProvince: {Status: TicketReferredProvince, Label: "ارجاع به استان"},
	TicketClosed:           {Status: TicketClosed, Label: "بسته شده", Closed: true},
}

// TicketStatusOrdering is the order statuses appear in filters and
// dashboard counts.
var TicketStatusOrdering = []string{
	TicketNew,
	TicketSeen,
	TicketInProgress,
	TicketAnswered,
	TicketReferredProvince,
	TicketClosed,
}

// IsValidTicketStatus reports whether status is a known ticket status.
func IsValidTicketStatus(status string) bool {
	_, ok := TicketStatusMetadata[status]
	return ok
}

// TicketResponse is one message in a ticket thread. Status is set when
// the message accompanied a status change.
type TicketResponse struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	AuthorID   string    `json:"authorId"`
	AuthorRole string    `json:"authorRole"`
	Status     string    `json:"status,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Attachment describes an uploaded file. ObjectKey locates the bytes in
// upload storage.
type Attachment struct {
	ID          string    `json:"id"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	ObjectKey   string    `json:"objectKey"`
	UploadedBy  string    `json:"uploadedBy"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Ticket is a support request raised by an exam center or a district.
type Ticket struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	Priority       string           `json:"priority"`
	Status         string           `json:"status"`
	Receiver       string           `json:"receiver"`
	CreatedBy      string           `json:"createdBy"`
	CreatorRole    string           `json:"creatorRole"`
	ExamCenterCode string           `json:"examCenterCode,omitempty"`
	DistrictCode   string           `json:"districtCode"`
	ProvinceCode   string           `json:"provinceCode"`
	Responses      []TicketResponse `json:"responses"`
	Attachments    []Attachment     `json:"attachments"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
	SeenAt         *time.Time       `json:"seenAt,omitempty"`
	ReferredAt     *time.Time       `json:"referredAt,omitempty"`
	ClosedAt       *time.Time       `json:"closedAt,omitempty"`
}

func (t Ticket) DocID() string { return t.ID }

// CreateTicketRequest is the body of POST /v1/tickets.
type CreateTicketRequest struct {
	Title       string `json:"title" binding:"required,min=3,max=200"`
	Description string `json:"description" binding:"required,max=5000"`
	Priority    string `json:"priority" binding:"omitempty,oneof=low medium high"`
}

// TicketResponseRequest is the body of POST /v1/tickets/:id/responses.
type TicketResponseRequest struct {
	Text string `json:"text" binding:"required,max=5000"`
}

// StatusChangeRequest is the body of the status PATCH endpoints.
type StatusChangeRequest struct {
	Status  string `json:"status" binding:"required"`
	Comment string `json:"comment" binding:"max=2000"`
}

// NewTicket builds a ticket raised by actor.
//
// # Description
//
// Scope codes are copied from the actor's token. Exam center managers
// address their district; district experts address their province. Any
// other role gets extensions.ErrForbidden.
func NewTicket(id string, req CreateTicketRequest, actor *extensions.AuthInfo, now time.Time) (Ticket, error) {
	var receiver string
	switch {
	case actor.HasRole(RoleExamCenterManager):
		receiver = ReceiverDistrict
	case actor.HasRole(RoleDistrictExpert):
		receiver = ReceiverProvince
	default:
		return Ticket{}, extensions.ErrForbidden
	}

	priority := req.Priority
	if priority == "" {
		priority = PriorityMedium
	}

	t := Ticket{
		ID:             id,
		Title:          strings.TrimSpace(req.Title),
		Description:    strings.TrimSpace(req.Description),
		Priority:       priority,
		Status:         TicketNew,
		Receiver:       receiver,
		CreatedBy:      actor.UserID,
		CreatorRole:    actor.Role,
		ExamCenterCode: actor.ExamCenterCode,
		DistrictCode:   actor.DistrictCode,
		ProvinceCode:   actor.ProvinceCode,
		Responses:      []TicketResponse{},
		Attachments:    []Attachment{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if t.Title == "" {
		return Ticket{}, Invalid("title", "must not be blank")
	}
	return t, nil
}

// IsCreator reports whether actor raised the ticket.
func (t *Ticket) IsCreator(actor *extensions.AuthInfo) bool {
	return actor != nil && actor.UserID == t.CreatedBy
}

// IsReceiver reports whether actor is the expert expected to answer.
func (t *Ticket) IsReceiver(actor *extensions.AuthInfo) bool {
	if actor == nil {
		return false
	}
	switch t.Receiver {
	case ReceiverDistrict:
		return actor.Role == RoleDistrictExpert && actor.DistrictCode == t.DistrictCode
	case ReceiverProvince:
		return actor.Role == RoleProvinceExpert && actor.ProvinceCode == t.ProvinceCode
	}
	return false
}

// VisibleTo reports whether actor may read the ticket.
//
// Admins see everything. Province experts see their province, district
// experts their district and exam center managers their own center.
func (t *Ticket) VisibleTo(actor *extensions.AuthInfo) bool {
	if actor == nil {
		return false
	}
	if t.IsCreator(actor) {
		return true
	}
	switch actor.Role {
	case RoleSystemAdmin:
		return true
	case RoleProvinceExpert:
		return actor.ProvinceCode == t.ProvinceCode
	case RoleDistrictExpert:
		return actor.DistrictCode == t.DistrictCode
	case RoleExamCenterManager:
		return t.ExamCenterCode != "" && actor.ExamCenterCode == t.ExamCenterCode
	}
	return false
}

// MarkSeen flips a new ticket to seen when its receiver opens it.
// Reports whether the ticket changed.
func (t *Ticket) MarkSeen(actor *extensions.AuthInfo, now time.Time) bool {
	if t.Status != TicketNew || !t.IsReceiver(actor) {
		return false
	}
	t.Status = TicketSeen
	t.SeenAt = &now
	t.UpdatedAt = now
	return true
}

// ApplyStatus changes the ticket status on behalf of actor.
//
// # Description
//
// Only the current status is checked; there is no history to replay.
// Allowed changes:
//
//   - new|seen -> inProgress by the receiver
//   - inProgress -> referred_province by the district receiver; the
//     ticket is re-addressed to the province
//   - any open status -> closed by the creator or the receiver
//   - systemAdmin may set any status
//
// answered and referred_province leave through responses (see
// ApplyResponse) or closing, not through this call. A non-empty comment is
// appended to the thread.
//
// # Outputs
//
//   - error: *ValidationError for unknown statuses, *TransitionError
//     when not allowed from the current status, extensions.ErrForbidden
//     when allowed for someone else.
func (t *Ticket) ApplyStatus(actor *extensions.AuthInfo, to, comment, responseID string, now time.Time) error {
	if !IsValidTicketStatus(to) {
		return Invalid("status", "unknown ticket status %q", to)
	}
	from := t.Status
	if from == to {
		return &TransitionError{From: from, To: to}
	}

	admin := actor.HasRole(RoleSystemAdmin)
	allowed := admin
	switch to {
	case TicketInProgress:
		switch from {
		case TicketNew, TicketSeen:
			allowed = allowed || t.IsReceiver(actor)
		default:
			if !admin {
				return &TransitionError{From: from, To: to}
			}
		}
	case TicketReferredProvince:
		if from != TicketInProgress && !admin {
			return &TransitionError{From: from, To: to}
		}
		allowed = allowed || (t.Receiver == ReceiverDistrict && t.IsReceiver(actor))
	case TicketClosed:
		allowed = allowed || t.IsCreator(actor) || t.IsReceiver(actor)
	default:
		if !admin {
			return &TransitionError{From: from, To: to}
		}
	}
	if !allowed {
		return extensions.ErrForbidden
	}

	t.Status = to
	t.UpdatedAt = now
	switch to {
	case TicketReferredProvince:
		t.Receiver = ReceiverProvince
		t.ReferredAt = &now
	case TicketClosed:
		t.ClosedAt = &now
	case TicketSeen:
		if t.SeenAt == nil {
			t.SeenAt = &now
		}
	}
	if to != TicketClosed {
		t.ClosedAt = nil
	}

	if comment = strings.TrimSpace(comment); comment != "" {
		t.Responses = append(t.Responses, TicketResponse{
			ID:         responseID,
			Text:       comment,
			AuthorID:   actor.UserID,
			AuthorRole: actor.Role,
			Status:     to,
			CreatedAt:  now,
		})
	}
	return nil
}

// AddResponse appends a message to the thread.
//
// A response from the receiver (or an admin) marks the ticket answered.
// A follow-up from the creator on an answered ticket reopens it as
// inProgress. Closed tickets accept no responses.
func (t *Ticket) AddResponse(actor *extensions.AuthInfo, id, text string, now time.Time) (TicketResponse, error) {
	if t.Status == TicketClosed {
		return TicketResponse{}, ErrNotEditable
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return TicketResponse{}, Invalid("text", "must not be blank")
	}

	switch {
	case t.IsReceiver(actor) || actor.HasRole(RoleSystemAdmin):
		t.Status = TicketAnswered
		if t.SeenAt == nil {
			t.SeenAt = &now
		}
	case t.IsCreator(actor):
		if t.Status == TicketAnswered {
			t.Status = TicketInProgress
		}
	default:
		return TicketResponse{}, extensions.ErrForbidden
	}

	resp := TicketResponse{
		ID:         id,
		Text:       text,
		AuthorID:   actor.UserID,
		AuthorRole: actor.Role,
		CreatedAt:  now,
	}
	t.Responses = append(t.Responses, resp)
	t.UpdatedAt = now
	return resp, nil
}

// CanDelete reports whether actor may delete the ticket: admins always,
// creators only while it is still new.
func (t *Ticket) CanDelete(actor *extensions.AuthInfo) bool {
	if actor.HasRole(RoleSystemAdmin) {
		return true
	}
	return t.IsCreator(actor) && t.Status == TicketNew
}

// CanAttach reports whether actor may upload files to the ticket.
func (t *Ticket) CanAttach(actor *extensions.AuthInfo) bool {
	if t.Status == TicketClosed {
		return false
	}
	return actor.HasRole(RoleSystemAdmin) || t.IsCreator(actor) || t.IsReceiver(actor)
}

// FindAttachment returns the attachment with the given ID.
func (t *Ticket) FindAttachment(id string) (Attachment, bool) {
	for _, a := range t.Attachments {
		if a.ID == id {
			return a, true
		}
	}
	return Attachment{}, false
}

// TicketFilter holds the list query parameters. Empty fields match all.
type TicketFilter struct {
	Status   string `form:"status"`
	Priority string `form:"priority"`
	Query    string `form:"q"`
}

// Match reports whether t passes the filter.
func (f TicketFilter) Match(t Ticket) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		return strings.Contains(strings.ToLower(t.Title), strings.ToLower(q))
	}
	return true
}
