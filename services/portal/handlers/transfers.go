// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/validation"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/middleware"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/storage"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/stores"
)

// =============================================================================
// Helpers
// =============================================================================

// checkApprovalReasons verifies every code names an active approval
// reason. Run it inside the transaction that writes the transfer so a
// concurrent deactivation conflicts with the write.
func (d *Deps) checkApprovalReasons(tx *storage.Tx, codes []string) error {
	reasons := d.Stores.ApprovalReasons.In(tx)
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		if seen[code] {
			return datatypes.Invalid("approvalReasonCodes", "code %s listed twice", code)
		}
		seen[code] = true

		reason, err := reasons.FindBy(stores.FieldCode, code)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && !reason.IsActive) {
			return datatypes.Invalid("approvalReasonCodes", "unknown or inactive approval reason %s", code)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// activeYear returns the active academic year or storage.ErrNotFound.
func (d *Deps) activeYear(ctx context.Context) (datatypes.AcademicYear, error) {
	years, err := d.Stores.AcademicYears.List(ctx, func(y datatypes.AcademicYear) bool { return y.IsActive })
	if err != nil {
		return datatypes.AcademicYear{}, err
	}
	if len(years) == 0 {
		return datatypes.AcademicYear{}, storage.ErrNotFound
	}
	return years[0], nil
}

// sanitizeCodes normalizes each code in place.
func sanitizeCodes(field string, codes []string) error {
	for i, code := range codes {
		v, err := validation.SanitizeCode(code)
		if err != nil {
			return datatypes.Invalid(field, "%v", err)
		}
		codes[i] = v
	}
	return nil
}

func sanitizeDestinations(dests []datatypes.Destination) error {
	for i := range dests {
		v, err := validation.SanitizeCode(dests[i].DistrictCode)
		if err != nil {
			return datatypes.Invalid("destinations", "%v", err)
		}
		dests[i].DistrictCode = v
	}
	return nil
}

// applicantUserID returns the ID of the applicant account whose username
// is nationalCode, or "".
func (d *Deps) applicantUserID(ctx context.Context, nationalCode string) string {
	user, err := d.Stores.Users.FindBy(ctx, stores.FieldUsername, nationalCode)
	if err != nil || user.Role != datatypes.RoleTransferApplicant {
		return ""
	}
	return user.ID
}

// buildTransferSpec validates req on behalf of actor and returns the new
// spec in its initial status.
func (d *Deps) buildTransferSpec(ctx context.Context, actor *extensions.AuthInfo, req datatypes.CreateTransferRequest) (datatypes.TransferSpec, error) {
	var spec datatypes.TransferSpec
	var err error

	if spec.NationalCode, err = validation.SanitizeNationalCode(req.NationalCode); err != nil {
		return spec, datatypes.Invalid("nationalCode", "%v", err)
	}
	if spec.PersonnelCode, err = validation.SanitizePersonnelCode(req.PersonnelCode); err != nil {
		return spec, datatypes.Invalid("personnelCode", "%v", err)
	}
	if req.Phone != "" {
		if spec.Phone, err = validation.SanitizePhone(req.Phone); err != nil {
			return spec, datatypes.Invalid("phone", "%v", err)
		}
	}

	switch actor.Role {
	case datatypes.RoleDistrictExpert:
		if req.CurrentDistrictCode != "" && req.CurrentDistrictCode != actor.DistrictCode {
			return spec, extensions.ErrForbidden
		}
		spec.CurrentDistrictCode = actor.DistrictCode
		spec.ProvinceCode = actor.ProvinceCode
	case datatypes.RoleSystemAdmin:
		if req.CurrentDistrictCode == "" {
			return spec, datatypes.Invalid("currentDistrictCode", "required")
		}
		if req.ProvinceCode == "" {
			return spec, datatypes.Invalid("provinceCode", "required")
		}
		if spec.CurrentDistrictCode, err = validation.SanitizeCode(req.CurrentDistrictCode); err != nil {
			return spec, datatypes.Invalid("currentDistrictCode", "%v", err)
		}
		if spec.ProvinceCode, err = validation.SanitizeCode(req.ProvinceCode); err != nil {
			return spec, datatypes.Invalid("provinceCode", "%v", err)
		}
	default:
		return spec, extensions.ErrForbidden
	}

	if req.AcademicYearID == "" {
		year, err := d.activeYear(ctx)
		if errors.Is(err, storage.ErrNotFound) {
			return spec, datatypes.Invalid("academicYearId", "no academic year is active; pass academicYearId")
		}
		if err != nil {
			return spec, err
		}
		spec.AcademicYearID = year.ID
	} else {
		if _, err := d.Stores.AcademicYears.Get(ctx, req.AcademicYearID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return spec, datatypes.Invalid("academicYearId", "unknown academic year")
			}
			return spec, err
		}
		spec.AcademicYearID = req.AcademicYearID
	}

	spec.Destinations = slices.Clone(req.Destinations)
	if spec.Destinations == nil {
		spec.Destinations = []datatypes.Destination{}
	}
	if err := sanitizeDestinations(spec.Destinations); err != nil {
		return spec, err
	}
	if err := datatypes.ValidateDestinations(spec.Destinations, spec.CurrentDistrictCode); err != nil {
		return spec, err
	}
	datatypes.SortDestinations(spec.Destinations)

	spec.ApprovalReasonCodes = slices.Clone(req.ApprovalReasonCodes)
	if spec.ApprovalReasonCodes == nil {
		spec.ApprovalReasonCodes = []string{}
	}
	if err := sanitizeCodes("approvalReasonCodes", spec.ApprovalReasonCodes); err != nil {
		return spec, err
	}

	now := d.now()
	spec.ID = storage.NewID()
	spec.FirstName = strings.TrimSpace(req.FirstName)
	spec.LastName = strings.TrimSpace(req.LastName)
	spec.Gender = req.Gender
	spec.EmploymentType = req.EmploymentType
	spec.UserID = d.applicantUserID(ctx, spec.NationalCode)
	spec.CurrentRequestStatus = datatypes.TransferAwaitingUserApproval
	spec.StatusLog = []datatypes.StatusLogEntry{{
		ToStatus:  datatypes.TransferAwaitingUserApproval,
		ActorID:   actor.UserID,
		ActorRole: actor.Role,
		At:        now,
	}}
	spec.CreatedAt = now
	spec.UpdatedAt = now
	return spec, nil
}

// loadTransfer returns the transfer if actor may see it, else ErrNotFound.
func (d *Deps) loadTransfer(ctx context.Context, actor *extensions.AuthInfo, id string) (datatypes.TransferSpec, error) {
	spec, err := d.Stores.Transfers.Get(ctx, id)
	if err != nil {
		return datatypes.TransferSpec{}, err
	}
	if !spec.VisibleTo(actor) {
		return datatypes.TransferSpec{}, storage.ErrNotFound
	}
	return spec, nil
}

// visibleTransfers returns the specs actor may see that pass filter,
// newest first.
func (d *Deps) visibleTransfers(ctx context.Context, actor *extensions.AuthInfo, filter datatypes.TransferFilter) ([]datatypes.TransferSpec, error) {
	specs, err := d.Stores.Transfers.List(ctx, func(s datatypes.TransferSpec) bool {
		return s.VisibleTo(actor) && filter.Match(s)
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(specs, func(a, b datatypes.TransferSpec) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return specs, nil
}

// =============================================================================
// Handlers
// =============================================================================

// CreateTransfer handles POST /v1/transfers.
//
// # Description
//
// District experts create specs for their own district; admins must
// name the district and province. The personnel code is unique per
// academic year (409 duplicate). The transfer starts in
// awaiting_user_approval with one status-log entry.
func CreateTransfer(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateTransferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		ctx := c.Request.Context()

		spec, err := d.buildTransferSpec(ctx, middleware.GetAuthInfo(c), req)
		if err != nil {
			d.respondError(c, err)
			return
		}
		err = d.Stores.DB.RunInTx(ctx, func(tx *storage.Tx) error {
			if err := d.Stores.AcademicYears.In(tx).Touch(spec.AcademicYearID); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return datatypes.Invalid("academicYearId", "unknown academic year")
				}
				return err
			}
			if err := d.checkApprovalReasons(tx, spec.ApprovalReasonCodes); err != nil {
				return err
			}
			return d.Stores.Transfers.In(tx).Insert(spec)
		})
		if err != nil {
			d.respondError(c, err)
			return
		}

		d.Metrics.RecordStatusChange("transfer", spec.CurrentRequestStatus)
		d.audit(c, extensions.AuditEvent{
			EventType:    "transfer",
			Action:       "transfer.create",
			ResourceType: "transfer",
			ResourceID:   spec.ID,
			Metadata:     map[string]any{"personnelCode": spec.PersonnelCode, "academicYearId": spec.AcademicYearID},
		})
		c.JSON(http.StatusCreated, spec)
	}
}

// ListTransfers handles GET /v1/transfers.
//
// Query: status, districtCode, academicYearId, q, page, pageSize.
// Applicants see their own spec, district experts their district,
// province experts their province.
func ListTransfers(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var filter datatypes.TransferFilter
		var page datatypes.PageQuery
		if err := bindQuery(c, &filter, &page); err != nil {
			respondBindError(c, err)
			return
		}
		if filter.Status != "" && !datatypes.IsValidTransferStatus(filter.Status) {
			d.respondError(c, datatypes.Invalid("status", "unknown transfer status %q", filter.Status))
			return
		}

		specs, err := d.visibleTransfers(c.Request.Context(), middleware.GetAuthInfo(c), filter)
		if err != nil {
			d.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, datatypes.Paginate(specs, page))
	}
}

// GetMyTransfer handles GET /v1/transfers/me: the caller's own spec for
// the active academic year, or their most recent one.
func GetMyTransfer(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.GetAuthInfo(c)
		ctx := c.Request.Context()

		specs, err := d.Stores.Transfers.List(ctx, func(s datatypes.TransferSpec) bool { return s.OwnedBy(actor) })
		if err != nil {
			d.respondError(c, err)
			return
		}
		if len(specs) == 0 {
			d.respondError(c, storage.ErrNotFound)
			return
		}

		slices.SortFunc(specs, func(a, b datatypes.TransferSpec) int { return b.CreatedAt.Compare(a.CreatedAt) })
		pick := specs[0]
		if year, err := d.activeYear(ctx); err == nil {
			if i := slices.IndexFunc(specs, func(s datatypes.TransferSpec) bool { return s.AcademicYearID == year.ID }); i >= 0 {
				pick = specs[i]
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"spec":         pick,
			"nextStatuses": datatypes.NextTransferStatuses(pick.CurrentRequestStatus, actor.Role),
		})
	}
}

// GetTransfer handles GET /v1/transfers/:id.
func GetTransfer(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		spec, err := d.loadTransfer(c.Request.Context(), middleware.GetAuthInfo(c), c.Param("id"))
		if err != nil {
			d.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, spec)
	}
}

// UpdateTransfer handles PUT /v1/transfers/:id.
//
// # Description
//
// Applicants may change destinations and approval reasons while the
// spec awaits or holds their approval; district experts and admins may
// change personal fields too. Approval reasons must exist and be
// active; destinations are capped at seven with priorities 1..n.
func UpdateTransfer(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.UpdateTransferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		actor := middleware.GetAuthInfo(c)
		ctx := c.Request.Context()

		if req.Phone != nil && *req.Phone != "" {
			phone, err := validation.SanitizePhone(*req.Phone)
			if err != nil {
				d.respondError(c, datatypes.Invalid("phone", "%v", err))
				return
			}
			req.Phone = &phone
		}
		if req.Destinations != nil {
			if err := sanitizeDestinations(*req.Destinations); err != nil {
				d.respondError(c, err)
				return
			}
		}
		if req.ApprovalReasonCodes != nil {
			if err := sanitizeCodes("approvalReasonCodes", *req.ApprovalReasonCodes); err != nil {
				d.respondError(c, err)
				return
			}
		}

		var spec datatypes.TransferSpec
		err := d.Stores.DB.RunInTx(ctx, func(tx *storage.Tx) error {
			var err error
			spec, err = d.Stores.Transfers.In(tx).Update(c.Param("id"), func(s *datatypes.TransferSpec) error {
				if !s.VisibleTo(actor) {
					return storage.ErrNotFound
				}
				if err := s.CheckEditable(actor, req); err != nil {
					return err
				}
				if req.Destinations != nil {
					if err := datatypes.ValidateDestinations(*req.Destinations, s.CurrentDistrictCode); err != nil {
						return err
					}
				}
				if req.ApprovalReasonCodes != nil {
					if err := d.checkApprovalReasons(tx, *req.ApprovalReasonCodes); err != nil {
						return err
					}
				}
				s.Apply(req, d.now())
				if s.UserID == "" && actor.Role == datatypes.RoleTransferApplicant {
					s.UserID = actor.UserID
				}
				return nil
			})
			return err
		})
		if err != nil {
			d.respondError(c, err)
			return
		}

		d.audit(c, extensions.AuditEvent{
			EventType:    "transfer",
			Action:       "transfer.update",
			ResourceType: "transfer",
			ResourceID:   spec.ID,
			Metadata: map[string]any{
				"personalFields": req.TouchesPersonalFields(),
				"destinations":   req.Destinations != nil,
				"reasons":        req.ApprovalReasonCodes != nil,
			},
		})
		c.JSON(http.StatusOK, spec)
	}
}

// ChangeTransferStatus handles PATCH /v1/transfers/:id/status with body
// {status, comment}. The status change and its log entry are written in
// one transaction.
func ChangeTransferStatus(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.StatusChangeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		actor := middleware.GetAuthInfo(c)

		var before string
		spec, err := d.Stores.Transfers.Update(c.Request.Context(), c.Param("id"), func(s *datatypes.TransferSpec) error {
			if !s.VisibleTo(actor) {
				return storage.ErrNotFound
			}
			before = s.CurrentRequestStatus
			if err := s.ApplyStatus(actor, req.Status, req.Comment, d.now()); err != nil {
				return err
			}
			if s.UserID == "" && actor.Role == datatypes.RoleTransferApplicant {
				s.UserID = actor.UserID
			}
			return nil
		})
		if err != nil {
			d.respondError(c, err)
			return
		}

		d.Metrics.RecordStatusChange("transfer", spec.CurrentRequestStatus)
		d.audit(c, extensions.AuditEvent{
			EventType:    "transfer",
			Action:       "transfer.status",
			ResourceType: "transfer",
			ResourceID:   spec.ID,
			Metadata: map[string]any{
				"fromStatus": before,
				"toStatus":   spec.CurrentRequestStatus,
				"comment":    strings.TrimSpace(req.Comment),
			},
		})
		c.JSON(http.StatusOK, spec)
	}
}

// TransferTimeline handles GET /v1/transfers/:id/timeline.
func TransferTimeline(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		spec, err := d.loadTransfer(c.Request.Context(), middleware.GetAuthInfo(c), c.Param("id"))
		if err != nil {
			d.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":            spec.ID,
			"currentStatus": spec.CurrentRequestStatus,
			"entries":       spec.Timeline(),
		})
	}
}

// DeleteTransfer handles DELETE /v1/transfers/:id (admin).
func DeleteTransfer(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := d.Stores.Transfers.Delete(c.Request.Context(), id); err != nil {
			d.respondError(c, err)
			return
		}
		d.audit(c, extensions.AuditEvent{
			EventType:    "transfer",
			Action:       "transfer.delete",
			ResourceType: "transfer",
			ResourceID:   id,
		})
		c.Status(http.StatusNoContent)
	}
}
