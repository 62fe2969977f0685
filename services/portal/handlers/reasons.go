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

	"github.com/gin-gonic/gin"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/validation"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/storage"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/stores"
)

// Dropout and approval reasons share one handler set; kind selects the
// collection.

type reasonListQuery struct {
	Active *bool `form:"active"`
}

// ListReasons returns the reasons of kind ordered by displayOrder then
// code. ?active=true keeps active reasons only.
func ListReasons(d *Deps, kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q reasonListQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			respondBindError(c, err)
			return
		}
		reasons, err := d.Stores.Reasons(kind).List(c.Request.Context(), func(r datatypes.Reason) bool {
			return q.Active == nil || r.IsActive == *q.Active
		})
		if err != nil {
			d.respondError(c, err)
			return
		}
		datatypes.SortReasons(reasons)
		c.JSON(http.StatusOK, gin.H{"items": reasons})
	}
}

func GetReason(d *Deps, kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		reason, err := d.Stores.Reasons(kind).Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			d.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, reason)
	}
}

// bindReason binds, normalizes and checks a reason body. The first
// result reports whether binding itself failed.
func (d *Deps) bindReason(c *gin.Context, kind string) (datatypes.ReasonRequest, bool, error) {
	var req datatypes.ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return req, true, err
	}
	code, err := validation.SanitizeCode(req.Code)
	if err != nil {
		return req, false, datatypes.Invalid("code", "%v", err)
	}
	req.Code = code
	if req.ParentCode != "" {
		if req.ParentCode, err = validation.SanitizeCode(req.ParentCode); err != nil {
			return req, false, datatypes.Invalid("parentCode", "%v", err)
		}
	}
	return req, false, req.Check(kind)
}

// checkParent enforces one level of nesting: the parent must exist and
// be top-level, and a reason with children cannot itself get a parent.
func (d *Deps) checkParent(ctx context.Context, kind, selfCode, parentCode string) error {
	if parentCode == "" {
		return nil
	}
	parent, err := d.Stores.Reasons(kind).FindBy(ctx, stores.FieldCode, parentCode)
	if errors.Is(err, storage.ErrNotFound) {
		return datatypes.Invalid("parentCode", "unknown parent reason %s", parentCode)
	}
	if err != nil {
		return err
	}
	if parent.ParentCode != "" {
		return datatypes.Invalid("parentCode", "reasons nest only one level deep")
	}
	if selfCode == "" {
		return nil
	}
	children, err := d.Stores.Reasons(kind).Count(ctx, func(r datatypes.Reason) bool {
		return r.ParentCode == selfCode
	})
	if err != nil {
		return err
	}
	if children > 0 {
		return datatypes.Invalid("parentCode", "a reason with children cannot be nested")
	}
	return nil
}

// CreateReason handles POST on a reason collection (admin). Codes are
// unique per collection.
func CreateReason(d *Deps, kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, bindFailed, err := d.bindReason(c, kind)
		if err != nil {
			d.respondBindOrError(c, bindFailed, err)
			return
		}
		ctx := c.Request.Context()
		if err := d.checkParent(ctx, kind, "", req.ParentCode); err != nil {
			d.respondError(c, err)
			return
		}

		now := d.now()
		reason := datatypes.Reason{ID: storage.NewID(), CreatedAt: now}
		req.ApplyTo(&reason, now)
		reason.IsActive = req.IsActive == nil || *req.IsActive
		if err := d.Stores.Reasons(kind).Insert(ctx, reason); err != nil {
			d.respondError(c, err)
			return
		}

		d.audit(c, extensions.AuditEvent{
			EventType:    "reference",
			Action:       kind + "Reason.create",
			ResourceType: kind + "Reason",
			ResourceID:   reason.ID,
			Metadata:     map[string]any{"code": reason.Code},
		})
		c.JSON(http.StatusCreated, reason)
	}
}

// UpdateReason handles PUT on a reason (admin). A nil isActive keeps
// the current flag.
func UpdateReason(d *Deps, kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, bindFailed, err := d.bindReason(c, kind)
		if err != nil {
			d.respondBindOrError(c, bindFailed, err)
			return
		}
		ctx := c.Request.Context()
		id := c.Param("id")

		current, err := d.Stores.Reasons(kind).Get(ctx, id)
		if err != nil {
			d.respondError(c, err)
			return
		}
		if err := d.checkParent(ctx, kind, current.Code, req.ParentCode); err != nil {
			d.respondError(c, err)
			return
		}
		if current.Code != req.Code {
			children, err := d.Stores.Reasons(kind).Count(ctx, func(r datatypes.Reason) bool {
				return r.ParentCode == current.Code
			})
			if err != nil {
				d.respondError(c, err)
				return
			}
			if children > 0 {
				d.respondError(c, datatypes.Invalid("code", "cannot rename a reason that has children"))
				return
			}
		}

		reason, err := d.Stores.Reasons(kind).Update(ctx, id, func(r *datatypes.Reason) error {
			req.ApplyTo(r, d.now())
			return nil
		})
		if err != nil {
			d.respondError(c, err)
			return
		}

		d.audit(c, extensions.AuditEvent{
			EventType:    "reference",
			Action:       kind + "Reason.update",
			ResourceType: kind + "Reason",
			ResourceID:   reason.ID,
			Metadata:     map[string]any{"code": reason.Code, "isActive": reason.IsActive},
		})
		c.JSON(http.StatusOK, reason)
	}
}

// DeleteReason handles DELETE on a reason (admin). A dropout reason with
// children answers 409 not_editable.
func DeleteReason(d *Deps, kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.Param("id")
		coll := d.Stores.Reasons(kind)

		current, err := coll.Get(ctx, id)
		if err != nil {
			d.respondError(c, err)
			return
		}
		children, err := coll.Count(ctx, func(r datatypes.Reason) bool { return r.ParentCode == current.Code })
		if err != nil {
			d.respondError(c, err)
			return
		}
		if children > 0 {
			d.respondError(c, datatypes.ErrNotEditable)
			return
		}
		if err := coll.Delete(ctx, id); err != nil {
			d.respondError(c, err)
			return
		}

		d.audit(c, extensions.AuditEvent{
			EventType:    "reference",
			Action:       kind + "Reason.delete",
			ResourceType: kind + "Reason",
			ResourceID:   id,
			Metadata:     map[string]any{"code": current.Code},
		})
		c.Status(http.StatusNoContent)
	}
}
