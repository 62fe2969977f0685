// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/storage"
)

// ListAcademicYears returns every year, newest name first.
func ListAcademicYears(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		years, err := d.Stores.AcademicYears.List(c.Request.Context(), nil)
		if err != nil {
			d.respondError(c, err)
			return
		}
		slices.SortFunc(years, func(a, b datatypes.AcademicYear) int { return strings.Compare(b.Name, a.Name) })
		c.JSON(http.StatusOK, gin.H{"items": years})
	}
}

// GetActiveAcademicYear answers 404 when no year is active.
func GetActiveAcademicYear(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		year, err := d.activeYear(c.Request.Context())
		if err != nil {
			d.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, year)
	}
}

func GetAcademicYear(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		year, err := d.Stores.AcademicYears.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			d.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, year)
	}
}

// bindAcademicYear binds and normalizes the request body. The second
// result reports whether binding itself failed.
func bindAcademicYear(c *gin.Context) (datatypes.AcademicYearRequest, bool, error) {
	var req datatypes.AcademicYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return req, true, err
	}
	name, err := datatypes.NormalizeAcademicYearName(req.Name)
	if err != nil {
		return req, false, err
	}
	req.Name = name
	return req, false, req.ValidateDates()
}

// CreateAcademicYear handles POST /v1/academic-years (admin). New years
// start inactive; names are unique.
func CreateAcademicYear(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, bindFailed, err := bindAcademicYear(c)
		if err != nil {
			d.respondBindOrError(c, bindFailed, err)
			return
		}

		now := d.now()
		year := datatypes.AcademicYear{
			ID:        storage.NewID(),
			Name:      req.Name,
			StartDate: req.StartDate,
			EndDate:   req.EndDate,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := d.Stores.AcademicYears.Insert(c.Request.Context(), year); err != nil {
			d.respondError(c, err)
			return
		}

		d.audit(c, extensions.AuditEvent{
			EventType:    "reference",
			Action:       "academicYear.create",
			ResourceType: "academicYear",
			ResourceID:   year.ID,
			Metadata:     map[string]any{"name": year.Name},
		})
		c.JSON(http.StatusCreated, year)
	}
}

// UpdateAcademicYear handles PUT /v1/academic-years/:id (admin).
func UpdateAcademicYear(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, bindFailed, err := bindAcademicYear(c)
		if err != nil {
			d.respondBindOrError(c, bindFailed, err)
			return
		}

		year, err := d.Stores.AcademicYears.Update(c.Request.Context(), c.Param("id"), func(y *datatypes.AcademicYear) error {
			y.Name = req.Name
			y.StartDate = req.StartDate
			y.EndDate = req.EndDate
			y.UpdatedAt = d.now()
			return nil
		})
		if err != nil {
			d.respondError(c, err)
			return
		}

		d.audit(c, extensions.AuditEvent{
			EventType:    "reference",
			Action:       "academicYear.update",
			ResourceType: "academicYear",
			ResourceID:   year.ID,
			Metadata:     map[string]any{"name": year.Name},
		})
		c.JSON(http.StatusOK, year)
	}
}

// DeleteAcademicYear handles DELETE /v1/academic-years/:id (admin). The
// active year, and years that transfer specs still reference, answer
// 409 not_editable.
func DeleteAcademicYear(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.Param("id")

		// Transfer creation touches its year in the same way, so a transfer
		// committed between the count and the delete fails one side.
		err := d.Stores.DB.RunInTx(ctx, func(tx *storage.Tx) error {
			return d.Stores.AcademicYears.In(tx).DeleteIf(id, func(y datatypes.AcademicYear) error {
				if y.IsActive {
					return datatypes.ErrNotEditable
				}
				refs, err := d.Stores.Transfers.In(tx).Count(func(s datatypes.TransferSpec) bool { return s.AcademicYearID == id })
				if err != nil {
					return err
				}
				if refs > 0 {
					return datatypes.ErrNotEditable
				}
				return nil
			})
		})
		if err != nil {
			d.respondError(c, err)
			return
		}

		d.audit(c, extensions.AuditEvent{
			EventType:    "reference",
			Action:       "academicYear.delete",
			ResourceType: "academicYear",
			ResourceID:   id,
		})
		c.Status(http.StatusNoContent)
	}
}

// ActivateAcademicYear handles POST /v1/academic-years/:id/activate
// (admin). Every other year is deactivated in the same transaction, so
// at most one year is ever active.
func ActivateAcademicYear(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.Param("id")

		if _, err := d.Stores.AcademicYears.Get(ctx, id); err != nil {
			d.respondError(c, err)
			return
		}

		now := d.now()
		found := false
		err := d.Stores.AcademicYears.UpdateAll(ctx, func(y *datatypes.AcademicYear) (bool, error) {
			want := y.ID == id
			found = found || want
			if y.IsActive == want {
				return false, nil
			}
			y.IsActive = want
			y.UpdatedAt = now
			return true, nil
		})
		if err == nil && !found {
			err = storage.ErrNotFound
		}
		if err != nil {
			d.respondError(c, err)
			return
		}

		year, err := d.Stores.AcademicYears.Get(ctx, id)
		if err != nil {
			d.respondError(c, err)
			return
		}

		d.audit(c, extensions.AuditEvent{
			EventType:    "reference",
			Action:       "academicYear.activate",
			ResourceType: "academicYear",
			ResourceID:   id,
			Metadata:     map[string]any{"name": year.Name},
		})
		c.JSON(http.StatusOK, year)
	}
}
