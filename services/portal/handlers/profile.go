// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/validation"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/auth"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/middleware"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/storage"
)

// GetProfile returns the caller's own account.
func GetProfile(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.GetAuthInfo(c)
		user, err := d.Stores.Users.Get(c.Request.Context(), actor.UserID)
		if err != nil {
			d.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user.Public())
	}
}

// UpdateProfile lets the caller edit their name and contact details.
// Role and scope are admin-managed and cannot be changed here.
func UpdateProfile(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ProfileUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		phone := ""
		if req.Phone != "" {
			var err error
			if phone, err = validation.SanitizePhone(req.Phone); err != nil {
				d.respondError(c, datatypes.Invalid("phone", "%v", err))
				return
			}
		}

		actor := middleware.GetAuthInfo(c)
		user, err := d.Stores.Users.Update(c.Request.Context(), actor.UserID, func(u *datatypes.User) error {
			u.FirstName = strings.TrimSpace(req.FirstName)
			u.LastName = strings.TrimSpace(req.LastName)
			u.Phone = phone
			u.Email = strings.TrimSpace(req.Email)
			u.UpdatedAt = d.now()
			return nil
		})
		if err != nil {
			d.respondError(c, err)
			return
		}

		d.audit(c, extensions.AuditEvent{
			EventType:    "user",
			Action:       "profile.update",
			ResourceType: "user",
			ResourceID:   user.ID,
		})
		c.JSON(http.StatusOK, user.Public())
	}
}

// ChangePassword verifies the current password and stores a new hash.
func ChangePassword(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.PasswordChangeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		ctx := c.Request.Context()
		actor := middleware.GetAuthInfo(c)

		user, err := d.Stores.Users.Get(ctx, actor.UserID)
		if err != nil {
			d.respondError(c, err)
			return
		}
		if err := auth.CheckPassword(user.PasswordHash, req.CurrentPassword); err != nil {
			if errors.Is(err, auth.ErrWrongPassword) {
				d.audit(c, extensions.AuditEvent{
					EventType:    "user",
					Action:       "profile.password",
					ResourceType: "user",
					ResourceID:   user.ID,
					Outcome:      extensions.OutcomeDenied,
				})
				err = datatypes.Invalid("currentPassword", "is incorrect")
			}
			d.respondError(c, err)
			return
		}
		if req.NewPassword == req.CurrentPassword {
			d.respondError(c, datatypes.Invalid("newPassword", "must differ from the current password"))
			return
		}

		hash, err := auth.HashPassword(req.NewPassword)
		if err != nil {
			d.respondError(c, err)
			return
		}
		oldHash := user.PasswordHash
		_, err = d.Stores.Users.Update(ctx, user.ID, func(u *datatypes.User) error {
			if u.PasswordHash != oldHash {
				return storage.ErrConflict
			}
			u.PasswordHash = hash
			u.UpdatedAt = d.now()
			return nil
		})
		if err != nil {
			d.respondError(c, err)
			return
		}

		d.audit(c, extensions.AuditEvent{
			EventType:    "user",
			Action:       "profile.password",
			ResourceType: "user",
			ResourceID:   user.ID,
		})
		c.JSON(http.StatusOK, gin.H{"status": "password_changed"})
	}
}
