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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/validation"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/auth"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/middleware"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/storage"
)

// ListUsers handles GET /v1/users (admin). Query: role, q, page, pageSize.
func ListUsers(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var filter datatypes.UserFilter
		var page datatypes.PageQuery
		if err := bindQuery(c, &filter, &page); err != nil {
			respondBindError(c, err)
			return
		}

		users, err := d.Stores.Users.List(c.Request.Context(), filter.Match)
		if err != nil {
			d.respondError(c, err)
			return
		}
		slices.SortFunc(users, func(a, b datatypes.User) int { return strings.Compare(a.Username, b.Username) })

		views := make([]datatypes.UserView, 0, len(users))
		for _, u := range users {
			views = append(views, u.Public())
		}
		c.JSON(http.StatusOK, datatypes.Paginate(views, page))
	}
}

// GetUser handles GET /v1/users/:id (admin).
func GetUser(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := d.Stores.Users.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			d.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user.Public())
	}
}

// NewUser validates req and builds an active user with a hashed
// password. Shared by the API and the CLI.
func NewUser(req datatypes.CreateUserRequest, id string, now time.Time) (datatypes.User, error) {
	u := datatypes.User{ID: id, CreatedAt: now, UpdatedAt: now}
	u.Username = normalizeUsername(req.Username)
	u.FirstName = strings.TrimSpace(req.FirstName)
	u.LastName = strings.TrimSpace(req.LastName)
	u.Email = strings.TrimSpace(req.Email)
	u.Role = req.Role
	u.IsActive = true

	if u.Username == "" {
		return datatypes.User{}, datatypes.Invalid("username", "must not be blank")
	}
	if req.Phone != "" {
		phone, err := validation.SanitizePhone(req.Phone)
		if err != nil {
			return datatypes.User{}, datatypes.Invalid("phone", "%v", err)
		}
		u.Phone = phone
	}

	codes := []struct {
		field string
		in    string
		out   *string
	}{
		{"provinceCode", req.ProvinceCode, &u.ProvinceCode},
		{"districtCode", req.DistrictCode, &u.DistrictCode},
		{"examCenterCode", req.ExamCenterCode, &u.ExamCenterCode},
	}
	for _, code := range codes {
		if code.in == "" {
			continue
		}
		v, err := validation.SanitizeCode(code.in)
		if err != nil {
			return datatypes.User{}, datatypes.Invalid(code.field, "%v", err)
		}
		*code.out = v
	}
	if err := datatypes.ValidateScope(u.Role, u.ProvinceCode, u.DistrictCode, u.ExamCenterCode); err != nil {
		return datatypes.User{}, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return datatypes.User{}, err
	}
	u.PasswordHash = hash
	return u, nil
}

// CreateUser handles POST /v1/users (admin). Usernames are unique.
func CreateUser(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		user, err := NewUser(req, storage.NewID(), d.now())
		if err != nil {
			d.respondError(c, err)
			return
		}
		if err := d.Stores.Users.Insert(c.Request.Context(), user); err != nil {
			d.respondError(c, err)
			return
		}

		d.audit(c, extensions.AuditEvent{
			EventType:    "user",
			Action:       "user.create",
			ResourceType: "user",
			ResourceID:   user.ID,
			Metadata:     map[string]any{"username": user.Username, "role": user.Role},
		})
		c.JSON(http.StatusCreated, user.Public())
	}
}

// UpdateUser handles PUT /v1/users/:id (admin).
//
// Admins cannot deactivate themselves or drop their own admin role, so
// the portal always keeps at least the acting admin.
func UpdateUser(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.UpdateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		actor := middleware.GetAuthInfo(c)
		id := c.Param("id")

		if id == actor.UserID {
			if req.IsActive != nil && !*req.IsActive {
				d.respondError(c, datatypes.Invalid("isActive", "you cannot deactivate your own account"))
				return
			}
			if req.Role != nil && *req.Role != actor.Role {
				d.respondError(c, datatypes.Invalid("role", "you cannot change your own role"))
				return
			}
		}
		if req.Phone != nil && *req.Phone != "" {
			phone, err := validation.SanitizePhone(*req.Phone)
			if err != nil {
				d.respondError(c, datatypes.Invalid("phone", "%v", err))
				return
			}
			req.Phone = &phone
		}
		for _, code := range []struct {
			field string
			value *string
		}{
			{"provinceCode", req.ProvinceCode},
			{"districtCode", req.DistrictCode},
			{"examCenterCode", req.ExamCenterCode},
		} {
			if code.value == nil || strings.TrimSpace(*code.value) == "" {
				continue
			}
			v, err := validation.SanitizeCode(strings.TrimSpace(*code.value))
			if err != nil {
				d.respondError(c, datatypes.Invalid(code.field, "%v", err))
				return
			}
			*code.value = v
		}

		var hash string
		if req.Password != nil {
			var err error
			if hash, err = auth.HashPassword(*req.Password); err != nil {
				d.respondError(c, err)
				return
			}
		}

		user, err := d.Stores.Users.Update(c.Request.Context(), id, func(u *datatypes.User) error {
			if hash != "" {
				u.PasswordHash = hash
			}
			return req.Apply(u, d.now())
		})
		if err != nil {
			d.respondError(c, err)
			return
		}

		d.audit(c, extensions.AuditEvent{
			EventType:    "user",
			Action:       "user.update",
			ResourceType: "user",
			ResourceID:   user.ID,
			Metadata: map[string]any{
				"role":            user.Role,
				"isActive":        user.IsActive,
				"passwordChanged": hash != "",
			},
		})
		c.JSON(http.StatusOK, user.Public())
	}
}

// DeleteUser handles DELETE /v1/users/:id (admin). Deleting yourself is
// rejected.
func DeleteUser(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.GetAuthInfo(c)
		id := c.Param("id")
		if id == actor.UserID {
			d.respondError(c, datatypes.Invalid("id", "you cannot delete your own account"))
			return
		}
		if err := d.Stores.Users.Delete(c.Request.Context(), id); err != nil {
			d.respondError(c, err)
			return
		}

		d.audit(c, extensions.AuditEvent{
			EventType:    "user",
			Action:       "user.delete",
			ResourceType: "user",
			ResourceID:   id,
		})
		c.Status(http.StatusNoContent)
	}
}

// bindQuery binds the query string into each target.
func bindQuery(c *gin.Context, targets ...any) error {
	for _, t := range targets {
		if err := c.ShouldBindQuery(t); err != nil {
			return err
		}
	}
	return nil
}
