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

// MinPasswordLength is enforced on every password set through the API.
const MinPasswordLength = 8

// User is a portal account as stored. Never serialize it to clients;
// use Public.
type User struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	PasswordHash   string     `json:"passwordHash"`
	FirstName      string     `json:"firstName"`
	LastName       string     `json:"lastName"`
	Phone          string     `json:"phone,omitempty"`
	Email          string     `json:"email,omitempty"`
	Role           string     `json:"role"`
	ProvinceCode   string     `json:"provinceCode,omitempty"`
	DistrictCode   string     `json:"districtCode,omitempty"`
	ExamCenterCode string     `json:"examCenterCode,omitempty"`
	IsActive       bool       `json:"isActive"`
	LastLoginAt    *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (u User) DocID() string { return u.ID }

// UserView is the client-facing shape of a User.
type UserView struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	FirstName      string     `json:"firstName"`
	LastName       string     `json:"lastName"`
	FullName       string     `json:"fullName"`
	Phone          string     `json:"phone,omitempty"`
	Email          string     `json:"email,omitempty"`
	Role           string     `json:"role"`
	RoleLabel      string     `json:"roleLabel"`
	ProvinceCode   string     `json:"provinceCode,omitempty"`
	DistrictCode   string     `json:"districtCode,omitempty"`
	ExamCenterCode string     `json:"examCenterCode,omitempty"`
	IsActive       bool       `json:"isActive"`
	LastLoginAt    *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Public strips the password hash.
func (u User) Public() UserView {
	return UserView{
		ID:             u.ID,
		Username:       u.Username,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		FullName:       strings.TrimSpace(u.FirstName + " " + u.LastName),
		Phone:          u.Phone,
		Email:          u.Email,
		Role:           u.Role,
		RoleLabel:      RoleLabel(u.Role),
		ProvinceCode:   u.ProvinceCode,
		DistrictCode:   u.DistrictCode,
		ExamCenterCode: u.ExamCenterCode,
		IsActive:       u.IsActive,
		LastLoginAt:    u.LastLoginAt,
		CreatedAt:      u.CreatedAt,
	}
}

// AuthInfo returns the identity carried through request contexts.
func (u User) AuthInfo() *extensions.AuthInfo {
	return &extensions.AuthInfo{
		UserID:         u.ID,
		Username:       u.Username,
		Role:           u.Role,
		ProvinceCode:   u.ProvinceCode,
		DistrictCode:   u.DistrictCode,
		ExamCenterCode: u.ExamCenterCode,
	}
}

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Username string `json:"username" form:"username" binding:"required,max=64"`
	Password string `json:"password" form:"password" binding:"required,max=128"`
}

// LoginResponse is returned on successful login.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      UserView  `json:"user"`
}

// ProfileUpdateRequest is the body of PUT /v1/profile.
type ProfileUpdateRequest struct {
	FirstName string `json:"firstName" binding:"required,max=100"`
	LastName  string `json:"lastName" binding:"required,max=100"`
	Phone     string `json:"phone" binding:"omitempty,mobile"`
	Email     string `json:"email" binding:"omitempty,email"`
}

// PasswordChangeRequest is the body of PUT /v1/profile/password.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8,max=128"`
}

// CreateUserRequest is the body of POST /v1/users.
type CreateUserRequest struct {
	Username       string `json:"username" binding:"required,min=3,max=64"`
	Password       string `json:"password" binding:"required,min=8,max=128"`
	FirstName      string `json:"firstName" binding:"required,max=100"`
	LastName       string `json:"lastName" binding:"required,max=100"`
	Phone          string `json:"phone" binding:"omitempty,mobile"`
	Email          string `json:"email" binding:"omitempty,email"`
	Role           string `json:"role" binding:"required,role"`
	ProvinceCode   string `json:"provinceCode" binding:"omitempty,code"`
	DistrictCode   string `json:"districtCode" binding:"omitempty,code"`
	ExamCenterCode string `json:"examCenterCode" binding:"omitempty,code"`
}

// UpdateUserRequest is the body of PUT /v1/users/:id. Nil fields are
// left unchanged; empty scope strings clear the code.
type UpdateUserRequest struct {
	FirstName      *string `json:"firstName" binding:"omitempty,max=100"`
	LastName       *string `json:"lastName" binding:"omitempty,max=100"`
	Phone          *string `json:"phone" binding:"omitempty,mobile"`
	Email          *string `json:"email" binding:"omitempty,email"`
	Role           *string `json:"role" binding:"omitempty,role"`
	ProvinceCode   *string `json:"provinceCode" binding:"omitempty,code"`
	DistrictCode   *string `json:"districtCode" binding:"omitempty,code"`
	ExamCenterCode *string `json:"examCenterCode" binding:"omitempty,code"`
	IsActive       *bool   `json:"isActive"`
	Password       *string `json:"password" binding:"omitempty,min=8,max=128"`
}

// Apply copies the non-nil fields of req (except Password) into u and
// re-validates the role scope.
func (req UpdateUserRequest) Apply(u *User, now time.Time) error {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&u.FirstName, req.FirstName)
	set(&u.LastName, req.LastName)
	set(&u.Phone, req.Phone)
	set(&u.Email, req.Email)
	set(&u.Role, req.Role)
	set(&u.ProvinceCode, req.ProvinceCode)
	set(&u.DistrictCode, req.DistrictCode)
	set(&u.ExamCenterCode, req.ExamCenterCode)
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}
	u.UpdatedAt = now
	return ValidateScope(u.Role, u.ProvinceCode, u.DistrictCode, u.ExamCenterCode)
}

// UserFilter holds the admin list query parameters.
type UserFilter struct {
	Role  string `form:"role"`
	Query string `form:"q"`
}

// Match reports whether u passes the filter. Query matches username and
// full name.
func (f UserFilter) Match(u User) bool {
	if f.Role != "" && u.Role != f.Role {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(u.Username), q) ||
		strings.Contains(strings.ToLower(u.FirstName+" "+u.LastName), q)
}
