// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
	"slices"
)

// ErrUnauthorized is returned when a request carries no valid credentials.
//
// Middleware maps it to HTTP 401.
var ErrUnauthorized = errors.New("unauthorized")

// ErrForbidden is returned when an authenticated user lacks permission.
//
// Middleware and handlers map it to HTTP 403.
var ErrForbidden = errors.New("forbidden")

// AuthInfo contains the identity and scope of an authenticated user.
//
// # Description
//
// AuthInfo is produced by an AuthProvider and stored in the request
// context. Scope codes restrict which tickets and transfer specs the
// user may see: a district expert only sees its district, a province
// expert only its province, and so on.
//
// # Fields
//
//   - UserID: Stable document ID of the user.
//   - Username: Login name (national code or phone number).
//   - Role: One of the portal roles (e.g. "districtEducationExpert").
//   - ProvinceCode, DistrictCode, ExamCenterCode: Organisational scope.
//     Empty codes mean "not applicable" for the role.
type AuthInfo struct {
	UserID         string `json:"userId"`
	Username       string `json:"username"`
	Role           string `json:"role"`
	ProvinceCode   string `json:"provinceCode,omitempty"`
	DistrictCode   string `json:"districtCode,omitempty"`
	ExamCenterCode string `json:"examCenterCode,omitempty"`
}

// HasRole reports whether the user holds any of the given roles.
func (a *AuthInfo) HasRole(roles ...string) bool {
	if a == nil {
		return false
	}
	return slices.Contains(roles, a.Role)
}

// AuthProvider validates tokens and resolves the caller's identity.
//
// # Description
//
// This is the token-validation seam of the portal. Every protected
// route calls Validate exactly once through the auth middleware.
//
// # Outputs
//
//   - *AuthInfo: Identity of the caller on success.
//   - error: ErrUnauthorized for missing, malformed, expired or revoked
//     tokens. Other errors are treated as authentication failures too.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type AuthProvider interface {
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// AuthzRequest describes an action a user wants to perform.
type AuthzRequest struct {
	// User is the authenticated caller.
	User *AuthInfo

	// Action is a dotted verb such as "ticket.create".
	Action string

	// ResourceType names the collection, e.g. "ticket".
	ResourceType string

	// ResourceID is empty for collection-level actions.
	ResourceID string
}

// AuthzProvider decides whether a user may perform an action.
//
// Authorize returns nil when allowed, ErrForbidden when denied and
// ErrUnauthorized when the request carries no user.
type AuthzProvider interface {
	Authorize(ctx context.Context, req AuthzRequest) error
}

// NopAuthProvider authenticates every request as a local administrator.
//
// Only useful for tests and local tooling; the portal wires a JWT
// provider by default.
type NopAuthProvider struct{}

// Validate always succeeds.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID:   "local-admin",
		Username: "local-admin",
		Role:     "systemAdmin",
	}, nil
}

// NopAuthzProvider allows every action.
type NopAuthzProvider struct{}

// Authorize always returns nil.
func (p *NopAuthzProvider) Authorize(_ context.Context, _ AuthzRequest) error {
	return nil
}

var (
	_ AuthProvider  = (*NopAuthProvider)(nil)
	_ AuthzProvider = (*NopAuthzProvider)(nil)
)
