// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the pluggable seams of the portal.
//
// The portal never talks to an identity system, a policy table or an
// audit sink directly. It goes through the interfaces in this package so
// that deployments can swap implementations (for example a provincial
// SSO token validator instead of the built-in JWT provider) without
// touching handlers.
//
//   - auth.go: Authentication and authorization (AuthProvider, AuthzProvider)
//   - audit.go: Audit trail (AuditLogger)
//
// # Usage
//
// The portal constructs JWT, role-policy and store-backed implementations
// when no options are passed:
//
//	svc, err := portal.New(cfg, nil)
//
// Custom implementations are injected through ServiceOptions:
//
//	opts := extensions.DefaultOptions().WithAuth(ssoProvider)
//	svc, err := portal.New(cfg, &opts)
//
// # Thread Safety
//
// All interface implementations must be safe for concurrent use.
package extensions

// ServiceOptions groups all extension points for service configuration.
//
// Nil fields are replaced by the portal's built-in implementations.
type ServiceOptions struct {
	// AuthProvider validates authentication tokens.
	AuthProvider AuthProvider

	// AuthzProvider checks role permissions.
	AuthzProvider AuthzProvider

	// AuditLogger records mutations and login attempts.
	AuditLogger AuditLogger
}

// DefaultOptions returns ServiceOptions with no-op implementations.
//
// Intended for tests and tooling that do not need real authentication.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider:  &NopAuthProvider{},
		AuthzProvider: &NopAuthzProvider{},
		AuditLogger:   &NopAuditLogger{},
	}
}

// WithAuth returns a copy of opts with the given AuthProvider.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithAuthz returns a copy of opts with the given AuthzProvider.
func (opts ServiceOptions) WithAuthz(provider AuthzProvider) ServiceOptions {
	opts.AuthzProvider = provider
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}
