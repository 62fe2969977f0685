// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the portal's HTTP handlers.
//
// Every handler is a factory returning a gin.HandlerFunc closed over a
// *Deps. Handlers assume the auth middleware already ran: the caller is
// read with middleware.GetAuthInfo and coarse role checks were made by
// middleware.Authorize. Handlers add the resource-level checks (is this
// ticket in the caller's district?) after loading documents. Documents
// outside the caller's scope answer 404, not 403, so their existence is
// not revealed.
package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/logging"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/auth"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/middleware"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/observability"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/stores"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/uploads"
)

// Deps bundles everything handlers need.
type Deps struct {
	Stores  *stores.Stores
	Tokens  *auth.TokenIssuer
	Authz   extensions.AuthzProvider
	Audit   extensions.AuditLogger
	Uploads uploads.Store
	Policy  uploads.Policy
	Metrics *observability.PortalMetrics
	Logger  *logging.Logger

	// SecureCookies sets the Secure flag on the session cookie.
	SecureCookies bool

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d *Deps) logger() *logging.Logger {
	if d.Logger == nil {
		return logging.Nop()
	}
	return d.Logger
}

// audit records event on behalf of the caller. Failures are logged and
// never fail the request; the mutation already committed.
func (d *Deps) audit(c *gin.Context, event extensions.AuditEvent) {
	if d.Audit == nil {
		return
	}
	if event.UserID == "" {
		if actor := middleware.GetAuthInfo(c); actor != nil {
			event.UserID = actor.UserID
		}
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.now()
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}
	if id := middleware.GetRequestID(c); id != "" {
		event.Metadata["requestId"] = id
	}
	if err := d.Audit.Log(context.WithoutCancel(c.Request.Context()), event); err != nil {
		d.logger().ErrorContext(c.Request.Context(), "failed to record audit event",
			"action", event.Action, "error", err)
	}
}

// errUnchanged aborts a store update that turned out to be a no-op.
var errUnchanged = errors.New("unchanged")
