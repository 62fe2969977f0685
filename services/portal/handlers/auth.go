// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/validation"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/auth"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/middleware"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/storage"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/stores"
)

// errBadCredentials is the one error a failed login reports, whatever
// the reason, so that usernames cannot be probed.
var errBadCredentials = fmt.Errorf("%w: invalid username or password", extensions.ErrUnauthorized)

// normalizeUsername trims and converts Persian digits; national codes
// and phone numbers are the usual usernames.
func normalizeUsername(s string) string {
	return strings.TrimSpace(validation.NormalizeDigits(s))
}

// authenticate checks credentials and issues a token.
//
// # Description
//
// Unknown usernames still cost one bcrypt comparison. Inactive users
// get the same error as a wrong password. Every attempt is audited and
// counted.
func (d *Deps) authenticate(c *gin.Context, req datatypes.LoginRequest) (datatypes.LoginResponse, error) {
	ctx := c.Request.Context()
	username := normalizeUsername(req.Username)

	deny := func(reason string, userID string) (datatypes.LoginResponse, error) {
		d.Metrics.RecordLogin(extensions.OutcomeDenied)
		d.audit(c, extensions.AuditEvent{
			EventType: "auth",
			Action:    "auth.login",
			UserID:    userID,
			Outcome:   extensions.OutcomeDenied,
			Metadata:  map[string]any{"username": username, "reason": reason, "clientIp": c.ClientIP()},
		})
		return datatypes.LoginResponse{}, errBadCredentials
	}

	user, err := d.Stores.Users.FindBy(ctx, stores.FieldUsername, username)
	if errors.Is(err, storage.ErrNotFound) {
		auth.BurnCompare(req.Password)
		return deny("unknown user", "")
	}
	if err != nil {
		d.Metrics.RecordLogin(extensions.OutcomeFailure)
		return datatypes.LoginResponse{}, fmt.Errorf("load user: %w", err)
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		return deny("wrong password", user.ID)
	}
	if !user.IsActive {
		return deny("inactive", user.ID)
	}

	token, expiresAt, err := d.Tokens.Issue(user)
	if err != nil {
		d.Metrics.RecordLogin(extensions.OutcomeFailure)
		return datatypes.LoginResponse{}, err
	}

	now := d.now()
	updated, err := d.Stores.Users.Update(ctx, user.ID, func(u *datatypes.User) error {
		u.LastLoginAt = &now
		return nil
	})
	if err != nil {
		// The login itself succeeded; a lost timestamp is not worth a 500.
		d.logger().WarnContext(ctx, "failed to record last login", "user_id", user.ID, "error", err)
		updated = user
	}

	d.Metrics.RecordLogin(extensions.OutcomeSuccess)
	d.audit(c, extensions.AuditEvent{
		EventType:    "auth",
		Action:       "auth.login",
		UserID:       user.ID,
		ResourceType: "user",
		ResourceID:   user.ID,
		Outcome:      extensions.OutcomeSuccess,
		Metadata:     map[string]any{"clientIp": c.ClientIP()},
	})

	return datatypes.LoginResponse{Token: token, ExpiresAt: expiresAt, User: updated.Public()}, nil
}

func (d *Deps) setSessionCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookie, token, maxAge, "/", "", d.SecureCookies, true)
}

// Login handles POST /v1/auth/login.
//
// # Description
//
// On success answers {token, expiresAt, user} and sets the session
// cookie used by the pages. Bad credentials and inactive accounts
// answer 401.
func Login(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		resp, err := d.authenticate(c, req)
		if err != nil {
			d.respondError(c, err)
			return
		}

		d.setSessionCookie(c, resp.Token, int(d.Tokens.TTL().Seconds()))
		c.JSON(http.StatusOK, resp)
	}
}

// Logout clears the session cookie. Tokens are stateless, so a bearer
// token stays valid until it expires.
func Logout(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		d.setSessionCookie(c, "", -1)
		c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
	}
}
