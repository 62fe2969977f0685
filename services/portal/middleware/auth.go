// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the portal.
//
// # Authentication Flow
//
// The auth middleware extracts a token from the Authorization header,
// falling back to the session cookie set at login, validates it with the
// configured AuthProvider and stores the resulting AuthInfo in the Gin
// context for downstream handlers.
//
//	Request
//	   │
//	   ▼
//	AuthMiddleware
//	   │
//	   ├─► "Authorization: Bearer <token>" or cookie sanjesh_token
//	   │
//	   ├─► provider.Validate(ctx, token)
//	   │
//	   └─► Store AuthInfo in context
//	           │
//	           ▼
//	       Authorize(action) ─► Handler (GetAuthInfo)
//
// API routes answer 401 JSON. Page routes redirect to /login instead.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
)

// =============================================================================
// Context Keys
// =============================================================================

// authInfoKey is the gin context key for the caller's AuthInfo.
const authInfoKey = "sanjesh_auth_info"

// TokenCookie is the cookie the login handler sets.
const TokenCookie = "sanjesh_token"

// =============================================================================
// Context Helpers
// =============================================================================

// SetAuthInfo stores the authenticated user info in the Gin context.
func SetAuthInfo(c *gin.Context, info *extensions.AuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo retrieves the authenticated user info from the Gin context.
//
// # Outputs
//
//   - *extensions.AuthInfo: User info, or nil if not authenticated
//
// # Examples
//
//	actor := middleware.GetAuthInfo(c)
//	if !ticket.VisibleTo(actor) {
//	    c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
//	    return
//	}
func GetAuthInfo(c *gin.Context) *extensions.AuthInfo {
	if info, exists := c.Get(authInfoKey); exists {
		if authInfo, ok := info.(*extensions.AuthInfo); ok {
			return authInfo
		}
	}
	return nil
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware creates a Gin middleware that authenticates API requests.
//
// # Description
//
// Resolves the token via extractToken, validates it with provider and
// stores the AuthInfo. ErrUnauthorized aborts with 401; any other
// provider error (a store failure, say) is logged and aborts with 500.
//
// # Inputs
//
//   - provider: AuthProvider to validate tokens. Must not be nil.
//
// # Examples
//
//	v1 := router.Group("/v1")
//	v1.Use(middleware.AuthMiddleware(opts.AuthProvider))
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func AuthMiddleware(provider extensions.AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		authInfo, err := provider.Validate(c.Request.Context(), extractToken(c))
		if err != nil {
			if !errors.Is(err, extensions.ErrUnauthorized) {
				slog.ErrorContext(c.Request.Context(), "token validation failed", "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   "internal_error",
					"message": "an unexpected error occurred",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "authentication required",
			})
			return
		}

		SetAuthInfo(c, authInfo)
		c.Next()
	}
}

// PageAuthMiddleware authenticates server-rendered pages. Unauthenticated
// requests are redirected to /login with the original path in "next";
// provider failures other than ErrUnauthorized answer 500.
func PageAuthMiddleware(provider extensions.AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		authInfo, err := provider.Validate(c.Request.Context(), extractToken(c))
		if err != nil {
			if !errors.Is(err, extensions.ErrUnauthorized) {
				slog.ErrorContext(c.Request.Context(), "token validation failed", "error", err)
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			target := "/login?next=" + url.QueryEscape(c.Request.URL.RequestURI())
			c.Redirect(http.StatusFound, target)
			c.Abort()
			return
		}

		SetAuthInfo(c, authInfo)
		c.Next()
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// extractToken returns the bearer token, or the session cookie when no
// Authorization header is present. The "Bearer" prefix is
// case-insensitive per RFC 7235.
func extractToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}

	if cookie, err := c.Cookie(TokenCookie); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}
