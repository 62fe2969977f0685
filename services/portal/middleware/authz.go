// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
)

// Authorize checks action against provider for the authenticated caller.
// Must run after AuthMiddleware.
//
// Denials abort with 403; a missing caller aborts with 401.
func Authorize(provider extensions.AuthzProvider, action, resourceType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := provider.Authorize(c.Request.Context(), extensions.AuthzRequest{
			User:         GetAuthInfo(c),
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   c.Param("id"),
		})
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, extensions.ErrUnauthorized):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "authentication required",
			})
		default:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "your role cannot perform this action",
			})
		}
	}
}
