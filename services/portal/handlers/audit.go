// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
)

type auditQuery struct {
	UserID       string    `form:"userId"`
	ResourceType string    `form:"resourceType"`
	ResourceID   string    `form:"resourceId"`
	Action       string    `form:"action"`
	Since        time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	Until        time.Time `form:"until" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit        int       `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// QueryAudit handles GET /v1/audit (admin), newest first.
func QueryAudit(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q auditQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			respondBindError(c, err)
			return
		}

		events, err := d.Audit.Query(c.Request.Context(), extensions.AuditFilter{
			UserID:       q.UserID,
			ResourceType: q.ResourceType,
			ResourceID:   q.ResourceID,
			Action:       q.Action,
			StartTime:    q.Since,
			EndTime:      q.Until,
			Limit:        q.Limit,
		})
		if err != nil {
			d.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": events, "count": len(events)})
	}
}
