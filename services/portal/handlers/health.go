// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
)

// Pinger is satisfied by *storage.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck answers 200 when the store responds and 503 otherwise.
func HealthCheck(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "store unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

type labeled struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Meta returns the enumerations the client renders: roles, ticket
// statuses and transfer statuses with their labels, in display order.
func Meta() gin.HandlerFunc {
	roles := make([]labeled, 0, len(datatypes.RoleOrdering))
	for _, r := range datatypes.RoleOrdering {
		roles = append(roles, labeled{r, datatypes.RoleLabel(r)})
	}
	tickets := make([]labeled, 0, len(datatypes.TicketStatusOrdering))
	for _, s := range datatypes.TicketStatusOrdering {
		tickets = append(tickets, labeled{s, datatypes.TicketStatusMetadata[s].Label})
	}
	transfers := make([]labeled, 0, len(datatypes.TransferStatusOrdering))
	for _, s := range datatypes.TransferStatusOrdering {
		transfers = append(transfers, labeled{s, datatypes.TransferStatusLabels[s]})
	}
	body := gin.H{
		"roles":            roles,
		"ticketStatuses":   tickets,
		"transferStatuses": transfers,
		"maxDestinations":  datatypes.MaxDestinations,
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, body)
	}
}
