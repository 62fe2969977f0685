// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/middleware"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/storage"
	"golang.org/x/sync/errgroup"
)

// summarize counts tickets and transfer specs by status within actor's
// scope. Every known status appears in the maps, zero or not.
func (d *Deps) summarize(ctx context.Context, actor *extensions.AuthInfo) (datatypes.DashboardSummary, error) {
	summary := datatypes.DashboardSummary{
		Tickets:   make(map[string]int, len(datatypes.TicketStatusOrdering)),
		Transfers: make(map[string]int, len(datatypes.TransferStatusOrdering)),
	}
	for _, s := range datatypes.TicketStatusOrdering {
		summary.Tickets[s] = 0
	}
	for _, s := range datatypes.TransferStatusOrdering {
		summary.Transfers[s] = 0
	}

	var tickets []datatypes.Ticket
	var specs []datatypes.TransferSpec
	var year datatypes.AcademicYear

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tickets, err = d.Stores.Tickets.List(gctx, func(t datatypes.Ticket) bool { return t.VisibleTo(actor) })
		return err
	})
	g.Go(func() error {
		var err error
		specs, err = d.Stores.Transfers.List(gctx, func(s datatypes.TransferSpec) bool { return s.VisibleTo(actor) })
		return err
	})
	g.Go(func() error {
		var err error
		year, err = d.activeYear(gctx)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return summary, err
	}

	for _, t := range tickets {
		summary.Tickets[t.Status]++
		if !datatypes.TicketStatusMetadata[t.Status].Closed {
			summary.OpenTickets++
		}
	}
	for _, s := range specs {
		summary.Transfers[s.CurrentRequestStatus]++
	}
	summary.TotalTickets = len(tickets)
	summary.TotalTransfer = len(specs)
	summary.ActiveYear = year.Name
	return summary, nil
}

// DashboardSummary handles GET /v1/dashboard/summary.
func DashboardSummary(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := d.summarize(c.Request.Context(), middleware.GetAuthInfo(c))
		if err != nil {
			d.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}
