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
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/middleware"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/storage"
)

// CreateTicket handles POST /v1/tickets.
//
// # Description
//
// Exam center managers raise tickets to their district, district
// experts to their province. Scope codes come from the caller's token,
// never from the body.
//
// # Outputs
//
//   - 201 with the ticket.
//   - 400 for invalid bodies, 403 for other roles.
func CreateTicket(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateTicketRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		actor := middleware.GetAuthInfo(c)

		ticket, err := datatypes.NewTicket(storage.NewID(), req, actor, d.now())
		if err != nil {
			d.respondError(c, err)
			return
		}
		if err := d.Stores.Tickets.Insert(c.Request.Context(), ticket); err != nil {
			d.respondError(c, err)
			return
		}

		d.Metrics.RecordTicketCreated(ticket.Receiver)
		d.audit(c, extensions.AuditEvent{
			EventType:    "ticket",
			Action:       "ticket.create",
			ResourceType: "ticket",
			ResourceID:   ticket.ID,
			Metadata:     map[string]any{"receiver": ticket.Receiver, "priority": ticket.Priority},
		})
		c.JSON(http.StatusCreated, ticket)
	}
}

// visibleTickets returns the tickets actor may see that pass filter,
// newest first.
func (d *Deps) visibleTickets(ctx context.Context, actor *extensions.AuthInfo, filter datatypes.TicketFilter) ([]datatypes.Ticket, error) {
	tickets, err := d.Stores.Tickets.List(ctx, func(t datatypes.Ticket) bool {
		return t.VisibleTo(actor) && filter.Match(t)
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(tickets, func(a, b datatypes.Ticket) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return tickets, nil
}

// checkTicketFilter rejects unknown enum values in the query.
func checkTicketFilter(f datatypes.TicketFilter) error {
	if f.Status != "" && !datatypes.IsValidTicketStatus(f.Status) {
		return datatypes.Invalid("status", "unknown ticket status %q", f.Status)
	}
	switch f.Priority {
	case "", datatypes.PriorityLow, datatypes.PriorityMedium, datatypes.PriorityHigh:
		return nil
	}
	return datatypes.Invalid("priority", "unknown priority %q", f.Priority)
}

// ListTickets handles GET /v1/tickets.
//
// Query: status, priority, q, page, pageSize. Results are limited to the
// caller's scope and ordered newest first.
func ListTickets(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var filter datatypes.TicketFilter
		var page datatypes.PageQuery
		if err := bindQuery(c, &filter, &page); err != nil {
			respondBindError(c, err)
			return
		}
		if err := checkTicketFilter(filter); err != nil {
			d.respondError(c, err)
			return
		}

		tickets, err := d.visibleTickets(c.Request.Context(), middleware.GetAuthInfo(c), filter)
		if err != nil {
			d.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, datatypes.Paginate(tickets, page))
	}
}

// openTicket loads a ticket for actor. Tickets outside the caller's
// scope are reported as not found. When the receiver opens a new ticket
// it is marked seen.
func (d *Deps) openTicket(ctx context.Context, actor *extensions.AuthInfo, id string) (datatypes.Ticket, error) {
	ticket, err := d.Stores.Tickets.Get(ctx, id)
	if err != nil {
		return datatypes.Ticket{}, err
	}
	if !ticket.VisibleTo(actor) {
		return datatypes.Ticket{}, storage.ErrNotFound
	}
	if ticket.Status != datatypes.TicketNew || !ticket.IsReceiver(actor) {
		return ticket, nil
	}

	seen, err := d.Stores.Tickets.Update(ctx, id, func(t *datatypes.Ticket) error {
		if !t.MarkSeen(actor, d.now()) {
			return errUnchanged
		}
		return nil
	})
	switch {
	case err == nil:
		d.Metrics.RecordStatusChange("ticket", datatypes.TicketSeen)
		return seen, nil
	case errors.Is(err, errUnchanged):
		return d.Stores.Tickets.Get(ctx, id)
	default:
		// Losing the seen stamp to a concurrent writer is harmless; the
		// next read retries.
		d.logger().WarnContext(ctx, "failed to mark ticket seen", "ticket_id", id, "error", err)
		return ticket, nil
	}
}

// GetTicket handles GET /v1/tickets/:id.
func GetTicket(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ticket, err := d.openTicket(c.Request.Context(), middleware.GetAuthInfo(c), c.Param("id"))
		if err != nil {
			d.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, ticket)
	}
}

// AddTicketResponse handles POST /v1/tickets/:id/responses.
//
// A receiver's reply marks the ticket answered; the creator's follow-up
// on an answered ticket moves it back to inProgress.
func AddTicketResponse(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.TicketResponseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		actor := middleware.GetAuthInfo(c)

		var before string
		ticket, err := d.Stores.Tickets.Update(c.Request.Context(), c.Param("id"), func(t *datatypes.Ticket) error {
			if !t.VisibleTo(actor) {
				return storage.ErrNotFound
			}
			before = t.Status
			_, err := t.AddResponse(actor, storage.NewID(), req.Text, d.now())
			return err
		})
		if err != nil {
			d.respondError(c, err)
			return
		}

		if ticket.Status != before {
			d.Metrics.RecordStatusChange("ticket", ticket.Status)
		}
		d.audit(c, extensions.AuditEvent{
			EventType:    "ticket",
			Action:       "ticket.respond",
			ResourceType: "ticket",
			ResourceID:   ticket.ID,
			Metadata:     map[string]any{"fromStatus": before, "toStatus": ticket.Status},
		})
		c.JSON(http.StatusCreated, ticket)
	}
}

// ChangeTicketStatus handles PATCH /v1/tickets/:id/status with body
// {status, comment}. Disallowed changes answer 409 invalid_transition.
func ChangeTicketStatus(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.StatusChangeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		actor := middleware.GetAuthInfo(c)

		var before string
		ticket, err := d.Stores.Tickets.Update(c.Request.Context(), c.Param("id"), func(t *datatypes.Ticket) error {
			if !t.VisibleTo(actor) {
				return storage.ErrNotFound
			}
			before = t.Status
			return t.ApplyStatus(actor, req.Status, req.Comment, storage.NewID(), d.now())
		})
		if err != nil {
			d.respondError(c, err)
			return
		}

		d.Metrics.RecordStatusChange("ticket", ticket.Status)
		d.audit(c, extensions.AuditEvent{
			EventType:    "ticket",
			Action:       "ticket.status",
			ResourceType: "ticket",
			ResourceID:   ticket.ID,
			Metadata: map[string]any{
				"fromStatus": before,
				"toStatus":   ticket.Status,
				"comment":    req.Comment,
			},
		})
		c.JSON(http.StatusOK, ticket)
	}
}

// DeleteTicket handles DELETE /v1/tickets/:id. Admins may delete any
// ticket, creators only their own while it is still new. Stored
// attachments are removed afterwards.
func DeleteTicket(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.GetAuthInfo(c)
		ctx := c.Request.Context()

		var deleted datatypes.Ticket
		err := d.Stores.Tickets.DeleteIf(ctx, c.Param("id"), func(t datatypes.Ticket) error {
			if !t.VisibleTo(actor) {
				return storage.ErrNotFound
			}
			if !t.CanDelete(actor) {
				return extensions.ErrForbidden
			}
			deleted = t
			return nil
		})
		if err != nil {
			d.respondError(c, err)
			return
		}

		for _, a := range deleted.Attachments {
			if err := d.Uploads.Delete(context.WithoutCancel(ctx), a.ObjectKey); err != nil {
				d.logger().WarnContext(ctx, "failed to delete attachment object",
					"ticket_id", deleted.ID, "object_key", a.ObjectKey, "error", err)
			}
		}

		d.audit(c, extensions.AuditEvent{
			EventType:    "ticket",
			Action:       "ticket.delete",
			ResourceType: "ticket",
			ResourceID:   deleted.ID,
			Metadata:     map[string]any{"status": deleted.Status, "attachments": len(deleted.Attachments)},
		})
		c.Status(http.StatusNoContent)
	}
}
