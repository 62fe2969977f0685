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
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/middleware"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/storage"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/uploads"
)

// UploadAttachment handles POST /v1/tickets/:id/attachments with a
// multipart "file" field.
//
// # Description
//
// The content type is sniffed, not trusted from the client. Bytes are
// stored first and the attachment is recorded on the ticket second; if
// recording fails the stored object is removed.
//
// # Outputs
//
//   - 201 with the attachment.
//   - 400 missing/empty file, 404 ticket not visible, 403 closed ticket
//     or caller not a participant, 413 too large, 415 unsupported type.
func UploadAttachment(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.GetAuthInfo(c)
		ctx := c.Request.Context()
		ticketID := c.Param("id")

		ticket, err := d.Stores.Tickets.Get(ctx, ticketID)
		if err == nil && !ticket.VisibleTo(actor) {
			err = storage.ErrNotFound
		}
		if err == nil && !ticket.CanAttach(actor) {
			err = extensions.ErrForbidden
		}
		if err != nil {
			d.respondError(c, err)
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, d.Policy.Limit()+1<<20)
		header, err := c.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				d.respondError(c, uploads.ErrTooLarge)
				return
			}
			d.respondError(c, datatypes.Invalid("file", "a multipart file field is required"))
			return
		}
		file, err := header.Open()
		if err != nil {
			d.respondError(c, err)
			return
		}
		defer file.Close()

		contentType, body, err := d.Policy.Inspect(header.Size, file)
		if err != nil {
			d.respondError(c, err)
			return
		}

		attachment := datatypes.Attachment{
			ID:          storage.NewID(),
			FileName:    uploads.SanitizeFileName(header.Filename),
			ContentType: contentType,
			UploadedBy:  actor.UserID,
			UploadedAt:  d.now(),
		}
		attachment.ObjectKey = uploads.AttachmentKey(ticketID, attachment.ID, attachment.FileName)

		size, err := d.Uploads.Save(ctx, attachment.ObjectKey, contentType, body)
		if err != nil {
			d.respondError(c, err)
			return
		}
		attachment.Size = size

		_, err = d.Stores.Tickets.Update(ctx, ticketID, func(t *datatypes.Ticket) error {
			if !t.CanAttach(actor) {
				return extensions.ErrForbidden
			}
			t.Attachments = append(t.Attachments, attachment)
			t.UpdatedAt = attachment.UploadedAt
			return nil
		})
		if err != nil {
			if derr := d.Uploads.Delete(context.WithoutCancel(ctx), attachment.ObjectKey); derr != nil {
				d.logger().WarnContext(ctx, "failed to remove orphaned upload",
					"object_key", attachment.ObjectKey, "error", derr)
			}
			d.respondError(c, err)
			return
		}

		d.Metrics.RecordUpload(d.Uploads.Backend(), size)
		d.audit(c, extensions.AuditEvent{
			EventType:    "ticket",
			Action:       "ticket.attach",
			ResourceType: "ticket",
			ResourceID:   ticketID,
			Metadata: map[string]any{
				"attachmentId": attachment.ID,
				"fileName":     attachment.FileName,
				"size":         size,
			},
		})
		c.JSON(http.StatusCreated, attachment)
	}
}

// DownloadAttachment handles GET /v1/tickets/:id/attachments/:attachmentId.
func DownloadAttachment(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.GetAuthInfo(c)
		ctx := c.Request.Context()

		ticket, err := d.Stores.Tickets.Get(ctx, c.Param("id"))
		if err == nil && !ticket.VisibleTo(actor) {
			err = storage.ErrNotFound
		}
		if err != nil {
			d.respondError(c, err)
			return
		}
		attachment, ok := ticket.FindAttachment(c.Param("attachmentId"))
		if !ok {
			d.respondError(c, storage.ErrNotFound)
			return
		}

		body, err := d.Uploads.Open(ctx, attachment.ObjectKey)
		if err != nil {
			d.respondError(c, err)
			return
		}
		defer body.Close()

		disposition := mime.FormatMediaType("attachment", map[string]string{"filename": attachment.FileName})
		if disposition == "" {
			disposition = "attachment"
		}
		c.DataFromReader(http.StatusOK, attachment.Size, attachment.ContentType, body, map[string]string{
			"Content-Disposition":    disposition,
			"X-Content-Type-Options": "nosniff",
			"Cache-Control":          "private, no-store",
		})
	}
}
