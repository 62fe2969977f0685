// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Create / List / Get
// =============================================================================

func TestCreateTicket_ScopeFromCaller(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg()

	ticket := env.createTicket("center", "Printer is broken")
	assert.Equal(t, datatypes.TicketNew, ticket.Status)
	assert.Equal(t, datatypes.ReceiverDistrict, ticket.Receiver)
	assert.Equal(t, "D1", ticket.DistrictCode)
	assert.Equal(t, "P1", ticket.ProvinceCode)
	assert.Equal(t, "C1", ticket.ExamCenterCode)
	assert.Equal(t, env.users["center"].ID, ticket.CreatedBy)

	up := env.createTicket("district", "Need more exam booklets")
	assert.Equal(t, datatypes.ReceiverProvince, up.Receiver)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.deps.Metrics.TicketsCreatedTotal.WithLabelValues(datatypes.ReceiverDistrict)))
}

func TestCreateTicket_Rejections(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg()

	w := env.do(http.MethodPost, "/v1/tickets", "province", map[string]string{"title": "hello", "description": "x"})
	requireError(t, w, http.StatusForbidden, CodeForbidden)

	w = env.do(http.MethodPost, "/v1/tickets", "center", map[string]string{"title": "ab", "description": "x"})
	body := requireError(t, w, http.StatusBadRequest, CodeValidationFailed)
	assert.Equal(t, "title", body.Field)

	w = env.do(http.MethodPost, "/v1/tickets", "center", map[string]string{"title": "valid title", "description": "x", "priority": "urgent"})
	body = requireError(t, w, http.StatusBadRequest, CodeValidationFailed)
	assert.Equal(t, "priority", body.Field)
}

func TestListTickets_Scoped(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg()
	first := env.createTicket("center", "First ticket")
	second := env.createTicket("center", "Second ticket")

	tests := []struct {
		user  string
		total int
	}{
		{"admin", 2},
		{"province", 2},
		{"district", 2},
		{"district2", 0},
		{"center", 2},
	}
	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			w := env.do(http.MethodGet, "/v1/tickets", tt.user, nil)
			require.Equal(t, http.StatusOK, w.Code)
			page := decode[datatypes.Page[datatypes.Ticket]](t, w)
			assert.Equal(t, tt.total, page.Total)
		})
	}

	w := env.do(http.MethodGet, "/v1/tickets", "admin", nil)
	page := decode[datatypes.Page[datatypes.Ticket]](t, w)
	require.Len(t, page.Items, 2)
	assert.Equal(t, second.ID, page.Items[0].ID, "newest first")
	assert.Equal(t, first.ID, page.Items[1].ID)

	w = env.do(http.MethodGet, "/v1/tickets?q=second", "admin", nil)
	assert.Equal(t, 1, decode[datatypes.Page[datatypes.Ticket]](t, w).Total)

	w = env.do(http.MethodGet, "/v1/tickets?status=bogus", "admin", nil)
	body := requireError(t, w, http.StatusBadRequest, CodeValidationFailed)
	assert.Equal(t, "status", body.Field)
}

func TestGetTicket_OutOfScopeIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg()
	ticket := env.createTicket("center", "Hidden from D2")

	requireError(t, env.do(http.MethodGet, "/v1/tickets/"+ticket.ID, "district2", nil), http.StatusNotFound, CodeNotFound)
	requireError(t, env.do(http.MethodGet, "/v1/tickets/missing", "admin", nil), http.StatusNotFound, CodeNotFound)
}

func TestGetTicket_ReceiverMarksSeen(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg()
	ticket := env.createTicket("center", "Mark me seen")

	w := env.do(http.MethodGet, "/v1/tickets/"+ticket.ID, "province", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, datatypes.TicketNew, decode[datatypes.Ticket](t, w).Status, "only the receiver marks seen")

	w = env.do(http.MethodGet, "/v1/tickets/"+ticket.ID, "district", nil)
	require.Equal(t, http.StatusOK, w.Code)
	seen := decode[datatypes.Ticket](t, w)
	assert.Equal(t, datatypes.TicketSeen, seen.Status)
	require.NotNil(t, seen.SeenAt)

	w = env.do(http.MethodGet, "/v1/tickets/"+ticket.ID, "district", nil)
	assert.Equal(t, seen.SeenAt.UTC(), decode[datatypes.Ticket](t, w).SeenAt.UTC(), "second read keeps the stamp")
}

// =============================================================================
// Responses and status
// =============================================================================

func TestTicketLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg()
	ticket := env.createTicket("center", "Full lifecycle")
	path := "/v1/tickets/" + ticket.ID

	respond := func(user, text string) datatypes.Ticket {
		t.Helper()
		w := env.do(http.MethodPost, path+"/responses", user, map[string]string{"text": text})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		return decode[datatypes.Ticket](t, w)
	}
	status := func(user, to, comment string) *httptest.ResponseRecorder {
		t.Helper()
		return env.do(http.MethodPatch, path+"/status", user, map[string]string{"status": to, "comment": comment})
	}

	got := respond("district", "We are on it")
	assert.Equal(t, datatypes.TicketAnswered, got.Status)

	got = respond("center", "Still broken")
	assert.Equal(t, datatypes.TicketInProgress, got.Status)
	require.Len(t, got.Responses, 2)

	requireError(t, status("center", datatypes.TicketReferredProvince, ""), http.StatusForbidden, CodeForbidden)

	w := status("district", datatypes.TicketReferredProvince, "needs the province")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got = decode[datatypes.Ticket](t, w)
	assert.Equal(t, datatypes.ReceiverProvince, got.Receiver)
	require.NotNil(t, got.ReferredAt)
	assert.Len(t, got.Responses, 3, "comment appended to the thread")

	requireError(t, status("province", datatypes.TicketInProgress, ""), http.StatusConflict, CodeInvalidTransition)
	requireError(t, status("province", datatypes.TicketSeen, ""), http.StatusConflict, CodeInvalidTransition)
	body := requireError(t, status("province", "archived", ""), http.StatusBadRequest, CodeValidationFailed)
	assert.Equal(t, "status", body.Field)

	w = status("center", datatypes.TicketClosed, "fixed")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got = decode[datatypes.Ticket](t, w)
	require.NotNil(t, got.ClosedAt)

	w = env.do(http.MethodPost, path+"/responses", "district", map[string]string{"text": "late reply"})
	requireError(t, w, http.StatusConflict, CodeNotEditable)

	events, err := env.deps.Audit.Query(context.Background(), extensions.AuditFilter{ResourceID: ticket.ID})
	require.NoError(t, err)
	actions := make([]string, 0, len(events))
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, "ticket.create")
	assert.Contains(t, actions, "ticket.respond")
	assert.Contains(t, actions, "ticket.status")
}

func TestAddTicketResponse_Forbidden(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg()
	ticket := env.createTicket("center", "Province may read only")

	w := env.do(http.MethodPost, "/v1/tickets/"+ticket.ID+"/responses", "province", map[string]string{"text": "hi"})
	requireError(t, w, http.StatusForbidden, CodeForbidden)

	w = env.do(http.MethodPost, "/v1/tickets/"+ticket.ID+"/responses", "district2", map[string]string{"text": "hi"})
	requireError(t, w, http.StatusNotFound, CodeNotFound)
}

func TestDeleteTicket(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg()

	fresh := env.createTicket("center", "Delete while new")
	require.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/v1/tickets/"+fresh.ID, "center", nil).Code)
	requireError(t, env.do(http.MethodGet, "/v1/tickets/"+fresh.ID, "admin", nil), http.StatusNotFound, CodeNotFound)

	seen := env.createTicket("center", "Seen cannot be deleted")
	env.do(http.MethodGet, "/v1/tickets/"+seen.ID, "district", nil)
	requireError(t, env.do(http.MethodDelete, "/v1/tickets/"+seen.ID, "center", nil), http.StatusForbidden, CodeForbidden)
	requireError(t, env.do(http.MethodDelete, "/v1/tickets/"+seen.ID, "district2", nil), http.StatusNotFound, CodeNotFound)
	assert.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/v1/tickets/"+seen.ID, "admin", nil).Code)
}

// =============================================================================
// Attachments
// =============================================================================

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// upload posts content as the multipart field "file".
func (e *testEnv) upload(user, ticketID, fileName string, content []byte) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if fileName != "" {
		part, err := mw.CreateFormFile("file", fileName)
		require.NoError(e.t, err)
		_, err = part.Write(content)
		require.NoError(e.t, err)
	} else {
		require.NoError(e.t, mw.WriteField("note", "no file"))
	}
	require.NoError(e.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/tickets/"+ticketID+"/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(testUserHdr, user)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestAttachments_UploadAndDownload(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg()
	ticket := env.createTicket("center", "With a screenshot")

	content := append(append([]byte{}, pngHeader...), []byte("pixels")...)
	w := env.upload("center", ticket.ID, "../../screen shot.PNG", content)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	att := decode[datatypes.Attachment](t, w)
	assert.Equal(t, "image/png", att.ContentType)
	assert.Equal(t, int64(len(content)), att.Size)
	assert.NotContains(t, att.FileName, "/")
	assert.True(t, strings.HasPrefix(att.ObjectKey, "tickets/"+ticket.ID+"/"))
	assert.True(t, strings.HasSuffix(att.ObjectKey, ".png"))

	w = env.do(http.MethodGet, "/v1/tickets/"+ticket.ID+"/attachments/"+att.ID, "district", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	requireError(t, env.do(http.MethodGet, "/v1/tickets/"+ticket.ID+"/attachments/"+att.ID, "district2", nil),
		http.StatusNotFound, CodeNotFound)
	requireError(t, env.do(http.MethodGet, "/v1/tickets/"+ticket.ID+"/attachments/missing", "district", nil),
		http.StatusNotFound, CodeNotFound)

	w = env.do(http.MethodGet, "/v1/tickets/"+ticket.ID, "center", nil)
	assert.Len(t, decode[datatypes.Ticket](t, w).Attachments, 1)
}

func TestAttachments_Rejections(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg()
	ticket := env.createTicket("center", "Rejected uploads")

	tests := []struct {
		name    string
		user    string
		file    string
		content []byte
		status  int
		code    string
	}{
		{"too large", "center", "big.png", append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 2048)...), http.StatusRequestEntityTooLarge, CodeTooLarge},
		{"unsupported type", "center", "tool.exe", []byte("MZ\x90\x00\x03\x00\x00\x00\x04\x00\x00\x00\xff\xff"), http.StatusUnsupportedMediaType, CodeUnsupportedType},
		{"empty file", "center", "empty.txt", nil, http.StatusBadRequest, CodeValidationFailed},
		{"missing field", "center", "", nil, http.StatusBadRequest, CodeValidationFailed},
		{"not a participant", "province", "note.txt", []byte("hello"), http.StatusForbidden, CodeForbidden},
		{"out of scope", "district2", "note.txt", []byte("hello"), http.StatusNotFound, CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireError(t, env.upload(tt.user, ticket.ID, tt.file, tt.content), tt.status, tt.code)
		})
	}

	w := env.do(http.MethodGet, "/v1/tickets/"+ticket.ID, "center", nil)
	assert.Empty(t, decode[datatypes.Ticket](t, w).Attachments)
}

func TestDeleteTicket_RemovesStoredFiles(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg()
	ticket := env.createTicket("center", "Has a file")

	w := env.upload("center", ticket.ID, "note.txt", []byte("some notes"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	att := decode[datatypes.Attachment](t, w)

	require.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/v1/tickets/"+ticket.ID, "admin", nil).Code)

	_, err := env.deps.Uploads.Open(context.Background(), att.ObjectKey)
	assert.Error(t, err)
}
