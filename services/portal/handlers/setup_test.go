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
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/logging"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/audit"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/auth"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/middleware"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/observability"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/storage"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/stores"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/uploads"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/web"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	gin.SetMode(gin.TestMode)
	RegisterValidators()
}

const (
	testPassword = "s3cret-pass"
	testUserHdr  = "X-Test-User"
)

// testEnv is a router over an in-memory store. Requests pick their
// caller with the X-Test-User header instead of a token.
type testEnv struct {
	t      *testing.T
	deps   *Deps
	stores *stores.Stores
	router *gin.Engine
	users  map[string]datatypes.User
	clock  time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st := stores.New(db)
	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{
		Secret: []byte("handlers-test-secret-0123456789abcdef"),
		TTL:    time.Hour,
	})
	require.NoError(t, err)

	files, err := uploads.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{
		t:      t,
		stores: st,
		users:  map[string]datatypes.User{},
		clock:  time.Date(2025, 9, 23, 8, 0, 0, 0, time.UTC),
	}
	env.deps = &Deps{
		Stores:  st,
		Tokens:  tokens,
		Authz:   auth.NewRoleAuthzProvider(nil),
		Audit:   audit.NewStoreLogger(st.Audit, logging.Nop()),
		Uploads: files,
		Policy:  uploads.Policy{MaxBytes: 1 << 10, AllowedTypes: uploads.DefaultPolicy().AllowedTypes},
		Metrics: observability.NewMetrics(prometheus.NewRegistry()),
		Logger:  logging.Nop(),
		Now: func() time.Time {
			env.clock = env.clock.Add(time.Second)
			return env.clock
		},
	}
	env.router = env.buildRouter()
	return env
}

func (e *testEnv) buildRouter() *gin.Engine {
	r := gin.New()
	tmpl, err := web.Templates()
	require.NoError(e.t, err)
	r.SetHTMLTemplate(tmpl)

	r.Use(middleware.RequestID(), func(c *gin.Context) {
		if u, ok := e.users[c.GetHeader(testUserHdr)]; ok {
			middleware.SetAuthInfo(c, u.AuthInfo())
		}
		c.Next()
	})
	d := e.deps

	r.GET("/health", HealthCheck(d.Stores.DB))
	r.GET("/login", LoginPage(d))
	r.POST("/login", LoginSubmit(d))
	r.POST("/logout", LogoutPage(d))
	r.GET("/dashboard", DashboardPage(d))
	r.GET("/tickets", TicketsPage(d))
	r.GET("/tickets/:id", TicketPage(d))
	r.GET("/transfers", TransfersPage(d))

	v1 := r.Group("/v1")
	v1.POST("/auth/login", Login(d))
	v1.POST("/auth/logout", Logout(d))
	v1.GET("/meta", Meta())

	v1.GET("/profile", GetProfile(d))
	v1.PUT("/profile", UpdateProfile(d))
	v1.PUT("/profile/password", ChangePassword(d))

	v1.GET("/users", ListUsers(d))
	v1.POST("/users", CreateUser(d))
	v1.GET("/users/:id", GetUser(d))
	v1.PUT("/users/:id", UpdateUser(d))
	v1.DELETE("/users/:id", DeleteUser(d))

	v1.GET("/tickets", ListTickets(d))
	v1.POST("/tickets", CreateTicket(d))
	v1.GET("/tickets/:id", GetTicket(d))
	v1.DELETE("/tickets/:id", DeleteTicket(d))
	v1.POST("/tickets/:id/responses", AddTicketResponse(d))
	v1.PATCH("/tickets/:id/status", ChangeTicketStatus(d))
	v1.POST("/tickets/:id/attachments", UploadAttachment(d))
	v1.GET("/tickets/:id/attachments/:attachmentId", DownloadAttachment(d))

	v1.GET("/transfers", ListTransfers(d))
	v1.POST("/transfers", CreateTransfer(d))
	v1.GET("/transfers/me", GetMyTransfer(d))
	v1.GET("/transfers/:id", GetTransfer(d))
	v1.PUT("/transfers/:id", UpdateTransfer(d))
	v1.DELETE("/transfers/:id", DeleteTransfer(d))
	v1.PATCH("/transfers/:id/status", ChangeTransferStatus(d))
	v1.GET("/transfers/:id/timeline", TransferTimeline(d))

	v1.GET("/academic-years", ListAcademicYears(d))
	v1.GET("/academic-years/active", GetActiveAcademicYear(d))
	v1.POST("/academic-years", CreateAcademicYear(d))
	v1.GET("/academic-years/:id", GetAcademicYear(d))
	v1.PUT("/academic-years/:id", UpdateAcademicYear(d))
	v1.DELETE("/academic-years/:id", DeleteAcademicYear(d))
	v1.POST("/academic-years/:id/activate", ActivateAcademicYear(d))

	for path, kind := range map[string]string{
		"/dropout-reasons":  datatypes.ReasonDropout,
		"/approval-reasons": datatypes.ReasonApproval,
	} {
		v1.GET(path, ListReasons(d, kind))
		v1.POST(path, CreateReason(d, kind))
		v1.GET(path+"/:id", GetReason(d, kind))
		v1.PUT(path+"/:id", UpdateReason(d, kind))
		v1.DELETE(path+"/:id", DeleteReason(d, kind))
	}

	v1.GET("/dashboard/summary", DashboardSummary(d))
	v1.GET("/audit", QueryAudit(d))
	return r
}

// addUser stores a user with testPassword and remembers it under key.
func (e *testEnv) addUser(key, role, province, district, center string) datatypes.User {
	e.t.Helper()
	hash, err := auth.HashPassword(testPassword)
	require.NoError(e.t, err)
	u := datatypes.User{
		ID:             storage.NewID(),
		Username:       key,
		PasswordHash:   hash,
		FirstName:      "Test",
		LastName:       key,
		Role:           role,
		ProvinceCode:   province,
		DistrictCode:   district,
		ExamCenterCode: center,
		IsActive:       true,
		CreatedAt:      e.clock,
		UpdatedAt:      e.clock,
	}
	require.NoError(e.t, e.stores.Users.Insert(context.Background(), u))
	e.users[key] = u
	return u
}

// seedOrg creates one user per role in province P1, district D1 and
// exam center C1, plus a district expert of D2.
func (e *testEnv) seedOrg() {
	e.addUser("admin", datatypes.RoleSystemAdmin, "", "", "")
	e.addUser("province", datatypes.RoleProvinceExpert, "P1", "", "")
	e.addUser("district", datatypes.RoleDistrictExpert, "P1", "D1", "")
	e.addUser("district2", datatypes.RoleDistrictExpert, "P1", "D2", "")
	e.addUser("center", datatypes.RoleExamCenterManager, "P1", "D1", "C1")
}

// do sends a request as user (empty for anonymous). body may be nil, a
// string or a value marshaled as JSON.
func (e *testEnv) do(method, path, user string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
		contentType = "application/json"
	default:
		raw, err := json.Marshal(b)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
		contentType = "application/json"
	}
	req := httptest.NewRequest(method, path, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if user != "" {
		req.Header.Set(testUserHdr, user)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

// requireError asserts the status and the uniform error code.
func requireError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) errorBody {
	t.Helper()
	require.Equal(t, status, w.Code, "body: %s", w.Body.String())
	body := decode[errorBody](t, w)
	require.Equal(t, code, body.Error)
	require.NotEmpty(t, body.Message)
	return body
}

// createTicket posts a ticket as user and returns it.
func (e *testEnv) createTicket(user, title string) datatypes.Ticket {
	e.t.Helper()
	w := e.do(http.MethodPost, "/v1/tickets", user, map[string]string{
		"title":       title,
		"description": "details for " + title,
		"priority":    "high",
	})
	require.Equal(e.t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	return decode[datatypes.Ticket](e.t, w)
}
