// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/logging"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/audit"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/auth"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/handlers"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/middleware"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/observability"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/storage"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/stores"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/uploads"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	gin.SetMode(gin.TestMode)
	handlers.RegisterValidators()
}

const password = "routes-test-pass"

type fixture struct {
	router *gin.Engine
	stores *stores.Stores
	users  map[string]datatypes.User
}

func newFixture(t *testing.T, limiter *middleware.IPRateLimiter) *fixture {
	t.Helper()

	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st := stores.New(db)

	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{Secret: []byte("routes-test-secret-0123456789abcdefgh"), TTL: time.Hour})
	require.NoError(t, err)
	files, err := uploads.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	deps := &handlers.Deps{
		Stores:  st,
		Tokens:  tokens,
		Authz:   auth.NewRoleAuthzProvider(nil),
		Audit:   audit.NewStoreLogger(st.Audit, logging.Nop()),
		Uploads: files,
		Policy:  uploads.DefaultPolicy(),
		Metrics: observability.NewMetrics(reg),
		Logger:  logging.Nop(),
	}

	router := gin.New()
	tmpl, err := web.Templates()
	require.NoError(t, err)
	router.SetHTMLTemplate(tmpl)
	router.Use(middleware.RequestID(), middleware.AccessLog(logging.Nop(), deps.Metrics))

	SetupRoutes(router, deps, Options{
		AuthProvider:   auth.NewJWTAuthProvider(tokens, st.Users),
		AuthzProvider:  deps.Authz,
		LoginLimiter:   limiter,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	f := &fixture{router: router, stores: st, users: map[string]datatypes.User{}}
	for _, u := range []struct{ name, role, province, district, center string }{
		{"admin", datatypes.RoleSystemAdmin, "", "", ""},
		{"district", datatypes.RoleDistrictExpert, "P1", "D1", ""},
		{"center", datatypes.RoleExamCenterManager, "P1", "D1", "C1"},
	} {
		user, err := handlers.NewUser(datatypes.CreateUserRequest{
			Username:       u.name,
			Password:       password,
			FirstName:      "Test",
			LastName:       u.name,
			Role:           u.role,
			ProvinceCode:   u.province,
			DistrictCode:   u.district,
			ExamCenterCode: u.center,
		}, storage.NewID(), time.Now())
		require.NoError(t, err)
		require.NoError(t, st.Users.Insert(context.Background(), user))
		f.users[u.name] = user
	}
	return f
}

func (f *fixture) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) login(t *testing.T, username string) string {
	t.Helper()
	w := f.request(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp datatypes.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

// ============================================================================
// Registration
// ============================================================================

func TestSetupRoutes_Registered(t *testing.T) {
	f := newFixture(t, nil)

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"GET", "/login"},
		{"POST", "/login"},
		{"GET", "/dashboard"},
		{"GET", "/tickets/:id"},
		{"POST", "/v1/auth/login"},
		{"GET", "/v1/profile"},
		{"PUT", "/v1/profile/password"},
		{"DELETE", "/v1/users/:id"},
		{"PATCH", "/v1/tickets/:id/status"},
		{"POST", "/v1/tickets/:id/attachments"},
		{"GET", "/v1/tickets/:id/attachments/:attachmentId"},
		{"GET", "/v1/transfers/me"},
		{"GET", "/v1/transfers/:id/timeline"},
		{"POST", "/v1/academic-years/:id/activate"},
		{"GET", "/v1/academic-years/active"},
		{"PUT", "/v1/dropout-reasons/:id"},
		{"POST", "/v1/approval-reasons"},
		{"GET", "/v1/dashboard/summary"},
		{"GET", "/v1/audit"},
		{"GET", "/v1/meta"},
	}

	registered := map[string]bool{}
	for _, r := range f.router.Routes() {
		registered[r.Method+" "+r.Path] = true
	}
	for _, e := range expected {
		assert.True(t, registered[e.method+" "+e.path], "route %s %s not registered", e.method, e.path)
	}
}

// ============================================================================
// Authentication and authorization
// ============================================================================

func TestAPI_RequiresToken(t *testing.T) {
	f := newFixture(t, nil)

	w := f.request(t, http.MethodGet, "/v1/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"unauthorized"`)

	w = f.request(t, http.MethodGet, "/v1/profile", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := f.login(t, "district")
	w = f.request(t, http.MethodGet, "/v1/profile", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"districtCode":"D1"`)
}

func TestAPI_DeactivatedUserLosesAccess(t *testing.T) {
	f := newFixture(t, nil)
	token := f.login(t, "center")

	_, err := f.stores.Users.Update(context.Background(), f.users["center"].ID, func(u *datatypes.User) error {
		u.IsActive = false
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, f.request(t, http.MethodGet, "/v1/profile", token, nil).Code)
}

func TestAPI_RoleChecks(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.login(t, "admin")
	district := f.login(t, "district")
	center := f.login(t, "center")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
	}{
		{"users need admin", http.MethodGet, "/v1/users", district, nil, http.StatusForbidden},
		{"admin lists users", http.MethodGet, "/v1/users", admin, nil, http.StatusOK},
		{"audit needs admin", http.MethodGet, "/v1/audit", center, nil, http.StatusForbidden},
		{"center cannot read transfers", http.MethodGet, "/v1/transfers", center, nil, http.StatusForbidden},
		{"district reads transfers", http.MethodGet, "/v1/transfers", district, nil, http.StatusOK},
		{"reference write needs admin", http.MethodPost, "/v1/academic-years", district, map[string]string{"name": "1403-1404"}, http.StatusForbidden},
		{"reference read for all", http.MethodGet, "/v1/dropout-reasons", center, nil, http.StatusOK},
		{"admin cannot raise tickets", http.MethodPost, "/v1/tickets", admin, map[string]string{"title": "hello", "description": "x"}, http.StatusForbidden},
		{"center raises tickets", http.MethodPost, "/v1/tickets", center, map[string]string{"title": "hello", "description": "x"}, http.StatusCreated},
		{"dashboard for all", http.MethodGet, "/v1/dashboard/summary", center, nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.request(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestAPI_UnknownEndpointIsJSON(t *testing.T) {
	f := newFixture(t, nil)
	w := f.request(t, http.MethodGet, "/v1/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"not_found"`)

	w = f.request(t, http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
}

// ============================================================================
// Pages
// ============================================================================

func TestPages_RedirectAndCookie(t *testing.T) {
	f := newFixture(t, nil)

	w := f.request(t, http.MethodGet, "/dashboard", "", nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?next=%2Fdashboard", w.Header().Get("Location"))

	login := f.request(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": "district", "password": password})
	require.Equal(t, http.StatusOK, login.Code)
	cookies := login.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.request(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
}

func TestStaticAssets(t *testing.T) {
	f := newFixture(t, nil)
	w := f.request(t, http.MethodGet, "/static/app.js", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "data-api")
}

// ============================================================================
// Rate limiting, health and metrics
// ============================================================================

func TestLogin_RateLimited(t *testing.T) {
	f := newFixture(t, middleware.NewIPRateLimiter(1, 2))
	body := map[string]string{"username": "district", "password": "wrong-password"}

	assert.Equal(t, http.StatusUnauthorized, f.request(t, http.MethodPost, "/v1/auth/login", "", body).Code)
	assert.Equal(t, http.StatusUnauthorized, f.request(t, http.MethodPost, "/v1/auth/login", "", body).Code)

	w := f.request(t, http.MethodPost, "/v1/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, nil)

	w := f.request(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	f.request(t, http.MethodGet, "/v1/profile", "", nil)
	w = f.request(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "sanjesh_http_requests_total"), w.Body.String())
}
