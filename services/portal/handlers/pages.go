// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/auth"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/middleware"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/storage"
)

// Server-rendered pages. The router loads the templates from package web
// and wraps these handlers in middleware.PageAuthMiddleware, which
// redirects anonymous visitors to /login. Mutations go through the JSON
// API from static/app.js using the session cookie.

const defaultLanding = "/dashboard"

// safeNext keeps post-login redirects on this site. Anything that is not
// a plain absolute path falls back to the dashboard.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") {
		return defaultLanding
	}
	if strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") || strings.ContainsAny(next, "\r\n") {
		return defaultLanding
	}
	if next == "/login" || strings.HasPrefix(next, "/login?") {
		return defaultLanding
	}
	return next
}

// page builds the common template data.
func page(c *gin.Context, title string) gin.H {
	return gin.H{
		"Title":            title,
		"User":             middleware.GetAuthInfo(c),
		"TicketStatuses":   datatypes.TicketStatusOrdering,
		"TransferStatuses": datatypes.TransferStatusOrdering,
	}
}

// allowed consults the authorizer for page-level checks. Without one
// every authenticated user is allowed.
func (d *Deps) allowed(c *gin.Context, action, resourceType string) bool {
	if d.Authz == nil {
		return true
	}
	return d.Authz.Authorize(c.Request.Context(), extensions.AuthzRequest{
		User:         middleware.GetAuthInfo(c),
		Action:       action,
		ResourceType: resourceType,
	}) == nil
}

// renderError shows the error page with a status derived from err.
func (d *Deps) renderError(c *gin.Context, err error) {
	status, title, message := http.StatusInternalServerError, "خطای سرور", "خطای غیرمنتظره‌ای رخ داد."
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status, title, message = http.StatusNotFound, "یافت نشد", "صفحه یا سند مورد نظر وجود ندارد."
	case errors.Is(err, extensions.ErrForbidden):
		status, title, message = http.StatusForbidden, "دسترسی غیرمجاز", "شما اجازه مشاهده این صفحه را ندارید."
	default:
		d.logger().ErrorContext(c.Request.Context(), "page failed",
			"path", c.Request.URL.Path, "error", err)
	}
	data := page(c, title)
	data["Message"] = message
	c.HTML(status, "error.html", data)
}

// NotFoundPage renders the 404 page for unknown page routes.
func NotFoundPage(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		d.renderError(c, storage.ErrNotFound)
	}
}

// LoginPage handles GET /login.
func LoginPage(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		data := page(c, "ورود")
		data["User"] = (*extensions.AuthInfo)(nil)
		data["Next"] = safeNext(c.Query("next"))
		c.HTML(http.StatusOK, "login.html", data)
	}
}

// LoginSubmit handles the POST /login form. It shares credential checks,
// metrics and auditing with the JSON login and redirects with 303 on
// success.
func LoginSubmit(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		next := safeNext(c.PostForm("next"))
		fail := func(status int, message, username string) {
			data := page(c, "ورود")
			data["User"] = (*extensions.AuthInfo)(nil)
			data["Next"] = next
			data["Error"] = message
			data["Username"] = username
			c.HTML(status, "login.html", data)
		}

		var req datatypes.LoginRequest
		if err := c.ShouldBind(&req); err != nil {
			fail(http.StatusBadRequest, "نام کاربری و رمز عبور را وارد کنید.", c.PostForm("username"))
			return
		}

		resp, err := d.authenticate(c, req)
		switch {
		case err == nil:
		case errors.Is(err, extensions.ErrUnauthorized):
			fail(http.StatusUnauthorized, "نام کاربری یا رمز عبور نادرست است.", req.Username)
			return
		default:
			d.logger().ErrorContext(c.Request.Context(), "page login failed", "error", err)
			fail(http.StatusInternalServerError, "خطای غیرمنتظره‌ای رخ داد.", req.Username)
			return
		}

		d.setSessionCookie(c, resp.Token, int(d.Tokens.TTL().Seconds()))
		c.Redirect(http.StatusSeeOther, next)
	}
}

// LogoutPage handles POST /logout from the page header.
func LogoutPage(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		d.setSessionCookie(c, "", -1)
		c.Redirect(http.StatusSeeOther, "/login")
	}
}

// DashboardPage handles GET /dashboard.
func DashboardPage(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := d.summarize(c.Request.Context(), middleware.GetAuthInfo(c))
		if err != nil {
			d.renderError(c, err)
			return
		}
		data := page(c, "پیشخوان")
		data["Summary"] = summary
		c.HTML(http.StatusOK, "dashboard.html", data)
	}
}

// TicketsPage handles GET /tickets.
func TicketsPage(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !d.allowed(c, auth.ActionTicketRead, "ticket") {
			d.renderError(c, extensions.ErrForbidden)
			return
		}
		var filter datatypes.TicketFilter
		var q datatypes.PageQuery
		if err := bindQuery(c, &filter, &q); err != nil || checkTicketFilter(filter) != nil {
			filter, q = datatypes.TicketFilter{}, datatypes.PageQuery{}
		}

		tickets, err := d.visibleTickets(c.Request.Context(), middleware.GetAuthInfo(c), filter)
		if err != nil {
			d.renderError(c, err)
			return
		}
		data := page(c, "تیکت‌ها")
		data["Filter"] = filter
		data["Page"] = datatypes.Paginate(tickets, q)
		data["CanCreate"] = d.allowed(c, auth.ActionTicketCreate, "ticket")
		c.HTML(http.StatusOK, "tickets.html", data)
	}
}

// TicketPage handles GET /tickets/:id. Opening a new ticket as its
// receiver marks it seen, as the API does.
func TicketPage(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !d.allowed(c, auth.ActionTicketRead, "ticket") {
			d.renderError(c, extensions.ErrForbidden)
			return
		}
		ticket, err := d.openTicket(c.Request.Context(), middleware.GetAuthInfo(c), c.Param("id"))
		if err != nil {
			d.renderError(c, err)
			return
		}
		data := page(c, ticket.Title)
		data["Ticket"] = ticket
		c.HTML(http.StatusOK, "ticket.html", data)
	}
}

// TransfersPage handles GET /transfers.
func TransfersPage(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !d.allowed(c, auth.ActionTransferRead, "transfer") {
			d.renderError(c, extensions.ErrForbidden)
			return
		}
		var filter datatypes.TransferFilter
		var q datatypes.PageQuery
		if err := bindQuery(c, &filter, &q); err != nil ||
			(filter.Status != "" && !datatypes.IsValidTransferStatus(filter.Status)) {
			filter, q = datatypes.TransferFilter{}, datatypes.PageQuery{}
		}

		specs, err := d.visibleTransfers(c.Request.Context(), middleware.GetAuthInfo(c), filter)
		if err != nil {
			d.renderError(c, err)
			return
		}
		data := page(c, "درخواست‌های انتقال")
		data["Filter"] = filter
		data["Page"] = datatypes.Paginate(specs, q)
		c.HTML(http.StatusOK, "transfers.html", data)
	}
}
