// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the portal's handlers, pages and middleware onto
// a gin engine.
package routes

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/auth"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/handlers"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/middleware"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/web"
)

// Options carries the pieces SetupRoutes needs besides the handler deps.
type Options struct {
	// AuthProvider validates bearer tokens and session cookies. Required.
	AuthProvider extensions.AuthProvider

	// AuthzProvider checks role permissions. Required.
	AuthzProvider extensions.AuthzProvider

	// LoginLimiter throttles login attempts per client IP. Nil disables
	// throttling.
	LoginLimiter *middleware.IPRateLimiter

	// MetricsHandler serves /metrics. Nil leaves the route out.
	MetricsHandler http.Handler
}

// SetupRoutes registers every route of the portal.
//
// # Description
//
// Layout:
//
//	/health, /metrics            unauthenticated
//	/static/*                    embedded assets
//	/login, /logout              page login with the session cookie
//	/dashboard, /tickets, ...    pages, redirect to /login when anonymous
//	/v1/auth/login|logout        JSON login, rate limited per IP
//	/v1/...                      JSON API, bearer token or session cookie
//
// Every /v1 route except login and meta runs AuthMiddleware and then
// Authorize with the route's action. Resource-level scope checks are
// left to the handlers.
//
// # Inputs
//
//   - router: Engine with templates already loaded (see web.Templates).
//   - d: Handler dependencies.
//   - opts: Auth providers, login limiter and metrics handler.
func SetupRoutes(router *gin.Engine, d *handlers.Deps, opts Options) {
	authn := middleware.AuthMiddleware(opts.AuthProvider)
	can := func(action, resourceType string) gin.HandlerFunc {
		return middleware.Authorize(opts.AuthzProvider, action, resourceType)
	}
	limit := middleware.RateLimit(opts.LoginLimiter, func(c *gin.Context) {
		d.Metrics.RecordLogin("throttled")
	})

	router.GET("/health", handlers.HealthCheck(d.Stores.DB))
	if opts.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}
	router.StaticFS("/static", web.Static())

	// Pages
	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/dashboard")
	})
	router.GET("/login", handlers.LoginPage(d))
	router.POST("/login", limit, handlers.LoginSubmit(d))
	router.POST("/logout", handlers.LogoutPage(d))
	pages := router.Group("", middleware.PageAuthMiddleware(opts.AuthProvider))
	{
		pages.GET("/dashboard", handlers.DashboardPage(d))
		pages.GET("/tickets", handlers.TicketsPage(d))
		pages.GET("/tickets/:id", handlers.TicketPage(d))
		pages.GET("/transfers", handlers.TransfersPage(d))
	}

	v1 := router.Group("/v1")
	{
		v1.POST("/auth/login", limit, handlers.Login(d))
		v1.POST("/auth/logout", handlers.Logout(d))
		v1.GET("/meta", handlers.Meta())
	}

	api := v1.Group("", authn)

	profile := api.Group("/profile")
	{
		profile.GET("", handlers.GetProfile(d))
		profile.PUT("", handlers.UpdateProfile(d))
		profile.PUT("/password", handlers.ChangePassword(d))
	}

	users := api.Group("/users", can(auth.ActionUserAdmin, "user"))
	{
		users.GET("", handlers.ListUsers(d))
		users.POST("", handlers.CreateUser(d))
		users.GET("/:id", handlers.GetUser(d))
		users.PUT("/:id", handlers.UpdateUser(d))
		users.DELETE("/:id", handlers.DeleteUser(d))
	}

	tickets := api.Group("/tickets")
	{
		tickets.GET("", can(auth.ActionTicketRead, "ticket"), handlers.ListTickets(d))
		tickets.POST("", can(auth.ActionTicketCreate, "ticket"), handlers.CreateTicket(d))
		tickets.GET("/:id", can(auth.ActionTicketRead, "ticket"), handlers.GetTicket(d))
		tickets.DELETE("/:id", can(auth.ActionTicketDelete, "ticket"), handlers.DeleteTicket(d))
		tickets.POST("/:id/responses", can(auth.ActionTicketUpdate, "ticket"), handlers.AddTicketResponse(d))
		tickets.PATCH("/:id/status", can(auth.ActionTicketUpdate, "ticket"), handlers.ChangeTicketStatus(d))
		tickets.POST("/:id/attachments", can(auth.ActionTicketUpdate, "ticket"), handlers.UploadAttachment(d))
		tickets.GET("/:id/attachments/:attachmentId", can(auth.ActionTicketRead, "ticket"), handlers.DownloadAttachment(d))
	}

	transfers := api.Group("/transfers")
	{
		transfers.GET("", can(auth.ActionTransferRead, "transfer"), handlers.ListTransfers(d))
		transfers.POST("", can(auth.ActionTransferCreate, "transfer"), handlers.CreateTransfer(d))
		transfers.GET("/me", can(auth.ActionTransferRead, "transfer"), handlers.GetMyTransfer(d))
		transfers.GET("/:id", can(auth.ActionTransferRead, "transfer"), handlers.GetTransfer(d))
		transfers.PUT("/:id", can(auth.ActionTransferUpdate, "transfer"), handlers.UpdateTransfer(d))
		transfers.DELETE("/:id", can(auth.ActionTransferDelete, "transfer"), handlers.DeleteTransfer(d))
		transfers.PATCH("/:id/status", can(auth.ActionTransferUpdate, "transfer"), handlers.ChangeTransferStatus(d))
		transfers.GET("/:id/timeline", can(auth.ActionTransferRead, "transfer"), handlers.TransferTimeline(d))
	}

	read := can(auth.ActionReferenceRead, "reference")
	write := can(auth.ActionReferenceWrite, "reference")

	years := api.Group("/academic-years")
	{
		years.GET("", read, handlers.ListAcademicYears(d))
		years.GET("/active", read, handlers.GetActiveAcademicYear(d))
		years.GET("/:id", read, handlers.GetAcademicYear(d))
		years.POST("", write, handlers.CreateAcademicYear(d))
		years.PUT("/:id", write, handlers.UpdateAcademicYear(d))
		years.DELETE("/:id", write, handlers.DeleteAcademicYear(d))
		years.POST("/:id/activate", write, handlers.ActivateAcademicYear(d))
	}

	for path, kind := range map[string]string{
		"/dropout-reasons":  datatypes.ReasonDropout,
		"/approval-reasons": datatypes.ReasonApproval,
	} {
		reasons := api.Group(path)
		reasons.GET("", read, handlers.ListReasons(d, kind))
		reasons.GET("/:id", read, handlers.GetReason(d, kind))
		reasons.POST("", write, handlers.CreateReason(d, kind))
		reasons.PUT("/:id", write, handlers.UpdateReason(d, kind))
		reasons.DELETE("/:id", write, handlers.DeleteReason(d, kind))
	}

	api.GET("/dashboard/summary", can(auth.ActionDashboard, "dashboard"), handlers.DashboardSummary(d))
	api.GET("/audit", can(auth.ActionAuditRead, "audit"), handlers.QueryAudit(d))

	notFoundPage := handlers.NotFoundPage(d)
	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/v1/") {
			c.JSON(http.StatusNotFound, gin.H{"error": handlers.CodeNotFound, "message": "no such endpoint"})
			return
		}
		notFoundPage(c)
	})
}
