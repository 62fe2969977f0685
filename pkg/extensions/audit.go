// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"time"
)

// Audit outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeFailure = "failure"
)

// AuditEvent records one security-relevant or data-changing action.
//
// # Description
//
// Handlers emit an AuditEvent for every mutation (ticket status change,
// transfer approval, academic year activation, user edits) and for
// login attempts. Events are append-only.
//
// # Fields
//
//   - EventType: Coarse category ("auth", "ticket", "transfer", ...).
//   - Timestamp: When the action happened (UTC).
//   - UserID: Acting user; empty for anonymous login failures.
//   - Action: Verb such as "ticket.status".
//   - ResourceType / ResourceID: What was touched.
//   - Outcome: OutcomeSuccess, OutcomeDenied or OutcomeFailure.
//   - Metadata: Extra context (old/new status, comment, ...).
type AuditEvent struct {
	EventType    string         `json:"eventType"`
	Timestamp    time.Time      `json:"timestamp"`
	UserID       string         `json:"userId,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resourceType,omitempty"`
	ResourceID   string         `json:"resourceId,omitempty"`
	Outcome      string         `json:"outcome"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// AuditFilter narrows an audit query. Zero values match everything.
type AuditFilter struct {
	UserID       string
	ResourceType string
	ResourceID   string
	Action       string
	StartTime    time.Time
	EndTime      time.Time

	// Limit caps the number of events returned; 0 means the
	// implementation default.
	Limit int
}

// AuditLogger persists and queries audit events.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type AuditLogger interface {
	// Log records an event. Implementations fill Timestamp when zero.
	Log(ctx context.Context, event AuditEvent) error

	// Query returns events matching filter, newest first.
	Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)

	// Flush forces buffered events to durable storage.
	Flush(ctx context.Context) error
}

// NopAuditLogger discards all events.
type NopAuditLogger struct{}

func (l *NopAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	return nil
}

func (l *NopAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	return []AuditEvent{}, nil
}

func (l *NopAuditLogger) Flush(ctx context.Context) error {
	return nil
}

var _ AuditLogger = (*NopAuditLogger)(nil)
