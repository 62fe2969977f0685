// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package audit persists audit events in the document store.
package audit

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/logging"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/storage"
)

// Query limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Record is the stored form of an extensions.AuditEvent.
type Record struct {
	ID string `json:"id"`
	extensions.AuditEvent
}

func (r Record) DocID() string { return r.ID }

// StoreLogger writes audit events to a collection and mirrors them to
// the application log.
//
// # Description
//
// Events are written synchronously; Flush is a no-op because every Log
// call is its own committed transaction.
//
// # Thread Safety
//
// Safe for concurrent use.
type StoreLogger struct {
	records *storage.Collection[Record]
	logger  *logging.Logger
	now     func() time.Time
}

// NewStoreLogger returns a logger writing to records. logger may be nil.
func NewStoreLogger(records *storage.Collection[Record], logger *logging.Logger) *StoreLogger {
	if logger == nil {
		logger = logging.Nop()
	}
	return &StoreLogger{records: records, logger: logger, now: time.Now}
}

// Log stores event, filling the timestamp when zero.
func (l *StoreLogger) Log(ctx context.Context, event extensions.AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}
	if event.Outcome == "" {
		event.Outcome = extensions.OutcomeSuccess
	}

	l.logger.InfoContext(ctx, "audit",
		"action", event.Action,
		"outcome", event.Outcome,
		"user_id", event.UserID,
		"resource_type", event.ResourceType,
		"resource_id", event.ResourceID,
	)

	if err := l.records.Insert(ctx, Record{ID: storage.NewID(), AuditEvent: event}); err != nil {
		return fmt.Errorf("store audit event: %w", err)
	}
	return nil
}

// Query returns events matching filter, newest first, capped at
// filter.Limit (DefaultLimit when zero, never above MaxLimit).
func (l *StoreLogger) Query(ctx context.Context, filter extensions.AuditFilter) ([]extensions.AuditEvent, error) {
	records, err := l.records.List(ctx, func(r Record) bool { return matches(filter, r.AuditEvent) })
	if err != nil {
		return nil, err
	}

	slices.SortFunc(records, func(a, b Record) int {
		return cmp.Or(b.Timestamp.Compare(a.Timestamp), cmp.Compare(a.ID, b.ID))
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit, len(records))

	out := make([]extensions.AuditEvent, 0, limit)
	for _, r := range records[:limit] {
		out = append(out, r.AuditEvent)
	}
	return out, nil
}

func (l *StoreLogger) Flush(context.Context) error {
	return nil
}

func matches(f extensions.AuditFilter, e extensions.AuditEvent) bool {
	switch {
	case f.UserID != "" && e.UserID != f.UserID:
		return false
	case f.ResourceType != "" && e.ResourceType != f.ResourceType:
		return false
	case f.ResourceID != "" && e.ResourceID != f.ResourceID:
		return false
	case f.Action != "" && e.Action != f.Action:
		return false
	case !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime):
		return false
	case !f.EndTime.IsZero() && !e.Timestamp.Before(f.EndTime):
		return false
	}
	return true
}

var _ extensions.AuditLogger = (*StoreLogger)(nil)
