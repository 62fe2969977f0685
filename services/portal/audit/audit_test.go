// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *StoreLogger {
	t.Helper()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStoreLogger(storage.NewCollection[Record](db, "audit"), nil)
}

func TestStoreLogger_LogAndQuery(t *testing.T) {
	l := newTestLogger(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	events := []extensions.AuditEvent{
		{EventType: "ticket", Action: "ticket.create", UserID: "u1", ResourceType: "ticket", ResourceID: "t1", Timestamp: base},
		{EventType: "ticket", Action: "ticket.status", UserID: "u2", ResourceType: "ticket", ResourceID: "t1", Timestamp: base.Add(time.Minute)},
		{EventType: "transfer", Action: "transfer.create", UserID: "u1", ResourceType: "transfer", ResourceID: "s1", Timestamp: base.Add(2 * time.Minute)},
	}
	for _, e := range events {
		require.NoError(t, l.Log(ctx, e))
	}

	all, err := l.Query(ctx, extensions.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "transfer.create", all[0].Action, "newest first")
	assert.Equal(t, extensions.OutcomeSuccess, all[0].Outcome)

	byUser, err := l.Query(ctx, extensions.AuditFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	byResource, err := l.Query(ctx, extensions.AuditFilter{ResourceType: "ticket", ResourceID: "t1"})
	require.NoError(t, err)
	assert.Len(t, byResource, 2)

	window, err := l.Query(ctx, extensions.AuditFilter{StartTime: base.Add(30 * time.Second), EndTime: base.Add(2 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "ticket.status", window[0].Action)

	limited, err := l.Query(ctx, extensions.AuditFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, l.Flush(ctx))
}

func TestStoreLogger_FillsTimestamp(t *testing.T) {
	l := newTestLogger(t)
	fixed := time.Date(2025, 5, 5, 5, 5, 5, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	require.NoError(t, l.Log(context.Background(), extensions.AuditEvent{Action: "auth.login", Outcome: extensions.OutcomeDenied}))

	got, err := l.Query(context.Background(), extensions.AuditFilter{Action: "auth.login"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, fixed.Equal(got[0].Timestamp))
	assert.Equal(t, extensions.OutcomeDenied, got[0].Outcome)
}

func TestStoreLogger_LimitCapped(t *testing.T) {
	l := newTestLogger(t)
	ctx := context.Background()
	for range 3 {
		require.NoError(t, l.Log(ctx, extensions.AuditEvent{Action: "x"}))
	}
	got, err := l.Query(ctx, extensions.AuditFilter{Limit: MaxLimit * 10})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}
