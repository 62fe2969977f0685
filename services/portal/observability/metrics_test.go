// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	m1 := NewMetrics(prometheus.NewRegistry())
	m2 := NewMetrics(prometheus.NewRegistry())

	m1.RecordTicketCreated("district")
	m1.RecordTicketCreated("district")

	assert.Equal(t, 2.0, testutil.ToFloat64(m1.TicketsCreatedTotal.WithLabelValues("district")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m2.TicketsCreatedTotal.WithLabelValues("district")))
}

func TestRecordHelpers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordStatusChange("transfer", "source_review")
	m.RecordLogin("success")
	m.RecordLogin("bad_credentials")
	m.RecordUpload("disk", 1024)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatusChangesTotal.WithLabelValues("transfer", "source_review")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginsTotal.WithLabelValues("bad_credentials")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.UploadBytesTotal.WithLabelValues("disk")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "sanjesh_auth_logins_total")
	assert.Contains(t, names, "sanjesh_status_changes_total")
}

func TestRecordHelpers_NilSafe(t *testing.T) {
	var m *PortalMetrics
	assert.NotPanics(t, func() {
		m.RecordTicketCreated("district")
		m.RecordStatusChange("ticket", "closed")
		m.RecordLogin("success")
		m.RecordUpload("gcs", 1)
	})
}
