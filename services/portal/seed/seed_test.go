// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/logging"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/audit"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/auth"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/storage"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/stores"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
academicYears:
  - name: "۱۴۰۲-۱۴۰۳"
  - name: "1403-1404"
    active: true
dropoutReasons:
  - code: FAM
    title: مشکلات خانوادگی
    displayOrder: 1
    children:
      - code: FAM-MOVE
        title: مهاجرت خانواده
  - code: HEALTH
    title: بیماری
    inactive: true
approvalReasons:
  - code: SPOUSE
    title: اشتغال همسر
    requiresDocument: true
users:
  - username: admin
    passwordEnv: SEED_TEST_ADMIN_PASSWORD
    firstName: System
    lastName: Admin
    role: systemAdmin
  - username: "09121234567"
    password: district-pass
    firstName: Reza
    lastName: Karimi
    role: districtEducationExpert
    provinceCode: P1
    districtCode: D1
`

func newSeeder(t *testing.T) (*Seeder, *stores.Stores) {
	t.Helper()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st := stores.New(db)
	return &Seeder{
		Stores: st,
		Audit:  audit.NewStoreLogger(st.Audit, logging.Nop()),
		Logger: logging.Nop(),
	}, st
}

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	f, err := Load(writeSeed(t, sample))
	require.NoError(t, err)
	assert.Len(t, f.AcademicYears, 2)
	require.Len(t, f.DropoutReasons, 2)
	assert.Len(t, f.DropoutReasons[0].Children, 1)
	assert.Len(t, f.Users, 2)

	_, err = Load(writeSeed(t, "academicYears:\n  - nam: 1403-1404\n"))
	assert.Error(t, err, "unknown keys are rejected")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApply_CreatesThenSkips(t *testing.T) {
	t.Setenv("SEED_TEST_ADMIN_PASSWORD", "admin-secret-pass")
	s, st := newSeeder(t)
	ctx := context.Background()

	f, err := Load(writeSeed(t, sample))
	require.NoError(t, err)

	report, err := s.Apply(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, Counts{Created: 2}, report.AcademicYears)
	assert.Equal(t, Counts{Created: 3}, report.DropoutReasons)
	assert.Equal(t, Counts{Created: 1}, report.ApprovalReasons)
	assert.Equal(t, Counts{Created: 2}, report.Users)

	years, err := st.AcademicYears.List(ctx, func(y datatypes.AcademicYear) bool { return y.IsActive })
	require.NoError(t, err)
	require.Len(t, years, 1)
	assert.Equal(t, "1403-1404", years[0].Name)

	_, err = st.AcademicYears.FindBy(ctx, stores.FieldName, "1402-1403")
	assert.NoError(t, err, "digits are normalized")

	child, err := st.DropoutReasons.FindBy(ctx, stores.FieldCode, "FAM-MOVE")
	require.NoError(t, err)
	assert.Equal(t, "FAM", child.ParentCode)
	assert.True(t, child.IsActive)

	health, err := st.DropoutReasons.FindBy(ctx, stores.FieldCode, "HEALTH")
	require.NoError(t, err)
	assert.False(t, health.IsActive)

	spouse, err := st.ApprovalReasons.FindBy(ctx, stores.FieldCode, "SPOUSE")
	require.NoError(t, err)
	assert.True(t, spouse.RequiresDocument)

	admin, err := st.Users.FindBy(ctx, stores.FieldUsername, "admin")
	require.NoError(t, err)
	assert.NoError(t, auth.CheckPassword(admin.PasswordHash, "admin-secret-pass"))

	expert, err := st.Users.FindBy(ctx, stores.FieldUsername, "09121234567")
	require.NoError(t, err)
	assert.Equal(t, "D1", expert.DistrictCode)

	events, err := s.Audit.Query(ctx, extensions.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 8)

	again, err := s.Apply(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, Counts{Skipped: 2}, again.AcademicYears)
	assert.Equal(t, Counts{Skipped: 3}, again.DropoutReasons)
	assert.Equal(t, Counts{Skipped: 1}, again.ApprovalReasons)
	assert.Equal(t, Counts{Skipped: 2}, again.Users)
}

func TestApply_MovesActiveYear(t *testing.T) {
	s, st := newSeeder(t)
	ctx := context.Background()

	_, err := s.Apply(ctx, File{AcademicYears: []Year{{Name: "1402-1403", Active: true}}})
	require.NoError(t, err)
	_, err = s.Apply(ctx, File{AcademicYears: []Year{{Name: "1403-1404", Active: true}}})
	require.NoError(t, err)

	active, err := st.AcademicYears.List(ctx, func(y datatypes.AcademicYear) bool { return y.IsActive })
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "1403-1404", active[0].Name)
}

func TestApply_Rejections(t *testing.T) {
	tests := []struct {
		name string
		file File
		want string
	}{
		{
			name: "bad year name",
			file: File{AcademicYears: []Year{{Name: "1403-1405"}}},
			want: "academicYears[0]",
		},
		{
			name: "two active years",
			file: File{AcademicYears: []Year{{Name: "1402-1403", Active: true}, {Name: "1403-1404", Active: true}}},
			want: "only one year",
		},
		{
			name: "grandchild reason",
			file: File{DropoutReasons: []Reason{{Code: "A", Title: "a", Children: []Reason{
				{Code: "B", Title: "b", Children: []Reason{{Code: "C", Title: "c"}}},
			}}}},
			want: "one level",
		},
		{
			name: "nested approval reason",
			file: File{ApprovalReasons: []Reason{{Code: "A", Title: "a", Children: []Reason{{Code: "B", Title: "b"}}}}},
			want: "one level",
		},
		{
			name: "document flag on dropout reason",
			file: File{DropoutReasons: []Reason{{Code: "A", Title: "a", RequiresDocument: true}}},
			want: "requiresDocument",
		},
		{
			name: "bad reason code",
			file: File{ApprovalReasons: []Reason{{Code: "has space", Title: "a"}}},
			want: "approvalReasons[0]",
		},
		{
			name: "unknown role",
			file: File{Users: []User{{Username: "who", Password: "long-enough", FirstName: "a", LastName: "b", Role: "janitor"}}},
			want: "users[0]",
		},
		{
			name: "missing scope",
			file: File{Users: []User{{Username: "who", Password: "long-enough", FirstName: "a", LastName: "b", Role: datatypes.RoleProvinceExpert}}},
			want: "provinceCode",
		},
		{
			name: "empty password env",
			file: File{Users: []User{{Username: "who", PasswordEnv: "SEED_TEST_UNSET_PASSWORD", FirstName: "a", LastName: "b", Role: datatypes.RoleSystemAdmin}}},
			want: "SEED_TEST_UNSET_PASSWORD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newSeeder(t)
			_, err := s.Apply(context.Background(), tt.file)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
