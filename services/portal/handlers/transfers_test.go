// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const applicantNationalCode = "0499370899"

// transferBody is a valid creation request for district D1.
func transferBody() map[string]any {
	return map[string]any{
		"personnelCode":  "۱۲۳۴۵۶۷۸",
		"nationalCode":   applicantNationalCode,
		"firstName":      "Ali",
		"lastName":       "Rahimi",
		"gender":         "male",
		"employmentType": "official",
		"destinations": []map[string]any{
			{"priority": 2, "districtCode": "D3", "transferType": "temporary"},
			{"priority": 1, "districtCode": "D2", "transferType": "permanent"},
		},
		"approvalReasonCodes": []string{"spouse"},
	}
}

// transferSetup seeds users, an active year and one approval reason.
func transferSetup(t *testing.T) (*testEnv, datatypes.AcademicYear) {
	env := newTestEnv(t)
	env.seedOrg()
	year := env.createYear("1403-1404")
	env.activateYear(year.ID)
	env.createReason("approval-reasons", map[string]any{"code": "spouse", "title": "Spouse employment"})
	return env, year
}

func (e *testEnv) createTransfer(user string, body map[string]any) datatypes.TransferSpec {
	e.t.Helper()
	w := e.do(http.MethodPost, "/v1/transfers", user, body)
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[datatypes.TransferSpec](e.t, w)
}

// =============================================================================
// Create
// =============================================================================

func TestCreateTransfer_ByDistrictExpert(t *testing.T) {
	env, year := transferSetup(t)
	applicant := env.addUser(applicantNationalCode, datatypes.RoleTransferApplicant, "", "", "")

	spec := env.createTransfer("district", transferBody())
	assert.Equal(t, "12345678", spec.PersonnelCode, "digits normalized")
	assert.Equal(t, "D1", spec.CurrentDistrictCode)
	assert.Equal(t, "P1", spec.ProvinceCode)
	assert.Equal(t, year.ID, spec.AcademicYearID, "defaults to the active year")
	assert.Equal(t, datatypes.TransferAwaitingUserApproval, spec.CurrentRequestStatus)
	assert.Equal(t, applicant.ID, spec.UserID, "linked to the applicant account")
	require.Len(t, spec.StatusLog, 1)
	require.Len(t, spec.Destinations, 2)
	assert.Equal(t, "D2", spec.Destinations[0].DistrictCode, "sorted by priority")

	w := env.do(http.MethodPost, "/v1/transfers", "district", transferBody())
	requireError(t, w, http.StatusConflict, CodeDuplicate)
}

func TestCreateTransfer_Rejections(t *testing.T) {
	env, _ := transferSetup(t)

	with := func(key string, value any) map[string]any {
		b := transferBody()
		b[key] = value
		return b
	}
	tests := []struct {
		name   string
		user   string
		body   map[string]any
		status int
		code   string
		field  string
	}{
		{"bad national code", "district", with("nationalCode", "0012345678"), http.StatusBadRequest, CodeValidationFailed, "nationalCode"},
		{"bad personnel code", "district", with("personnelCode", "12"), http.StatusBadRequest, CodeValidationFailed, "personnelCode"},
		{"other district", "district", with("currentDistrictCode", "D2"), http.StatusForbidden, CodeForbidden, ""},
		{"destination is current district", "district", with("destinations", []map[string]any{
			{"priority": 1, "districtCode": "D1", "transferType": "permanent"},
		}), http.StatusBadRequest, CodeValidationFailed, "destinations"},
		{"priority gap", "district", with("destinations", []map[string]any{
			{"priority": 1, "districtCode": "D2", "transferType": "permanent"},
			{"priority": 3, "districtCode": "D3", "transferType": "permanent"},
		}), http.StatusBadRequest, CodeValidationFailed, "destinations"},
		{"unknown reason", "district", with("approvalReasonCodes", []string{"lottery"}), http.StatusBadRequest, CodeValidationFailed, "approvalReasonCodes"},
		{"unknown year", "district", with("academicYearId", "missing"), http.StatusBadRequest, CodeValidationFailed, "academicYearId"},
		{"admin without district", "admin", transferBody(), http.StatusBadRequest, CodeValidationFailed, "currentDistrictCode"},
		{"province expert", "province", transferBody(), http.StatusForbidden, CodeForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := requireError(t, env.do(http.MethodPost, "/v1/transfers", tt.user, tt.body), tt.status, tt.code)
			if tt.field != "" {
				assert.Equal(t, tt.field, body.Field)
			}
		})
	}
}

func TestCreateTransfer_AdminNamesDistrict(t *testing.T) {
	env, _ := transferSetup(t)
	body := transferBody()
	body["currentDistrictCode"] = "D4"
	body["provinceCode"] = "P1"

	spec := env.createTransfer("admin", body)
	assert.Equal(t, "D4", spec.CurrentDistrictCode)
	assert.Empty(t, spec.UserID, "no applicant account yet")
}

// =============================================================================
// Read
// =============================================================================

func TestTransfers_Visibility(t *testing.T) {
	env, _ := transferSetup(t)
	spec := env.createTransfer("district", transferBody())
	env.addUser(applicantNationalCode, datatypes.RoleTransferApplicant, "", "", "")
	env.addUser("0013542419", datatypes.RoleTransferApplicant, "", "", "")

	tests := []struct {
		user  string
		total int
	}{
		{"admin", 1},
		{"province", 1},
		{"district", 1},
		{"district2", 0},
		{applicantNationalCode, 1},
		{"0013542419", 0},
	}
	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			w := env.do(http.MethodGet, "/v1/transfers", tt.user, nil)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.total, decode[datatypes.Page[datatypes.TransferSpec]](t, w).Total)
		})
	}

	requireError(t, env.do(http.MethodGet, "/v1/transfers/"+spec.ID, "district2", nil), http.StatusNotFound, CodeNotFound)
	requireError(t, env.do(http.MethodGet, "/v1/transfers?status=bogus", "admin", nil), http.StatusBadRequest, CodeValidationFailed)

	w := env.do(http.MethodGet, "/v1/transfers?q=rahimi", "district", nil)
	assert.Equal(t, 1, decode[datatypes.Page[datatypes.TransferSpec]](t, w).Total)
}

func TestGetMyTransfer(t *testing.T) {
	env, _ := transferSetup(t)
	env.addUser(applicantNationalCode, datatypes.RoleTransferApplicant, "", "", "")
	env.addUser("0013542419", datatypes.RoleTransferApplicant, "", "", "")
	spec := env.createTransfer("district", transferBody())

	w := env.do(http.MethodGet, "/v1/transfers/me", applicantNationalCode, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[struct {
		Spec         datatypes.TransferSpec `json:"spec"`
		NextStatuses []string               `json:"nextStatuses"`
	}](t, w)
	assert.Equal(t, spec.ID, got.Spec.ID)
	assert.Equal(t, []string{datatypes.TransferUserApproval}, got.NextStatuses)

	requireError(t, env.do(http.MethodGet, "/v1/transfers/me", "0013542419", nil), http.StatusNotFound, CodeNotFound)
}

// =============================================================================
// Update
// =============================================================================

func TestUpdateTransfer_Applicant(t *testing.T) {
	env, _ := transferSetup(t)
	env.addUser(applicantNationalCode, datatypes.RoleTransferApplicant, "", "", "")
	spec := env.createTransfer("district", transferBody())
	path := "/v1/transfers/" + spec.ID

	w := env.do(http.MethodPut, path, applicantNationalCode, map[string]any{
		"destinations": []map[string]any{{"priority": 1, "districtCode": "D5", "transferType": "permanent"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[datatypes.TransferSpec](t, w)
	require.Len(t, updated.Destinations, 1)
	assert.Equal(t, "D5", updated.Destinations[0].DistrictCode)

	w = env.do(http.MethodPut, path, applicantNationalCode, map[string]any{"firstName": "Hacker"})
	requireError(t, w, http.StatusForbidden, CodeForbidden)

	tooMany := make([]map[string]any, 0, 8)
	for i := 1; i <= 8; i++ {
		tooMany = append(tooMany, map[string]any{"priority": i, "districtCode": "X" + string(rune('0'+i)), "transferType": "permanent"})
	}
	w = env.do(http.MethodPut, path, applicantNationalCode, map[string]any{"destinations": tooMany})
	requireError(t, w, http.StatusBadRequest, CodeValidationFailed)

	// Past the applicant stage the transfer is frozen for the applicant.
	require.Equal(t, http.StatusOK, env.do(http.MethodPatch, path+"/status", applicantNationalCode,
		map[string]string{"status": datatypes.TransferUserApproval}).Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodPatch, path+"/status", "district",
		map[string]string{"status": datatypes.TransferSourceReview}).Code)

	w = env.do(http.MethodPut, path, applicantNationalCode, map[string]any{"approvalReasonCodes": []string{}})
	requireError(t, w, http.StatusConflict, CodeNotEditable)

	w = env.do(http.MethodPut, path, "district", map[string]any{"phone": "9123456789"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "09123456789", decode[datatypes.TransferSpec](t, w).Phone)
}

// =============================================================================
// Status workflow
// =============================================================================

func TestTransferWorkflow(t *testing.T) {
	env, _ := transferSetup(t)
	env.addUser(applicantNationalCode, datatypes.RoleTransferApplicant, "", "", "")
	spec := env.createTransfer("district", transferBody())
	path := "/v1/transfers/" + spec.ID

	change := func(user, to, comment string) *httptest.ResponseRecorder {
		t.Helper()
		return env.do(http.MethodPatch, path+"/status", user, map[string]string{"status": to, "comment": comment})
	}

	requireError(t, change("district", datatypes.TransferUserApproval, ""), http.StatusForbidden, CodeForbidden)
	requireError(t, change(applicantNationalCode, datatypes.TransferProvinceApproval, ""), http.StatusConflict, CodeInvalidTransition)

	require.Equal(t, http.StatusOK, change(applicantNationalCode, datatypes.TransferUserApproval, "").Code)
	require.Equal(t, http.StatusOK, change("district", datatypes.TransferSourceReview, "").Code)
	requireError(t, change("district", datatypes.TransferSourceRejection, " "), http.StatusBadRequest, CodeCommentRequired)
	require.Equal(t, http.StatusOK, change("district", datatypes.TransferSourceApproval, "ok").Code)
	requireError(t, change("district2", datatypes.TransferProvinceReview, ""), http.StatusNotFound, CodeNotFound)
	require.Equal(t, http.StatusOK, change("province", datatypes.TransferProvinceReview, "").Code)

	w := change("province", datatypes.TransferProvinceRejection, "quota is full")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	final := decode[datatypes.TransferSpec](t, w)
	assert.Equal(t, datatypes.TransferProvinceRejection, final.CurrentRequestStatus)
	assert.Len(t, final.StatusLog, 6)

	w = env.do(http.MethodGet, path+"/timeline", applicantNationalCode, nil)
	require.Equal(t, http.StatusOK, w.Code)
	timeline := decode[struct {
		CurrentStatus string                    `json:"currentStatus"`
		Entries       []datatypes.TimelineEntry `json:"entries"`
	}](t, w)
	assert.Equal(t, datatypes.TransferProvinceRejection, timeline.CurrentStatus)
	require.Len(t, timeline.Entries, 6)
	assert.Equal(t, datatypes.TransferAwaitingUserApproval, timeline.Entries[0].Status)
	assert.Equal(t, "quota is full", timeline.Entries[5].Comment)

	// Admins may override any status.
	require.Equal(t, http.StatusOK, change("admin", datatypes.TransferProvinceReview, "reopened").Code)

	events, err := env.deps.Audit.Query(context.Background(), extensions.AuditFilter{
		ResourceID: spec.ID,
		Action:     "transfer.status",
	})
	require.NoError(t, err)
	assert.Len(t, events, 6)
}

func TestDeleteTransfer_FreesYear(t *testing.T) {
	env, year := transferSetup(t)
	spec := env.createTransfer("district", transferBody())
	other := env.createYear("1404-1405")
	env.activateYear(other.ID)

	requireError(t, env.do(http.MethodDelete, "/v1/academic-years/"+year.ID, "admin", nil), http.StatusConflict, CodeNotEditable)
	require.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/v1/transfers/"+spec.ID, "admin", nil).Code)
	assert.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/v1/academic-years/"+year.ID, "admin", nil).Code)
	requireError(t, env.do(http.MethodDelete, "/v1/transfers/"+spec.ID, "admin", nil), http.StatusNotFound, CodeNotFound)
}
