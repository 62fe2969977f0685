// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"testing"
	"time"

	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	centerManager = &extensions.AuthInfo{UserID: "u-center", Role: RoleExamCenterManager, ProvinceCode: "P1", DistrictCode: "D1", ExamCenterCode: "C1"}
	districtUser  = &extensions.AuthInfo{UserID: "u-district", Role: RoleDistrictExpert, ProvinceCode: "P1", DistrictCode: "D1"}
	otherDistrict = &extensions.AuthInfo{UserID: "u-district2", Role: RoleDistrictExpert, ProvinceCode: "P1", DistrictCode: "D2"}
	provinceUser  = &extensions.AuthInfo{UserID: "u-province", Role: RoleProvinceExpert, ProvinceCode: "P1"}
	adminUser     = &extensions.AuthInfo{UserID: "u-admin", Role: RoleSystemAdmin}
	applicantUser = &extensions.AuthInfo{UserID: "u-app", Username: "0499370899", Role: RoleTransferApplicant}
)

func newCenterTicket(t *testing.T) Ticket {
	t.Helper()
	tk, err := NewTicket("t1", CreateTicketRequest{Title: "  Printer broken ", Description: "x"}, centerManager, testNow)
	require.NoError(t, err)
	return tk
}

func TestNewTicket(t *testing.T) {
	tk := newCenterTicket(t)
	assert.Equal(t, "Printer broken", tk.Title)
	assert.Equal(t, TicketNew, tk.Status)
	assert.Equal(t, ReceiverDistrict, tk.Receiver)
	assert.Equal(t, PriorityMedium, tk.Priority)
	assert.Equal(t, "C1", tk.ExamCenterCode)
	assert.Equal(t, "D1", tk.DistrictCode)
	assert.NotNil(t, tk.Responses)

	fromDistrict, err := NewTicket("t2", CreateTicketRequest{Title: "Budget", Priority: PriorityHigh}, districtUser, testNow)
	require.NoError(t, err)
	assert.Equal(t, ReceiverProvince, fromDistrict.Receiver)

	_, err = NewTicket("t3", CreateTicketRequest{Title: "x"}, applicantUser, testNow)
	assert.ErrorIs(t, err, extensions.ErrForbidden)

	_, err = NewTicket("t4", CreateTicketRequest{Title: "   "}, centerManager, testNow)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestTicket_VisibleTo(t *testing.T) {
	tk := newCenterTicket(t)

	tests := []struct {
		name  string
		actor *extensions.AuthInfo
		want  bool
	}{
		{"creator", centerManager, true},
		{"district receiver", districtUser, true},
		{"other district", otherDistrict, false},
		{"province supervisor", provinceUser, true},
		{"admin", adminUser, true},
		{"applicant", applicantUser, false},
		{"other exam center", &extensions.AuthInfo{UserID: "x", Role: RoleExamCenterManager, ExamCenterCode: "C9"}, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tk.VisibleTo(tt.actor))
		})
	}
}

func TestTicket_MarkSeen(t *testing.T) {
	tk := newCenterTicket(t)

	assert.False(t, tk.MarkSeen(centerManager, testNow), "creator does not mark seen")
	assert.False(t, tk.MarkSeen(provinceUser, testNow), "province is not the receiver")
	assert.True(t, tk.MarkSeen(districtUser, testNow))
	assert.Equal(t, TicketSeen, tk.Status)
	require.NotNil(t, tk.SeenAt)
	assert.False(t, tk.MarkSeen(districtUser, testNow), "only new tickets flip")
}

func TestTicket_ApplyStatus_ReferralFlow(t *testing.T) {
	tk := newCenterTicket(t)

	err := tk.ApplyStatus(districtUser, TicketReferredProvince, "", "r0", testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition, "must be inProgress first")

	require.NoError(t, tk.ApplyStatus(districtUser, TicketInProgress, "", "r1", testNow))
	assert.Equal(t, TicketInProgress, tk.Status)

	err = tk.ApplyStatus(centerManager, TicketReferredProvince, "", "r2", testNow)
	assert.ErrorIs(t, err, extensions.ErrForbidden, "creator cannot refer")

	require.NoError(t, tk.ApplyStatus(districtUser, TicketReferredProvince, "needs province", "r3", testNow))
	assert.Equal(t, TicketReferredProvince, tk.Status)
	assert.Equal(t, ReceiverProvince, tk.Receiver)
	require.NotNil(t, tk.ReferredAt)
	require.Len(t, tk.Responses, 1)
	assert.Equal(t, TicketReferredProvince, tk.Responses[0].Status)

	assert.False(t, tk.IsReceiver(districtUser), "district is no longer the receiver")
	err = tk.ApplyStatus(districtUser, TicketInProgress, "", "r4", testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = tk.ApplyStatus(provinceUser, TicketInProgress, "", "r5", testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition, "a referred ticket moves on by response or close")

	require.NoError(t, tk.ApplyStatus(provinceUser, TicketClosed, "resolved", "r6", testNow))
	assert.Equal(t, TicketClosed, tk.Status)
}

func TestTicket_ApplyStatus_AnsweredIsNotReopenedByStatus(t *testing.T) {
	tk := newCenterTicket(t)
	tk.Status = TicketAnswered

	err := tk.ApplyStatus(districtUser, TicketInProgress, "", "r1", testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	err = tk.ApplyStatus(centerManager, TicketInProgress, "", "r2", testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, tk.ApplyStatus(adminUser, TicketInProgress, "", "r3", testNow))
	assert.Equal(t, TicketInProgress, tk.Status)
}

func TestTicket_ApplyStatus_Close(t *testing.T) {
	tk := newCenterTicket(t)
	require.NoError(t, tk.ApplyStatus(centerManager, TicketClosed, "", "r1", testNow))
	assert.Equal(t, TicketClosed, tk.Status)
	require.NotNil(t, tk.ClosedAt)

	err := tk.ApplyStatus(centerManager, TicketClosed, "", "r2", testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = tk.ApplyStatus(districtUser, TicketInProgress, "", "r3", testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition, "closed tickets stay closed for non-admins")

	require.NoError(t, tk.ApplyStatus(adminUser, TicketInProgress, "", "r4", testNow))
	assert.Nil(t, tk.ClosedAt, "reopen clears closedAt")

	err = tk.ApplyStatus(otherDistrict, TicketClosed, "", "r5", testNow)
	assert.ErrorIs(t, err, extensions.ErrForbidden)

	err = tk.ApplyStatus(adminUser, "archived", "", "r6", testNow)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestTicket_AddResponse(t *testing.T) {
	tk := newCenterTicket(t)

	_, err := tk.AddResponse(districtUser, "r1", "  ", testNow)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	resp, err := tk.AddResponse(districtUser, "r1", "on it", testNow)
	require.NoError(t, err)
	assert.Equal(t, "u-district", resp.AuthorID)
	assert.Equal(t, TicketAnswered, tk.Status)
	assert.NotNil(t, tk.SeenAt)

	_, err = tk.AddResponse(centerManager, "r2", "still broken", testNow)
	require.NoError(t, err)
	assert.Equal(t, TicketInProgress, tk.Status, "creator follow-up reopens")

	_, err = tk.AddResponse(otherDistrict, "r3", "hi", testNow)
	assert.ErrorIs(t, err, extensions.ErrForbidden)

	require.NoError(t, tk.ApplyStatus(centerManager, TicketClosed, "", "r4", testNow))
	_, err = tk.AddResponse(centerManager, "r5", "late", testNow)
	assert.ErrorIs(t, err, ErrNotEditable)
	assert.Len(t, tk.Responses, 2)
}

func TestTicket_CanDelete(t *testing.T) {
	tk := newCenterTicket(t)
	assert.True(t, tk.CanDelete(centerManager))
	assert.False(t, tk.CanDelete(districtUser))
	assert.True(t, tk.CanDelete(adminUser))

	tk.MarkSeen(districtUser, testNow)
	assert.False(t, tk.CanDelete(centerManager), "creator only while new")
	assert.True(t, tk.CanDelete(adminUser))
}

func TestTicketFilter_Match(t *testing.T) {
	tk := newCenterTicket(t)
	assert.True(t, TicketFilter{}.Match(tk))
	assert.True(t, TicketFilter{Status: TicketNew, Query: "PRINTER"}.Match(tk))
	assert.False(t, TicketFilter{Status: TicketClosed}.Match(tk))
	assert.False(t, TicketFilter{Priority: PriorityHigh}.Match(tk))
	assert.False(t, TicketFilter{Query: "network"}.Match(tk))
}
