// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package auth

import (
	"context"
	"slices"

	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
)

// Actions checked by the router. Resource-level checks (is this ticket
// in the caller's district?) happen in handlers after loading.
const (
	ActionTicketCreate = "ticket.create"
	ActionTicketRead   = "ticket.read"
	ActionTicketUpdate = "ticket.update"
	ActionTicketDelete = "ticket.delete"

	ActionTransferCreate = "transfer.create"
	ActionTransferRead   = "transfer.read"
	ActionTransferUpdate = "transfer.update"
	ActionTransferDelete = "transfer.delete"

	ActionReferenceRead  = "reference.read"
	ActionReferenceWrite = "reference.write"

	ActionUserAdmin = "user.admin"
	ActionAuditRead = "audit.read"
	ActionDashboard = "dashboard.read"
)

var everyone = []string{
	datatypes.RoleSystemAdmin,
	datatypes.RoleProvinceExpert,
	datatypes.RoleDistrictExpert,
	datatypes.RoleExamCenterManager,
	datatypes.RoleTransferApplicant,
}

var staff = []string{
	datatypes.RoleSystemAdmin,
	datatypes.RoleProvinceExpert,
	datatypes.RoleDistrictExpert,
	datatypes.RoleExamCenterManager,
}

var adminOnly = []string{datatypes.RoleSystemAdmin}

// DefaultPolicy maps each action to the roles allowed to attempt it.
var DefaultPolicy = map[string][]string{
	ActionTicketCreate: {datatypes.RoleExamCenterManager, datatypes.RoleDistrictExpert},
	ActionTicketRead:   staff,
	ActionTicketUpdate: staff,
	ActionTicketDelete: staff,

	ActionTransferCreate: {datatypes.RoleSystemAdmin, datatypes.RoleDistrictExpert},
	ActionTransferRead:   {datatypes.RoleSystemAdmin, datatypes.RoleProvinceExpert, datatypes.RoleDistrictExpert, datatypes.RoleTransferApplicant},
	ActionTransferUpdate: {datatypes.RoleSystemAdmin, datatypes.RoleProvinceExpert, datatypes.RoleDistrictExpert, datatypes.RoleTransferApplicant},
	ActionTransferDelete: adminOnly,

	ActionReferenceRead:  everyone,
	ActionReferenceWrite: adminOnly,

	ActionUserAdmin: adminOnly,
	ActionAuditRead: adminOnly,
	ActionDashboard: everyone,
}

// RoleAuthzProvider authorizes actions from a static role table.
type RoleAuthzProvider struct {
	policy map[string][]string
}

// NewRoleAuthzProvider returns a provider for policy. Nil means
// DefaultPolicy.
func NewRoleAuthzProvider(policy map[string][]string) *RoleAuthzProvider {
	if policy == nil {
		policy = DefaultPolicy
	}
	return &RoleAuthzProvider{policy: policy}
}

// Authorize allows req when the caller's role is listed for req.Action.
// Unknown actions are denied.
func (p *RoleAuthzProvider) Authorize(_ context.Context, req extensions.AuthzRequest) error {
	if req.User == nil {
		return extensions.ErrUnauthorized
	}
	roles, ok := p.policy[req.Action]
	if !ok || !slices.Contains(roles, req.User.Role) {
		return extensions.ErrForbidden
	}
	return nil
}

var _ extensions.AuthzProvider = (*RoleAuthzProvider)(nil)
