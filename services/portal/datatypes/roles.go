// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "slices"

// Portal roles. Values are stored in tokens and documents and must stay
// stable.
const (
	RoleSystemAdmin       = "systemAdmin"
	RoleProvinceExpert    = "provinceEducationExpert"
	RoleDistrictExpert    = "districtEducationExpert"
	RoleExamCenterManager = "examCenterManager"
	RoleTransferApplicant = "transferApplicant"
)

// RoleMeta holds display and scope metadata for each role.
type RoleMeta struct {
	Role  string
	Label string

	// Scope codes that must be set on a user with this role.
	NeedsProvince   bool
	NeedsDistrict   bool
	NeedsExamCenter bool
}

// RolesMetadata provides lookup by role name.
var RolesMetadata = map[string]RoleMeta{
	RoleSystemAdmin:       {Role: RoleSystemAdmin, Label: "مدیر سیستم"},
	RoleProvinceExpert:    {Role: RoleProvinceExpert, Label: "کارشناس استان", NeedsProvince: true},
	RoleDistrictExpert:    {Role: RoleDistrictExpert, Label: "کارشناس منطقه", NeedsProvince: true, NeedsDistrict: true},
	RoleExamCenterManager: {Role: RoleExamCenterManager, Label: "مدیر واحد سازمانی", NeedsProvince: true, NeedsDistrict: true, NeedsExamCenter: true},
	RoleTransferApplicant: {Role: RoleTransferApplicant, Label: "متقاضی انتقال"},
}

// RoleOrdering is the order roles appear in admin forms.
var RoleOrdering = []string{
	RoleSystemAdmin,
	RoleProvinceExpert,
	RoleDistrictExpert,
	RoleExamCenterManager,
	RoleTransferApplicant,
}

// IsValidRole reports whether role is a known portal role.
func IsValidRole(role string) bool {
	return slices.Contains(RoleOrdering, role)
}

// RoleLabel returns the Persian label for role, or role itself.
func RoleLabel(role string) string {
	if meta, ok := RolesMetadata[role]; ok {
		return meta.Label
	}
	return role
}

// ValidateScope checks that the scope codes required by role are set.
func ValidateScope(role, provinceCode, districtCode, examCenterCode string) error {
	meta, ok := RolesMetadata[role]
	if !ok {
		return Invalid("role", "unknown role %q", role)
	}
	if meta.NeedsProvince && provinceCode == "" {
		return Invalid("provinceCode", "required for role %s", role)
	}
	if meta.NeedsDistrict && districtCode == "" {
		return Invalid("districtCode", "required for role %s", role)
	}
	if meta.NeedsExamCenter && examCenterCode == "" {
		return Invalid("examCenterCode", "required for role %s", role)
	}
	return nil
}
