// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stores declares the portal's collections and their unique
// indexes over one storage.DB.
package stores

import (
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/audit"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/storage"
)

// Collection names.
const (
	UsersCollection           = "users"
	TicketsCollection         = "tickets"
	TransfersCollection       = "transfer_specs"
	AcademicYearsCollection   = "academic_years"
	DropoutReasonsCollection  = "dropout_reasons"
	ApprovalReasonsCollection = "approval_reasons"
	AuditCollection           = "audit"
)

// Unique index fields.
const (
	FieldUsername      = "username"
	FieldYearPersonnel = "year_personnel"
	FieldName          = "name"
	FieldCode          = "code"
)

// Stores groups every collection the portal uses.
type Stores struct {
	DB              *storage.DB
	Users           *storage.Collection[datatypes.User]
	Tickets         *storage.Collection[datatypes.Ticket]
	Transfers       *storage.Collection[datatypes.TransferSpec]
	AcademicYears   *storage.Collection[datatypes.AcademicYear]
	DropoutReasons  *storage.Collection[datatypes.Reason]
	ApprovalReasons *storage.Collection[datatypes.Reason]
	Audit           *storage.Collection[audit.Record]
}

// New declares the collections over db.
func New(db *storage.DB) *Stores {
	reasonCode := storage.UniqueIndex[datatypes.Reason]{
		Field: FieldCode,
		Value: func(r datatypes.Reason) string { return r.Code },
	}

	return &Stores{
		DB: db,
		Users: storage.NewCollection(db, UsersCollection, storage.UniqueIndex[datatypes.User]{
			Field: FieldUsername,
			Value: func(u datatypes.User) string { return u.Username },
		}),
		Tickets: storage.NewCollection[datatypes.Ticket](db, TicketsCollection),
		Transfers: storage.NewCollection(db, TransfersCollection, storage.UniqueIndex[datatypes.TransferSpec]{
			Field: FieldYearPersonnel,
			Value: datatypes.TransferSpec.YearPersonnelKey,
		}),
		AcademicYears: storage.NewCollection(db, AcademicYearsCollection, storage.UniqueIndex[datatypes.AcademicYear]{
			Field: FieldName,
			Value: func(y datatypes.AcademicYear) string { return y.Name },
		}),
		DropoutReasons:  storage.NewCollection(db, DropoutReasonsCollection, reasonCode),
		ApprovalReasons: storage.NewCollection(db, ApprovalReasonsCollection, reasonCode),
		Audit:           storage.NewCollection[audit.Record](db, AuditCollection),
	}
}

// Reasons returns the collection for a reason kind, or nil.
func (s *Stores) Reasons(kind string) *storage.Collection[datatypes.Reason] {
	switch kind {
	case datatypes.ReasonDropout:
		return s.DropoutReasons
	case datatypes.ReasonApproval:
		return s.ApprovalReasons
	}
	return nil
}
