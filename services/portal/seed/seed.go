// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package seed loads reference data and bootstrap accounts from a YAML
// file into the portal's store.
//
// Seeding is idempotent: documents whose unique key (year name, reason
// code, username) already exists are skipped and left untouched, so the
// same file can be applied on every deploy.
//
// # File Format
//
//	academicYears:
//	  - name: "1403-1404"
//	    active: true
//	dropoutReasons:
//	  - code: "FAM"
//	    title: "مشکلات خانوادگی"
//	    children:
//	      - code: "FAM-MOVE"
//	        title: "مهاجرت خانواده"
//	approvalReasons:
//	  - code: "SPOUSE"
//	    title: "اشتغال همسر"
//	    requiresDocument: true
//	users:
//	  - username: admin
//	    passwordEnv: SANJESH_ADMIN_PASSWORD
//	    firstName: System
//	    lastName: Admin
//	    role: systemAdmin
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/logging"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/handlers"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/storage"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/stores"
	"gopkg.in/yaml.v3"
)

// File is the parsed seed document.
type File struct {
	AcademicYears   []Year   `yaml:"academicYears"`
	DropoutReasons  []Reason `yaml:"dropoutReasons"`
	ApprovalReasons []Reason `yaml:"approvalReasons"`
	Users           []User   `yaml:"users"`
}

// Year seeds an academic year.
type Year struct {
	Name      string     `yaml:"name"`
	StartDate *time.Time `yaml:"startDate"`
	EndDate   *time.Time `yaml:"endDate"`

	// Active makes this the single active year. At most one entry may
	// set it.
	Active bool `yaml:"active"`
}

// Reason seeds a dropout or approval reason. Children are only allowed
// on dropout reasons and may not have children of their own.
type Reason struct {
	Code             string   `yaml:"code"`
	Title            string   `yaml:"title"`
	Description      string   `yaml:"description"`
	DisplayOrder     int      `yaml:"displayOrder"`
	Inactive         bool     `yaml:"inactive"`
	RequiresDocument bool     `yaml:"requiresDocument"`
	Children         []Reason `yaml:"children"`
}

// User seeds an account. The password comes from Password or, when
// PasswordEnv is set, from that environment variable.
type User struct {
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	PasswordEnv    string `yaml:"passwordEnv"`
	FirstName      string `yaml:"firstName"`
	LastName       string `yaml:"lastName"`
	Phone          string `yaml:"phone"`
	Email          string `yaml:"email"`
	Role           string `yaml:"role"`
	ProvinceCode   string `yaml:"provinceCode"`
	DistrictCode   string `yaml:"districtCode"`
	ExamCenterCode string `yaml:"examCenterCode"`
}

// Counts tallies one kind of document.
type Counts struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// Report summarizes an Apply run.
type Report struct {
	AcademicYears   Counts `json:"academicYears"`
	DropoutReasons  Counts `json:"dropoutReasons"`
	ApprovalReasons Counts `json:"approvalReasons"`
	Users           Counts `json:"users"`
}

// Load reads and strictly parses a seed file. Unknown keys are errors.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return f, nil
}

// Seeder writes a File into the stores.
type Seeder struct {
	Stores *stores.Stores

	// Audit receives one event per created document. Nil disables it.
	Audit  extensions.AuditLogger
	Logger *logging.Logger

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

func (s *Seeder) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Seeder) logger() *logging.Logger {
	if s.Logger == nil {
		return logging.Nop()
	}
	return s.Logger
}

// Apply seeds every section of f in order: years, reasons, users.
//
// # Description
//
// Each entry is validated with the same rules as the HTTP API. The run
// stops at the first invalid entry; documents created before it stay.
// Existing documents are skipped, never updated, except that an entry
// marked active always ends up the single active year.
//
// # Outputs
//
//   - Report: What was created and skipped.
//   - error: The first validation or store error, wrapped with the
//     offending entry.
func (s *Seeder) Apply(ctx context.Context, f File) (Report, error) {
	handlers.RegisterValidators()

	var report Report
	var err error

	if report.AcademicYears, err = s.applyYears(ctx, f.AcademicYears); err != nil {
		return report, err
	}
	if report.DropoutReasons, err = s.applyReasons(ctx, datatypes.ReasonDropout, f.DropoutReasons); err != nil {
		return report, err
	}
	if report.ApprovalReasons, err = s.applyReasons(ctx, datatypes.ReasonApproval, f.ApprovalReasons); err != nil {
		return report, err
	}
	if report.Users, err = s.applyUsers(ctx, f.Users); err != nil {
		return report, err
	}

	s.logger().Info("Seed applied",
		"years_created", report.AcademicYears.Created,
		"dropout_reasons_created", report.DropoutReasons.Created,
		"approval_reasons_created", report.ApprovalReasons.Created,
		"users_created", report.Users.Created,
	)
	return report, nil
}

func (s *Seeder) applyYears(ctx context.Context, years []Year) (Counts, error) {
	var counts Counts
	activeName := ""

	for i, y := range years {
		name, err := datatypes.NormalizeAcademicYearName(y.Name)
		if err != nil {
			return counts, fmt.Errorf("academicYears[%d]: %w", i, err)
		}
		req := datatypes.AcademicYearRequest{Name: name, StartDate: y.StartDate, EndDate: y.EndDate}
		if err := req.ValidateDates(); err != nil {
			return counts, fmt.Errorf("academicYears[%d]: %w", i, err)
		}
		if y.Active {
			if activeName != "" {
				return counts, fmt.Errorf("academicYears[%d]: only one year can be active, %s already is", i, activeName)
			}
			activeName = name
		}

		now := s.now()
		year := datatypes.AcademicYear{
			ID:        storage.NewID(),
			Name:      name,
			StartDate: y.StartDate,
			EndDate:   y.EndDate,
			CreatedAt: now,
			UpdatedAt: now,
		}
		created, err := save(ctx, s, s.Stores.AcademicYears.Insert, year, "academicYear", year.ID)
		if err != nil {
			return counts, fmt.Errorf("academicYears[%d] %s: %w", i, name, err)
		}
		counts.tally(created)
	}

	if activeName == "" {
		return counts, nil
	}
	now := s.now()
	err := s.Stores.AcademicYears.UpdateAll(ctx, func(y *datatypes.AcademicYear) (bool, error) {
		want := y.Name == activeName
		if y.IsActive == want {
			return false, nil
		}
		y.IsActive = want
		y.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return counts, fmt.Errorf("activate academic year %s: %w", activeName, err)
	}
	return counts, nil
}

func (s *Seeder) applyReasons(ctx context.Context, kind string, reasons []Reason) (Counts, error) {
	var counts Counts
	coll := s.Stores.Reasons(kind)

	var insert func(path string, r Reason, parent string) error
	insert = func(path string, r Reason, parent string) error {
		if len(r.Children) > 0 && (kind != datatypes.ReasonDropout || parent != "") {
			return fmt.Errorf("%s: %w", path, datatypes.Invalid("children", "reasons nest only one level deep"))
		}
		active := !r.Inactive
		req := datatypes.ReasonRequest{
			Code:             r.Code,
			Title:            r.Title,
			Description:      r.Description,
			DisplayOrder:     r.DisplayOrder,
			IsActive:         &active,
			RequiresDocument: r.RequiresDocument,
			ParentCode:       parent,
		}
		if err := binding.Validator.ValidateStruct(&req); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := req.Check(kind); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		now := s.now()
		reason := datatypes.Reason{ID: storage.NewID(), CreatedAt: now}
		req.ApplyTo(&reason, now)
		created, err := save(ctx, s, coll.Insert, reason, kind+"Reason", reason.ID)
		if err != nil {
			return fmt.Errorf("%s %s: %w", path, r.Code, err)
		}
		counts.tally(created)

		for j, child := range r.Children {
			if err := insert(fmt.Sprintf("%s.children[%d]", path, j), child, r.Code); err != nil {
				return err
			}
		}
		return nil
	}

	for i, r := range reasons {
		if err := insert(fmt.Sprintf("%sReasons[%d]", kind, i), r, ""); err != nil {
			return counts, err
		}
	}
	return counts, nil
}

func (s *Seeder) applyUsers(ctx context.Context, users []User) (Counts, error) {
	var counts Counts

	for i, u := range users {
		password := u.Password
		if u.PasswordEnv != "" {
			password = os.Getenv(u.PasswordEnv)
			if password == "" {
				return counts, fmt.Errorf("users[%d] %s: environment variable %s is empty", i, u.Username, u.PasswordEnv)
			}
		}
		req := datatypes.CreateUserRequest{
			Username:       u.Username,
			Password:       password,
			FirstName:      u.FirstName,
			LastName:       u.LastName,
			Phone:          u.Phone,
			Email:          u.Email,
			Role:           u.Role,
			ProvinceCode:   u.ProvinceCode,
			DistrictCode:   u.DistrictCode,
			ExamCenterCode: u.ExamCenterCode,
		}
		if err := binding.Validator.ValidateStruct(&req); err != nil {
			return counts, fmt.Errorf("users[%d] %s: %w", i, u.Username, err)
		}
		user, err := handlers.NewUser(req, storage.NewID(), s.now())
		if err != nil {
			return counts, fmt.Errorf("users[%d] %s: %w", i, u.Username, err)
		}
		created, err := save(ctx, s, s.Stores.Users.Insert, user, "user", user.ID)
		if err != nil {
			return counts, fmt.Errorf("users[%d] %s: %w", i, u.Username, err)
		}
		counts.tally(created)
	}
	return counts, nil
}

// save stores doc and reports whether it was new. A duplicate unique
// key is a skip, not an error.
func save[T any](ctx context.Context, s *Seeder, put func(context.Context, T) error, doc T, resourceType, id string) (bool, error) {
	err := put(ctx, doc)
	if errors.Is(err, storage.ErrDuplicate) {
		s.logger().Debug("Seed entry exists, skipping", "resource_type", resourceType)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if s.Audit != nil {
		event := extensions.AuditEvent{
			EventType:    "seed",
			Timestamp:    s.now(),
			Action:       resourceType + ".create",
			ResourceType: resourceType,
			ResourceID:   id,
			Outcome:      extensions.OutcomeSuccess,
		}
		if err := s.Audit.Log(ctx, event); err != nil {
			s.logger().Warn("failed to record seed audit event", "resource_type", resourceType, "error", err)
		}
	}
	return true, nil
}

func (c *Counts) tally(created bool) {
	if created {
		c.Created++
	} else {
		c.Skipped++
	}
}
