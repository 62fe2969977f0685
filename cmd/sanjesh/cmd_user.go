// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/ux"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/handlers"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/storage"
	"github.com/spf13/cobra"
)

// defaultPasswordEnv is read by `user create` when --password-env is
// not given.
const defaultPasswordEnv = "SANJESH_USER_PASSWORD"

func (c *cli) userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage portal accounts",
	}
	cmd.AddCommand(c.userCreateCmd())
	return cmd
}

// userCreateCmd creates an account directly in the store.
//
// # Description
//
// Applies the same validation as POST /v1/users: username and password
// length, role, phone format and the scope codes the role needs. The
// password is read from an environment variable so it never appears in
// shell history or the process list.
//
// # Examples
//
//	SANJESH_USER_PASSWORD=... sanjesh user create \
//	    --username 09121234567 --first-name Reza --last-name Karimi \
//	    --role districtEducationExpert --province 21 --district 2105
func (c *cli) userCreateCmd() *cobra.Command {
	var (
		req         datatypes.CreateUserRequest
		passwordEnv string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Password = os.Getenv(passwordEnv)
			if req.Password == "" {
				return fmt.Errorf("environment variable %s must hold the password", passwordEnv)
			}

			handlers.RegisterValidators()
			if err := binding.Validator.ValidateStruct(&req); err != nil {
				return fmt.Errorf("invalid user: %w", err)
			}
			user, err := handlers.NewUser(req, storage.NewID(), time.Now())
			if err != nil {
				return fmt.Errorf("invalid user: %w", err)
			}

			st, closeStore, err := c.openStores()
			if err != nil {
				return err
			}
			defer closeStore()

			ctx := cmd.Context()
			if err := st.Users.Insert(ctx, user); err != nil {
				if errors.Is(err, storage.ErrDuplicate) {
					return fmt.Errorf("username %s is already taken", user.Username)
				}
				return err
			}

			if err := c.auditLogger(st).Log(ctx, extensions.AuditEvent{
				EventType:    "cli",
				Action:       "user.create",
				ResourceType: "user",
				ResourceID:   user.ID,
				Outcome:      extensions.OutcomeSuccess,
				Metadata:     map[string]any{"username": user.Username, "role": user.Role},
			}); err != nil {
				c.logger.Warn("failed to record audit event", "error", err)
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), user.Public())
			}

			p := c.printer(cmd)
			p.Success("Created user %s", user.Username)
			p.Fields("", []ux.Field{
				{Label: "id", Value: user.ID},
				{Label: "name", Value: user.Public().FullName},
				{Label: "role", Value: user.Role},
				{Label: "scope", Value: scopeLabel(user)},
			})
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Username, "username", "", "login name (national code or mobile number)")
	f.StringVar(&req.FirstName, "first-name", "", "first name")
	f.StringVar(&req.LastName, "last-name", "", "last name")
	f.StringVar(&req.Role, "role", "", "role, e.g. systemAdmin or districtEducationExpert")
	f.StringVar(&req.Phone, "phone", "", "mobile number")
	f.StringVar(&req.Email, "email", "", "email address")
	f.StringVar(&req.ProvinceCode, "province", "", "province code")
	f.StringVar(&req.DistrictCode, "district", "", "district code")
	f.StringVar(&req.ExamCenterCode, "exam-center", "", "exam center code")
	f.StringVar(&passwordEnv, "password-env", defaultPasswordEnv, "environment variable holding the password")
	f.BoolVar(&asJSON, "json", false, "print the created user as JSON")
	for _, name := range []string{"username", "first-name", "last-name", "role"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

// scopeLabel renders the organisational scope as province/district/center.
func scopeLabel(u datatypes.User) string {
	parts := make([]string, 0, 3)
	for _, code := range []string{u.ProvinceCode, u.DistrictCode, u.ExamCenterCode} {
		if code != "" {
			parts = append(parts, code)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "/")
}
