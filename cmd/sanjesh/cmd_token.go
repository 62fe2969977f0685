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
	"strings"
	"time"

	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/validation"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/auth"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/storage"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/stores"
	"github.com/spf13/cobra"
)

func (c *cli) tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Work with session tokens",
	}
	cmd.AddCommand(c.tokenIssueCmd())
	return cmd
}

// tokenIssueCmd signs a token for an existing active user without a
// password, for scripts and operators with access to the store.
func (c *cli) tokenIssueCmd() *cobra.Command {
	var (
		username string
		ttl      time.Duration
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a bearer token for a user",
		Example: `  TOKEN=$(sanjesh token issue --username admin)
  curl -H "Authorization: Bearer $TOKEN" localhost:8080/v1/profile`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tokenCfg := c.cfg.TokenConfig()
			if ttl > 0 {
				tokenCfg.TTL = ttl
			}
			issuer, err := auth.NewTokenIssuer(tokenCfg)
			if err != nil {
				return err
			}

			st, closeStore, err := c.openStores()
			if err != nil {
				return err
			}
			defer closeStore()

			username = strings.TrimSpace(validation.NormalizeDigits(username))
			user, err := st.Users.FindBy(cmd.Context(), stores.FieldUsername, username)
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("no user named %s", username)
			}
			if err != nil {
				return err
			}
			if !user.IsActive {
				return fmt.Errorf("user %s is deactivated", username)
			}

			token, expiresAt, err := issuer.Issue(user)
			if err != nil {
				return err
			}
			c.logger.Info("Token issued from the command line", "user_id", user.ID, "expires_at", expiresAt)

			if asJSON {
				return printJSON(cmd.OutOrStdout(), datatypes.LoginResponse{
					Token:     token,
					ExpiresAt: expiresAt,
					User:      user.Public(),
				})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "user to issue the token for")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to the configured TTL)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print token, expiry and user as JSON")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}
