// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/ux"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/seed"
	"github.com/spf13/cobra"
)

func (c *cli) seedCmd() *cobra.Command {
	var (
		file   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load academic years, reasons and accounts from a YAML file",
		Long: `Load reference data and bootstrap accounts into the store.

Entries that already exist (same year name, reason code or username) are
skipped, so the same file can be applied repeatedly. The run stops at
the first invalid entry.`,
		Example: `  sanjesh seed --file deploy/seed.yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := seed.Load(file)
			if err != nil {
				return err
			}

			st, closeStore, err := c.openStores()
			if err != nil {
				return err
			}
			defer closeStore()

			seeder := &seed.Seeder{Stores: st, Audit: c.auditLogger(st), Logger: c.logger}
			report, err := seeder.Apply(cmd.Context(), f)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), report)
			}

			p := c.printer(cmd)
			p.Title("Seed applied from " + file)
			p.Summary([]ux.Tally{
				{Label: "academicYears", Created: report.AcademicYears.Created, Skipped: report.AcademicYears.Skipped},
				{Label: "dropoutReasons", Created: report.DropoutReasons.Created, Skipped: report.DropoutReasons.Skipped},
				{Label: "approvalReasons", Created: report.ApprovalReasons.Created, Skipped: report.ApprovalReasons.Skipped},
				{Label: "users", Created: report.Users.Created, Skipped: report.Users.Skipped},
			})
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "seed file (YAML)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
