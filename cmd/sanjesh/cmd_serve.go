// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal"
	"github.com/spf13/cobra"
)

func (c *cli) serveCmd() *cobra.Command {
	var (
		port   int
		memory bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the portal HTTP server",
		Long: `Start the portal HTTP server and block until interrupted.

On SIGINT or SIGTERM the server stops accepting connections, finishes
in-flight requests and closes the store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if memory {
				cfg.InMemory = true
				cfg.Uploads.Dir = ""
			}

			svc, err := portal.New(cfg, nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			return svc.Run(cmd.Context())
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides config)")
	cmd.Flags().BoolVar(&memory, "memory", false, "use an in-memory store; data is lost on exit")
	return cmd
}
