// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/logging"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/ux"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/audit"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/stores"
	"github.com/spf13/cobra"
)

// cli holds state shared by every command: the persistent flags and the
// configuration loaded from them.
type cli struct {
	configPath string
	output     string
	cfg        portal.Config
	logger     *logging.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "sanjesh",
		Short: "Run and administer the Sanjesh ticketing and transfer portal",
		Long: `sanjesh serves the district ticketing and personnel transfer portal
and provides maintenance commands that work directly on its store.

Configuration is read from --config (YAML) and SANJESH_* environment
variables, which take precedence over the file.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.loadConfig,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Close()
			}
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to the YAML config file")
	root.PersistentFlags().StringVarP(&c.output, "output", "o", "auto", "output style: auto, full, minimal or machine")

	root.AddCommand(
		c.serveCmd(),
		c.seedCmd(),
		c.userCmd(),
		c.tokenCmd(),
	)
	return root
}

func (c *cli) loadConfig(cmd *cobra.Command, args []string) error {
	if _, err := ux.ParseMode(c.output, cmd.OutOrStdout()); err != nil {
		return err
	}

	cfg, err := portal.LoadConfig(c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg

	level, _ := logging.ParseLevel(cfg.Log.Level)
	c.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: "sanjesh",
		JSON:    cfg.Log.JSON,
	})
	return nil
}

// openStores opens the configured store for a maintenance command.
func (c *cli) openStores() (*stores.Stores, func(), error) {
	db, err := portal.OpenStore(c.cfg, c.logger)
	if err != nil {
		return nil, nil, err
	}
	st := stores.New(db)
	return st, func() {
		if err := db.Close(); err != nil {
			c.logger.Warn("failed to close store", "error", err)
		}
	}, nil
}

func (c *cli) auditLogger(st *stores.Stores) *audit.StoreLogger {
	return audit.NewStoreLogger(st.Audit, c.logger)
}

// printer styles output for cmd. The mode was validated in loadConfig.
func (c *cli) printer(cmd *cobra.Command) *ux.Printer {
	w := cmd.OutOrStdout()
	mode, _ := ux.ParseMode(c.output, w)
	return ux.NewPrinter(w, mode)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
