// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command sanjesh runs and administers the Sanjesh portal.
//
//	sanjesh serve --config sanjesh.yaml
//	sanjesh seed --file seed.yaml
//	sanjesh user create --username admin --role systemAdmin ...
//	sanjesh token issue --username admin
//
// Configuration comes from the --config file and SANJESH_* environment
// variables. The store is locked by a running server, so seed, user and
// token commands must run while the server is stopped.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
