/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Command issuedebug triages GitHub issues with an AI debugging service.
//
// Usage:
//
//	issuedebug run --repo owner/repo --issue-number N [--run-build] [--run-test] [--push-to-remote]
//	issuedebug schema
//	issuedebug backend health
//	issuedebug backend forget --repo owner/repo
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := newRootCmd(newApp()).ExecuteContext(ctx)
	switch {
	case err == nil:
	case errors.Is(err, errUnsuccessful):
		// Results and the summary have already been written.
		cancel()
		os.Exit(1)
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
