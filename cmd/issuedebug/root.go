/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"log/slog"

	"chainguard.dev/issuedebug/triage/pipeline"
	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

// app carries what the commands need from their surroundings.
type app struct {
	lookuper envconfig.Lookuper
	// pipelineOpts are applied after the defaults built from configuration.
	pipelineOpts []pipeline.Option
	verbose      bool
}

func newApp() *app {
	return &app{lookuper: envconfig.OsLookuper()}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "issuedebug",
		Short: "Triage GitHub issues with an AI debugging service",
		Long: "issuedebug fetches a GitHub issue, asks the analysis service for candidate\n" +
			"patches, selects the best validated one and reports it as JSON.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if a.verbose {
				level = slog.LevelDebug
			}
			// Logs go to stderr so stdout carries only results.
			logger := clog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			cmd.SetContext(clog.WithLogger(cmd.Context(), logger))
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newSchemaCmd())
	root.AddCommand(newBackendCmd(a))
	return root
}
