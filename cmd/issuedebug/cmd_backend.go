/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"fmt"

	"chainguard.dev/issuedebug/triage"
	"chainguard.dev/issuedebug/triage/backend"
	"github.com/spf13/cobra"
)

func newBackendCmd(a *app) *cobra.Command {
	var backendURL string

	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Administer the analysis service",
	}
	cmd.PersistentFlags().StringVar(&backendURL, "backend-url", "", "Analysis service URL (default $PROMETHEUS_URL)")

	client := func(cmd *cobra.Command) (*backend.Client, error) {
		env, err := a.loadEnv(cmd.Context())
		if err != nil {
			return nil, err
		}
		u := env.BackendURL
		if backendURL != "" {
			u = backendURL
		}
		var opts []backend.Option
		if env.BackendToken != "" {
			opts = append(opts, backend.WithToken(env.BackendToken))
		}
		return backend.New(u, opts...)
	}

	health := &cobra.Command{
		Use:   "health",
		Short: "Check that the analysis service is healthy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := client(cmd)
			if err != nil {
				return err
			}
			if err := c.Health(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "healthy")
			return nil
		},
	}

	var repo string
	forget := &cobra.Command{
		Use:   "forget",
		Short: "Delete a repository's ingested state from the analysis service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := triage.ParseRepo(repo)
			if err != nil {
				return err
			}
			c, err := client(cmd)
			if err != nil {
				return err
			}
			if err := c.Delete(cmd.Context(), r); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "forgot %s\n", r)
			return nil
		},
	}
	forget.Flags().StringVar(&repo, "repo", "", "Repository as owner/repo (required)")
	_ = forget.MarkFlagRequired("repo")

	cmd.AddCommand(health, forget)
	return cmd
}
