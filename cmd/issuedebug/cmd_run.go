/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"chainguard.dev/issuedebug/triage"
	"chainguard.dev/issuedebug/triage/ghauth"
	"chainguard.dev/issuedebug/triage/issuefetcher"
	"chainguard.dev/issuedebug/triage/pipeline"
	"chainguard.dev/issuedebug/triage/publisher"
	"chainguard.dev/issuedebug/triage/report"
	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// errUnsuccessful reports that at least one run did not succeed. The
// results themselves have been written already.
var errUnsuccessful = errors.New("one or more issues were not successfully triaged")

type runFlags struct {
	repo         string
	issueNumbers []int
	githubToken  string
	backendURL   string
	identity     string

	runBuild         bool
	runTest          bool
	pushToRemote     bool
	candidatePatches int

	imageName         string
	dockerfileContent string
	dockerfilePath    string
	workdir           string
	buildCommands     []string
	testCommands      []string
	envFile           string

	outputFile  string
	parallelism int

	fetchTimeout   time.Duration
	analyzeTimeout time.Duration
	publishTimeout time.Duration
}

func newRunCmd(a *app) *cobra.Command {
	var rf runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Triage one or more issues of a repository",
		Example: `  issuedebug run --repo octo/demo --issue-number 7
  issuedebug run --repo octo/demo --issue-number 7 --run-build --run-test \
    --image-name golang:1.25 --build-commands "go build ./..." --test-commands "go test ./..."`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, &rf)
		},
	}

	f := cmd.Flags()
	f.StringVar(&rf.repo, "repo", "", "Repository as owner/repo (required)")
	f.IntSliceVar(&rf.issueNumbers, "issue-number", nil, "Issue number; repeat for a batch (required)")
	f.StringVar(&rf.githubToken, "github-token", "", "GitHub token (default $GITHUB_TOKEN)")
	f.StringVar(&rf.backendURL, "backend-url", "", "Analysis service URL (default $PROMETHEUS_URL)")
	f.StringVar(&rf.identity, "identity", "", "Branch prefix and commit author for published fixes (default $ISSUEDEBUG_IDENTITY)")

	f.BoolVar(&rf.runBuild, "run-build", false, "Build each candidate in the execution environment")
	f.BoolVar(&rf.runTest, "run-test", false, "Run the existing tests against each candidate")
	f.BoolVar(&rf.pushToRemote, "push-to-remote", false, "Push a validated fix to a branch on the repository; the GitHub credential needs write access to it")
	f.IntVar(&rf.candidatePatches, "candidate-patches", triage.DefaultCandidatePatches, "Number of candidate patches to generate")

	f.StringVar(&rf.imageName, "image-name", "", "Container image used for validation")
	f.StringVar(&rf.dockerfileContent, "dockerfile-content", "", "Literal Dockerfile used for validation")
	f.StringVar(&rf.dockerfilePath, "dockerfile", "", "Path of a Dockerfile used for validation")
	f.StringVar(&rf.workdir, "workdir", "", "Working directory in the container (default /app)")
	f.StringArrayVar(&rf.buildCommands, "build-commands", nil, "Build command, in order; repeatable")
	f.StringArrayVar(&rf.testCommands, "test-commands", nil, "Test command, in order; repeatable")
	f.StringVar(&rf.envFile, "env-file", "", "YAML file describing the execution environment")

	f.StringVarP(&rf.outputFile, "output-file", "o", "", "Write results to this file instead of stdout")
	f.IntVar(&rf.parallelism, "parallelism", 4, "Maximum issues triaged concurrently")

	f.DurationVar(&rf.fetchTimeout, "fetch-timeout", triage.DefaultFetchTimeout, "Timeout for fetching an issue")
	f.DurationVar(&rf.analyzeTimeout, "analyze-timeout", triage.DefaultAnalyzeTimeout, "Timeout for the analysis")
	f.DurationVar(&rf.publishTimeout, "publish-timeout", triage.DefaultPublishTimeout, "Timeout for publishing a fix")

	cmd.MarkFlagsMutuallyExclusive("dockerfile-content", "dockerfile")
	_ = cmd.MarkFlagRequired("repo")
	_ = cmd.MarkFlagRequired("issue-number")
	return cmd
}

func (a *app) run(cmd *cobra.Command, rf *runFlags) error {
	ctx := cmd.Context()

	env, err := a.loadEnv(ctx)
	if err != nil {
		return err
	}

	cfgs, err := rf.runConfigs(cmd, env)
	var results []triage.PipelineResult
	if err != nil {
		// Configuration problems are reported like any other failed run.
		clog.FromContext(ctx).Errorf("Invalid configuration: %v", err)
		for _, n := range rf.issueNumbers {
			results = append(results, triage.PipelineResult{
				IssueInfo: triage.IssueInfo{Repo: rf.repo, Number: n},
				Error:     triage.ErrorInfoFrom(err),
			})
		}
	} else {
		p := pipeline.New(a.pipelineOptions(env, rf)...)
		results = runBatch(cmd, p, cfgs, rf.parallelism)
	}

	if err := rf.writeResults(cmd.OutOrStdout(), results); err != nil {
		return err
	}
	if err := report.Write(cmd.ErrOrStderr(), results...); err != nil {
		return err
	}

	for _, r := range results {
		if !r.Success {
			return errUnsuccessful
		}
	}
	return nil
}

func (a *app) pipelineOptions(env envConfig, rf *runFlags) []pipeline.Option {
	var (
		opts      []pipeline.Option
		fetchOpts []issuefetcher.Option
		pubOpts   []publisher.Option
	)
	if env.GitHubAPIURL != "" {
		fetchOpts = append(fetchOpts, issuefetcher.WithAPIURL(env.GitHubAPIURL))
		pubOpts = append(pubOpts, publisher.WithAuthOptions(ghauth.WithAPIURL(env.GitHubAPIURL)))
	}
	opts = append(opts, pipeline.WithFetcher(issuefetcher.New(fetchOpts...)))

	if rf.pushToRemote {
		identity := env.Identity
		if rf.identity != "" {
			identity = rf.identity
		}
		// A bad identity leaves the pipeline without a publisher, which it
		// reports as a configuration error.
		if pub, err := publisher.New(identity, pubOpts...); err == nil {
			opts = append(opts, pipeline.WithPublisher(pub))
		}
	}
	return append(opts, a.pipelineOpts...)
}

// runConfigs builds one RunConfig per issue number.
func (rf *runFlags) runConfigs(cmd *cobra.Command, env envConfig) ([]triage.RunConfig, error) {
	repo, err := triage.ParseRepo(rf.repo)
	if err != nil {
		return nil, err
	}

	cred, err := env.credential(rf.githubToken)
	if err != nil {
		return nil, err
	}

	spec, err := rf.environment(cmd)
	if err != nil {
		return nil, err
	}

	backendURL := env.BackendURL
	if rf.backendURL != "" {
		backendURL = rf.backendURL
	}

	cfgs := make([]triage.RunConfig, 0, len(rf.issueNumbers))
	for _, n := range rf.issueNumbers {
		cfgs = append(cfgs, triage.RunConfig{
			Credential:       cred,
			Repo:             repo,
			IssueNumber:      n,
			BackendURL:       backendURL,
			BackendToken:     env.BackendToken,
			RunBuild:         rf.runBuild,
			RunTest:          rf.runTest,
			PushToRemote:     rf.pushToRemote,
			CandidatePatches: rf.candidatePatches,
			Environment:      spec,
			FetchTimeout:     rf.fetchTimeout,
			AnalyzeTimeout:   rf.analyzeTimeout,
			PublishTimeout:   rf.publishTimeout,
		})
	}
	return cfgs, nil
}

// environment merges the environment file with explicit flags. A container
// flag replaces the file's container choice.
func (rf *runFlags) environment(cmd *cobra.Command) (triage.ExecutionEnvironmentSpec, error) {
	var spec triage.ExecutionEnvironmentSpec
	if rf.envFile != "" {
		var err error
		if spec, err = loadEnvironmentFile(rf.envFile); err != nil {
			return spec, err
		}
	}

	f := cmd.Flags()
	if f.Changed("image-name") || f.Changed("dockerfile-content") || f.Changed("dockerfile") {
		spec.Image, spec.Dockerfile = rf.imageName, rf.dockerfileContent
	}
	if rf.dockerfilePath != "" {
		b, err := os.ReadFile(rf.dockerfilePath)
		if err != nil {
			return spec, triage.Errorf(triage.KindConfiguration, "reading Dockerfile: %w", err)
		}
		spec.Dockerfile = string(b)
	}
	if f.Changed("workdir") {
		spec.Workdir = rf.workdir
	}
	if f.Changed("build-commands") {
		spec.BuildCommands = rf.buildCommands
	}
	if f.Changed("test-commands") {
		spec.TestCommands = rf.testCommands
	}
	return spec, nil
}

// runBatch triages every configuration with bounded concurrency. Results
// keep the order of cfgs.
func runBatch(cmd *cobra.Command, p *pipeline.Pipeline, cfgs []triage.RunConfig, parallelism int) []triage.PipelineResult {
	results := make([]triage.PipelineResult, len(cfgs))

	var g errgroup.Group
	g.SetLimit(max(parallelism, 1))
	for i, cfg := range cfgs {
		g.Go(func() error {
			results[i] = p.Run(cmd.Context(), cfg)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// writeResults writes a single result as an object and a batch as an array.
func (rf *runFlags) writeResults(stdout io.Writer, results []triage.PipelineResult) error {
	w := stdout
	if rf.outputFile != "" {
		f, err := os.Create(rf.outputFile)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if len(results) == 1 {
		return results[0].WriteJSON(w)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}
	return nil
}
