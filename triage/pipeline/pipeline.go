/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"context"
	"errors"
	"strconv"
	"time"

	"chainguard.dev/issuedebug/triage"
	"chainguard.dev/issuedebug/triage/aggregator"
	"chainguard.dev/issuedebug/triage/backend"
	"chainguard.dev/issuedebug/triage/issuefetcher"
	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// State is a step of a pipeline run.
type State string

const (
	StateFetchingIssue    State = "FetchingIssue"
	StateAnalyzingIssue   State = "AnalyzingIssue"
	StateSelectingResult  State = "SelectingResult"
	StatePublishingBranch State = "PublishingBranch"
	StateDone             State = "Done"
	StateFailed           State = "Failed"
)

// Fetcher retrieves an issue and its discussion thread.
type Fetcher interface {
	Fetch(ctx context.Context, repo triage.Repo, number int, cred triage.Credential) (*triage.IssueContext, error)
}

// Backend produces candidate patches for an issue.
type Backend interface {
	Analyze(ctx context.Context, req triage.AnalysisRequest) ([]triage.CandidateOutcome, error)
}

// BackendFactory builds the Backend for a run's configuration.
type BackendFactory func(cfg triage.RunConfig) (Backend, error)

// Publisher pushes the selected outcome to a branch and returns its name.
type Publisher interface {
	Publish(ctx context.Context, repo triage.Repo, issue *triage.IssueContext, outcome triage.CandidateOutcome, cred triage.Credential) (string, error)
}

// Pipeline runs issue triage. Its zero value is not usable; use New.
type Pipeline struct {
	fetcher    Fetcher
	newBackend BackendFactory
	publisher  Publisher
	observe    func(State)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFetcher replaces the GitHub issue fetcher.
func WithFetcher(f Fetcher) Option {
	return func(p *Pipeline) { p.fetcher = f }
}

// WithBackend uses b for every run regardless of its BackendURL.
func WithBackend(b Backend) Option {
	return func(p *Pipeline) {
		p.newBackend = func(triage.RunConfig) (Backend, error) { return b, nil }
	}
}

// WithBackendFactory replaces how a run's Backend is built.
func WithBackendFactory(f BackendFactory) Option {
	return func(p *Pipeline) { p.newBackend = f }
}

// WithPublisher enables branch publication. Runs that ask to push without a
// publisher fail with a ConfigurationError.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithObserver registers fn to be called on every state transition.
func WithObserver(fn func(State)) Option {
	return func(p *Pipeline) { p.observe = fn }
}

// New creates a Pipeline that fetches from github.com and analyzes with the
// HTTP analysis service named by each run's BackendURL.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher:    issuefetcher.New(),
		newBackend: httpBackend,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func httpBackend(cfg triage.RunConfig) (Backend, error) {
	var opts []backend.Option
	if cfg.BackendToken != "" {
		opts = append(opts, backend.WithToken(cfg.BackendToken))
	}
	return backend.New(cfg.BackendURL, opts...)
}

func tracer() oteltrace.Tracer {
	return otel.Tracer("chainguard.dev/issuedebug/triage/pipeline",
		oteltrace.WithInstrumentationVersion("1.0.0"))
}

// Run executes one triage run for cfg. It never fails: every error is
// reported in the returned result.
func (p *Pipeline) Run(ctx context.Context, cfg triage.RunConfig) triage.PipelineResult {
	cfg = cfg.WithDefaults()

	runID := uuid.NewString()
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With(
		"run_id", runID,
		"repo", cfg.Repo.String(),
		"issue", cfg.IssueNumber,
	))
	ctx, span := tracer().Start(ctx, "issuedebug.run", oteltrace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("repo", cfg.Repo.String()),
		attribute.Int("issue", cfg.IssueNumber),
	))
	defer span.End()

	result := p.run(ctx, cfg)

	outcome := outcomeLabel(result)
	runsTotal.WithLabelValues(outcome).Inc()
	span.SetAttributes(attribute.String("outcome", outcome))
	if result.Error != nil {
		span.SetStatus(codes.Error, result.Error.Message)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return result
}

func (p *Pipeline) run(ctx context.Context, cfg triage.RunConfig) triage.PipelineResult {
	log := clog.FromContext(ctx)

	result := triage.PipelineResult{
		IssueInfo: triage.IssueInfo{Repo: cfg.Repo.String(), Number: cfg.IssueNumber},
	}
	fail := func(err error) triage.PipelineResult {
		log.With("kind", triage.KindOf(err)).Errorf("Pipeline failed: %v", err)
		p.transition(ctx, StateFailed)
		result.Success = false
		result.Error = triage.ErrorInfoFrom(err)
		return result
	}

	if err := cfg.Validate(); err != nil {
		return fail(err)
	}
	if cfg.PushToRemote && p.publisher == nil {
		return fail(triage.Errorf(triage.KindConfiguration, "pushing to the remote needs a publisher identity"))
	}
	be, err := p.newBackend(cfg)
	if err != nil {
		return fail(err)
	}

	p.transition(ctx, StateFetchingIssue)
	var issue *triage.IssueContext
	if err := p.stage(ctx, "fetch", cfg.FetchTimeout, func(ctx context.Context) error {
		var err error
		issue, err = p.fetcher.Fetch(ctx, cfg.Repo, cfg.IssueNumber, cfg.Credential)
		return err
	}); err != nil {
		return fail(err)
	}
	result.IssueInfo = issue.Info()

	p.transition(ctx, StateAnalyzingIssue)
	var outcomes []triage.CandidateOutcome
	if err := p.stage(ctx, "analyze", cfg.AnalyzeTimeout, func(ctx context.Context) error {
		var err error
		outcomes, err = be.Analyze(ctx, triage.NewAnalysisRequest(cfg, issue))
		return err
	}); err != nil {
		return fail(err)
	}

	p.transition(ctx, StateSelectingResult)
	outcomes = aggregator.Normalize(outcomes, cfg.RunBuild, cfg.RunTest)
	for _, o := range outcomes {
		candidatesTotal.WithLabelValues(strconv.FormatBool(aggregator.Validated(o))).Inc()
	}
	sel, err := aggregator.Select(outcomes)
	if err != nil {
		return fail(err)
	}
	log.With("candidates", len(outcomes), "selected", sel.Index, "validated", sel.Validated).
		Info("Selected candidate")

	selected := sel.Outcome
	result.AnalysisResult = &selected
	result.Success = sel.Validated

	if cfg.PushToRemote && selected.PassedReproducingTest {
		p.transition(ctx, StatePublishingBranch)
		var branch string
		if err := p.stage(ctx, "publish", cfg.PublishTimeout, func(ctx context.Context) error {
			var err error
			branch, err = p.publisher.Publish(ctx, cfg.Repo, issue, selected, cfg.Credential)
			return err
		}); err != nil {
			// The analysis is still reported alongside the publish failure.
			log.Warnf("Publishing branch failed: %v", err)
			p.transition(ctx, StateFailed)
			result.Success = false
			result.Error = triage.ErrorInfoFrom(err)
			return result
		}
		selected.RemoteBranchName = &branch
	} else if cfg.PushToRemote {
		log.Info("Selected candidate did not reproduce the issue, not publishing")
	}

	p.transition(ctx, StateDone)
	return result
}

// stage runs fn under its own timeout and span, recording its duration. A
// failure caused by the stage deadline is reported as a TimeoutError.
func (p *Pipeline) stage(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) error) error {
	ctx, span := tracer().Start(ctx, "issuedebug."+name)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	stageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && triage.KindOf(err) != triage.KindTimeout {
		err = triage.Errorf(triage.KindTimeout, "%s exceeded %s: %w", name, timeout, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (p *Pipeline) transition(ctx context.Context, s State) {
	clog.FromContext(ctx).With("state", string(s)).Info("Pipeline state changed")
	if p.observe != nil {
		p.observe(s)
	}
}

func outcomeLabel(r triage.PipelineResult) string {
	switch {
	case r.Error != nil:
		return string(r.Error.Kind)
	case r.Success:
		return "success"
	default:
		return "unvalidated"
	}
}
