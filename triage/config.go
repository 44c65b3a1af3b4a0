/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package triage

import (
	"net/url"
	"time"
)

// Defaults applied by RunConfig.WithDefaults.
const (
	DefaultCandidatePatches = 4
	DefaultBackendURL       = "http://localhost:9002"
	DefaultFetchTimeout     = 2 * time.Minute
	DefaultAnalyzeTimeout   = 60 * time.Minute
	DefaultPublishTimeout   = 5 * time.Minute
)

// Credential authenticates against GitHub, either with a token or as a
// GitHub App installation.
type Credential struct {
	Token string

	AppID          int64
	InstallationID int64
	PrivateKey     []byte
}

// IsApp reports whether the credential describes a GitHub App installation.
func (c Credential) IsApp() bool {
	return c.AppID != 0 || c.InstallationID != 0 || len(c.PrivateKey) != 0
}

// Validate checks that exactly one kind of credential is fully described.
func (c Credential) Validate() error {
	switch {
	case c.Token != "" && c.IsApp():
		return Errorf(KindConfiguration, "credential sets both a token and GitHub App fields")
	case c.Token != "":
		return nil
	case !c.IsApp():
		return Errorf(KindConfiguration, "a GitHub token or GitHub App credential is required")
	case c.AppID == 0 || c.InstallationID == 0 || len(c.PrivateKey) == 0:
		return Errorf(KindConfiguration, "GitHub App credential needs an app ID, installation ID and private key")
	}
	return nil
}

// String redacts secrets so credentials can be logged safely.
func (c Credential) String() string {
	switch {
	case c.Token != "":
		return "token(redacted)"
	case c.IsApp():
		return "github-app(redacted)"
	default:
		return "none"
	}
}

// RunConfig is everything one pipeline invocation needs. It is built once by
// the caller and never mutated by the pipeline.
type RunConfig struct {
	Credential  Credential
	Repo        Repo
	IssueNumber int

	// BackendURL is the base URL of the analysis service.
	BackendURL string
	// BackendToken is sent as a bearer token when the analysis service has
	// authentication enabled.
	BackendToken string

	RunBuild     bool
	RunTest      bool
	PushToRemote bool

	CandidatePatches int
	Environment      ExecutionEnvironmentSpec

	FetchTimeout   time.Duration
	AnalyzeTimeout time.Duration
	PublishTimeout time.Duration
}

// WithDefaults returns a copy with unset fields defaulted.
func (c RunConfig) WithDefaults() RunConfig {
	if c.CandidatePatches == 0 {
		c.CandidatePatches = DefaultCandidatePatches
	}
	if c.BackendURL == "" {
		c.BackendURL = DefaultBackendURL
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.AnalyzeTimeout == 0 {
		c.AnalyzeTimeout = DefaultAnalyzeTimeout
	}
	if c.PublishTimeout == 0 {
		c.PublishTimeout = DefaultPublishTimeout
	}
	c.Environment = c.Environment.WithDefaults()
	return c
}

// ValidationRequested reports whether the backend is asked to build or test.
func (c RunConfig) ValidationRequested() bool {
	return c.RunBuild || c.RunTest
}

// Validate performs every check that can be made without touching the
// network. Failures are ConfigurationErrors.
func (c RunConfig) Validate() error {
	switch {
	case c.Repo.Owner == "" || c.Repo.Name == "":
		return Errorf(KindConfiguration, "repository owner and name are required")
	case c.IssueNumber < 1:
		return Errorf(KindConfiguration, "issue number must be positive, got %d", c.IssueNumber)
	case c.CandidatePatches < 1:
		return Errorf(KindConfiguration, "candidate patches must be at least 1, got %d", c.CandidatePatches)
	case c.FetchTimeout < 0 || c.AnalyzeTimeout < 0 || c.PublishTimeout < 0:
		return Errorf(KindConfiguration, "timeouts cannot be negative")
	}

	if err := c.Environment.Validate(c.ValidationRequested()); err != nil {
		return err
	}
	if err := c.Credential.Validate(); err != nil {
		return err
	}

	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return Errorf(KindConfiguration, "invalid backend URL %q: %w", c.BackendURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Errorf(KindConfiguration, "backend URL %q must be an absolute http(s) URL", c.BackendURL)
	}
	return nil
}

// AnalysisRequest is what the pipeline hands to the analysis backend.
type AnalysisRequest struct {
	Repo           Repo
	Issue          *IssueContext
	Environment    ExecutionEnvironmentSpec
	CandidateCount int
	RunBuild       bool
	RunTest        bool
}

// NewAnalysisRequest builds the backend request for cfg and a fetched issue.
func NewAnalysisRequest(cfg RunConfig, issue *IssueContext) AnalysisRequest {
	return AnalysisRequest{
		Repo:           cfg.Repo,
		Issue:          issue,
		Environment:    cfg.Environment,
		CandidateCount: cfg.CandidatePatches,
		RunBuild:       cfg.RunBuild,
		RunTest:        cfg.RunTest,
	}
}
