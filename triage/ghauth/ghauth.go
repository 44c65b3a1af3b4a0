/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package ghauth turns a triage.Credential into authenticated GitHub
// transports: an *http.Client for REST calls and an oauth2.TokenSource for
// git operations.
package ghauth

import (
	"context"
	"net/http"
	"strings"

	"chainguard.dev/issuedebug/triage"
	"github.com/bradleyfalzon/ghinstallation/v2"
	"golang.org/x/oauth2"
)

// Authenticator authenticates requests as one credential.
type Authenticator struct {
	static oauth2.TokenSource
	itr    *ghinstallation.Transport
	base   http.RoundTripper
}

// Option configures an Authenticator.
type Option func(*options)

type options struct {
	base   http.RoundTripper
	apiURL string
}

// WithTransport sets the underlying transport. Defaults to http.DefaultTransport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

// WithAPIURL points GitHub App token exchange at a GitHub Enterprise API.
func WithAPIURL(u string) Option {
	return func(o *options) { o.apiURL = u }
}

// New validates cred and builds an Authenticator for it.
func New(cred triage.Credential, opts ...Option) (*Authenticator, error) {
	o := options{base: http.DefaultTransport}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cred.Validate(); err != nil {
		return nil, err
	}

	if cred.Token != "" {
		return &Authenticator{
			static: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.Token}),
			base:   o.base,
		}, nil
	}

	itr, err := ghinstallation.New(o.base, cred.AppID, cred.InstallationID, cred.PrivateKey)
	if err != nil {
		return nil, triage.Errorf(triage.KindConfiguration, "create GitHub App transport: %w", err)
	}
	if o.apiURL != "" {
		itr.BaseURL = strings.TrimSuffix(o.apiURL, "/")
	}
	return &Authenticator{itr: itr, base: o.base}, nil
}

// Client returns an HTTP client that authenticates every request.
func (a *Authenticator) Client() *http.Client {
	if a.itr != nil {
		return &http.Client{Transport: a.itr}
	}
	return &http.Client{Transport: &oauth2.Transport{Source: a.static, Base: a.base}}
}

// TokenSource returns the access tokens used for git pushes.
func (a *Authenticator) TokenSource(ctx context.Context) oauth2.TokenSource {
	if a.itr != nil {
		return oauth2.ReuseTokenSource(nil, &installationTokenSource{ctx: ctx, itr: a.itr})
	}
	return a.static
}

type installationTokenSource struct {
	ctx context.Context
	itr *ghinstallation.Transport
}

func (s *installationTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.itr.Token(s.ctx)
	if err != nil {
		return nil, triage.Errorf(triage.KindAuth, "exchange GitHub App installation token: %w", err)
	}
	return &oauth2.Token{AccessToken: tok}, nil
}
