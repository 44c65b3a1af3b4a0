/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package issuefetcher retrieves an issue and its full discussion thread
// from the GitHub REST API.
package issuefetcher

import (
	"context"
	"net/url"
	"strings"

	"chainguard.dev/issuedebug/triage"
	"chainguard.dev/issuedebug/triage/ghauth"
	"chainguard.dev/issuedebug/triage/retry"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

// commentsPerPage is the largest page size the issues API accepts.
const commentsPerPage = 100

// GitHub fetches issues through the GitHub REST API. It holds no per-issue
// state and is safe for concurrent use.
type GitHub struct {
	apiURL string
	retry  retry.Config
	auth   []ghauth.Option
}

// Option configures a GitHub fetcher.
type Option func(*GitHub)

// WithAPIURL targets a GitHub Enterprise (or test) API endpoint.
func WithAPIURL(u string) Option {
	return func(g *GitHub) { g.apiURL = u }
}

// WithRetry overrides the transient-failure retry policy.
func WithRetry(cfg retry.Config) Option {
	return func(g *GitHub) { g.retry = cfg }
}

// WithAuthOptions passes options through to ghauth.New.
func WithAuthOptions(opts ...ghauth.Option) Option {
	return func(g *GitHub) { g.auth = append(g.auth, opts...) }
}

// New creates a fetcher targeting api.github.com by default.
func New(opts ...Option) *GitHub {
	g := &GitHub{retry: retry.Transient()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Fetch returns the issue's metadata and its complete comment thread in
// chronological order.
func (g *GitHub) Fetch(ctx context.Context, repo triage.Repo, number int, cred triage.Credential) (*triage.IssueContext, error) {
	log := clog.FromContext(ctx).With("repo", repo.String(), "issue", number)

	gh, err := g.client(cred)
	if err != nil {
		return nil, err
	}

	issue, err := retry.Do(ctx, g.retry, "get issue", triage.IsTransient, func(ctx context.Context) (*github.Issue, error) {
		issue, _, err := gh.Issues.Get(ctx, repo.Owner, repo.Name, number)
		return issue, classify(ctx, err, "issue %s#%d", repo, number)
	})
	if err != nil {
		return nil, err
	}

	comments, err := g.listComments(ctx, gh, repo, number)
	if err != nil {
		return nil, err
	}
	log.With("comments", len(comments)).Debug("Fetched issue")

	ic := &triage.IssueContext{
		Repo:     repo,
		Number:   issue.GetNumber(),
		Title:    issue.GetTitle(),
		Body:     issue.GetBody(),
		Comments: comments,
		State:    triage.IssueState(issue.GetState()),
		URL:      issue.GetHTMLURL(),
	}
	ic.Comments = ic.ChronologicalComments()
	return ic, nil
}

// listComments walks every page of the issue's comments.
func (g *GitHub) listComments(ctx context.Context, gh *github.Client, repo triage.Repo, number int) ([]triage.Comment, error) {
	opts := &github.IssueListCommentsOptions{
		Sort:        github.Ptr("created"),
		Direction:   github.Ptr("asc"),
		ListOptions: github.ListOptions{PerPage: commentsPerPage},
	}

	var out []triage.Comment
	for {
		type page struct {
			comments []*github.IssueComment
			next     int
		}
		p, err := retry.Do(ctx, g.retry, "list comments", triage.IsTransient, func(ctx context.Context) (page, error) {
			comments, resp, err := gh.Issues.ListComments(ctx, repo.Owner, repo.Name, number, opts)
			if err != nil {
				return page{}, classify(ctx, err, "comments of %s#%d", repo, number)
			}
			return page{comments: comments, next: resp.NextPage}, nil
		})
		if err != nil {
			return nil, err
		}

		for _, c := range p.comments {
			out = append(out, triage.Comment{
				Author:    c.GetUser().GetLogin(),
				Body:      c.GetBody(),
				CreatedAt: c.GetCreatedAt().Time,
			})
		}
		if p.next == 0 {
			return out, nil
		}
		opts.Page = p.next
	}
}

func (g *GitHub) client(cred triage.Credential) (*github.Client, error) {
	var authOpts []ghauth.Option
	authOpts = append(authOpts, g.auth...)
	if g.apiURL != "" {
		authOpts = append(authOpts, ghauth.WithAPIURL(g.apiURL))
	}
	auth, err := ghauth.New(cred, authOpts...)
	if err != nil {
		return nil, err
	}

	gh := github.NewClient(auth.Client())
	if g.apiURL != "" {
		base := g.apiURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, triage.Errorf(triage.KindConfiguration, "invalid GitHub API URL %q: %w", g.apiURL, err)
		}
		gh.BaseURL = u
	}
	return gh, nil
}
