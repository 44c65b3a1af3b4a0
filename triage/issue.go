/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package triage

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Repo identifies a GitHub repository.
type Repo struct {
	Owner string
	Name  string
}

// ParseRepo parses an "owner/repo" string.
func ParseRepo(s string) (Repo, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repo{}, Errorf(KindConfiguration, "invalid repo %q, should be 'owner/repo'", s)
	}
	return Repo{Owner: owner, Name: name}, nil
}

func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

// CloneURL returns the HTTPS clone URL of the repository on github.com.
func (r Repo) CloneURL() string {
	return fmt.Sprintf("https://github.com/%s/%s.git", r.Owner, r.Name)
}

// IssueState is the open/closed state of an issue.
type IssueState string

const (
	IssueOpen   IssueState = "open"
	IssueClosed IssueState = "closed"
)

// Comment is a single entry of an issue's discussion thread.
type Comment struct {
	Author    string
	Body      string
	CreatedAt time.Time
}

// IssueContext is the textual content of one issue. It is created by the
// issue fetcher and treated as read-only afterwards.
type IssueContext struct {
	Repo     Repo
	Number   int
	Title    string
	Body     string
	Comments []Comment
	State    IssueState
	URL      string
}

// ChronologicalComments returns a copy of the comment thread ordered by
// creation time. Comments with equal timestamps keep their fetched order.
func (ic *IssueContext) ChronologicalComments() []Comment {
	out := slices.Clone(ic.Comments)
	slices.SortStableFunc(out, func(a, b Comment) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

// Info projects the issue into the form reported in a PipelineResult.
func (ic *IssueContext) Info() IssueInfo {
	return IssueInfo{
		Repo:   ic.Repo.String(),
		Number: ic.Number,
		Title:  ic.Title,
		URL:    ic.URL,
		State:  string(ic.State),
	}
}
