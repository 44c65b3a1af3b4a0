/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package backend

import (
	"bytes"
	"encoding/json"
	"fmt"

	"chainguard.dev/issuedebug/triage"
)

// envelope is the service's response wrapper. A missing code is treated as
// success.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) ok() bool {
	return e.Code == 0 || e.Code == 200
}

type wireComment struct {
	Username string `json:"username"`
	Comment  string `json:"comment"`
}

type answerRequest struct {
	RepositoryURL          string        `json:"https_url"`
	IssueNumber            int           `json:"issue_number"`
	IssueTitle             string        `json:"issue_title"`
	IssueBody              string        `json:"issue_body"`
	IssueComments          []wireComment `json:"issue_comments"`
	IssueType              string        `json:"issue_type"`
	RunBuild               bool          `json:"run_build"`
	RunExistingTest        bool          `json:"run_existing_test"`
	NumberOfCandidatePatch int           `json:"number_of_candidate_patch"`
	PushToRemote           bool          `json:"push_to_remote"`
	DockerfileContent      string        `json:"dockerfile_content,omitempty"`
	ImageName              string        `json:"image_name,omitempty"`
	Workdir                string        `json:"workdir,omitempty"`
	BuildCommands          []string      `json:"build_commands,omitempty"`
	TestCommands           []string      `json:"test_commands,omitempty"`
}

func newAnswerRequest(req triage.AnalysisRequest) answerRequest {
	issue := req.Issue
	comments := make([]wireComment, 0, len(issue.Comments))
	for _, c := range issue.ChronologicalComments() {
		comments = append(comments, wireComment{Username: c.Author, Comment: c.Body})
	}

	env := req.Environment
	ar := answerRequest{
		RepositoryURL:          req.Repo.CloneURL(),
		IssueNumber:            issue.Number,
		IssueTitle:             issue.Title,
		IssueBody:              issue.Body,
		IssueComments:          comments,
		IssueType:              "bug",
		RunBuild:               req.RunBuild,
		RunExistingTest:        req.RunTest,
		NumberOfCandidatePatch: req.CandidateCount,
		// Publication is decided by the pipeline after selection.
		PushToRemote:  false,
		BuildCommands: env.BuildCommands,
		TestCommands:  env.TestCommands,
	}
	switch {
	case env.Dockerfile != "":
		ar.DockerfileContent = env.Dockerfile
		ar.Workdir = env.Workdir
	case env.Image != "":
		ar.ImageName = env.Image
		ar.Workdir = env.Workdir
	}
	return ar
}

type wireOutcome struct {
	Patch                 string  `json:"patch"`
	PassedReproducingTest bool    `json:"passed_reproducing_test"`
	PassedBuild           *bool   `json:"passed_build"`
	PassedExistingTest    *bool   `json:"passed_existing_test"`
	IssueResponse         string  `json:"issue_response"`
	RemoteBranchName      *string `json:"remote_branch_name"`
}

// decodeOutcomes accepts a single outcome, an array of outcomes, or an
// object with a "candidates" array. Order is preserved.
func decodeOutcomes(data json.RawMessage) ([]wireOutcome, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	switch data[0] {
	case '[':
		var out []wireOutcome
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode candidate list: %w", err)
		}
		return out, nil

	case '{':
		var wrapped struct {
			Candidates *[]wireOutcome `json:"candidates"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("decode candidates: %w", err)
		}
		if wrapped.Candidates != nil {
			return *wrapped.Candidates, nil
		}
		var single wireOutcome
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("decode candidate: %w", err)
		}
		return []wireOutcome{single}, nil

	default:
		return nil, fmt.Errorf("unexpected analysis payload %.40q", data)
	}
}

// toOutcome converts a wire outcome, dropping validation results for steps
// that were not requested and any branch the service may have pushed.
func (w wireOutcome) toOutcome(runBuild, runTest bool) triage.CandidateOutcome {
	out := triage.CandidateOutcome{
		Patch:                 w.Patch,
		PassedReproducingTest: w.PassedReproducingTest,
		IssueResponse:         w.IssueResponse,
	}
	if runBuild {
		out.PassedBuild = w.PassedBuild
	}
	if runTest {
		out.PassedExistingTest = w.PassedExistingTest
	}
	return out
}
