/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package report

import (
	"bytes"
	"strings"
	"testing"

	"chainguard.dev/issuedebug/triage"
	"github.com/google/go-cmp/cmp"
)

func TestRows(t *testing.T) {
	tests := []struct {
		name   string
		result triage.PipelineResult
		want   [][]string
	}{{
		name: "validated and published",
		result: triage.PipelineResult{
			Success:   true,
			IssueInfo: triage.IssueInfo{Repo: "octo/demo", Number: 7, Title: "panic on empty config", URL: "https://github.com/octo/demo/issues/7", State: "open"},
			AnalysisResult: &triage.CandidateOutcome{
				Patch:                 "diff",
				PassedReproducingTest: true,
				PassedBuild:           triage.Ptr(true),
				IssueResponse:         "fixed",
				RemoteBranchName:      triage.Ptr("issuedebug/issue-7"),
			},
		},
		want: [][]string{
			{"Repository", "octo/demo"},
			{"Issue", "#7 panic on empty config"},
			{"URL", "https://github.com/octo/demo/issues/7"},
			{"State", "open"},
			{"Result", "success"},
			{"Patch generated", "yes"},
			{"Reproducing test", "passed"},
			{"Build validation", "passed"},
			{"Existing tests", "not run"},
			{"Analysis produced", "yes"},
			{"Remote branch", "issuedebug/issue-7"},
		},
	}, {
		name: "failed before fetch",
		result: triage.PipelineResult{
			IssueInfo: triage.IssueInfo{Repo: "octo/demo", Number: 7},
			Error:     &triage.ErrorInfo{Kind: triage.KindNotFound, Message: "issue octo/demo#7 not found"},
		},
		want: [][]string{
			{"Repository", "octo/demo"},
			{"Issue", "#7"},
			{"Result", "failed"},
			{"Error kind", "NotFoundError"},
			{"Error", "issue octo/demo#7 not found"},
		},
	}, {
		name: "no validated fix",
		result: triage.PipelineResult{
			IssueInfo:      triage.IssueInfo{Repo: "octo/demo", Number: 7},
			AnalysisResult: &triage.CandidateOutcome{},
		},
		want: [][]string{
			{"Repository", "octo/demo"},
			{"Issue", "#7"},
			{"Result", "no validated fix"},
			{"Patch generated", "no"},
			{"Reproducing test", "failed"},
			{"Build validation", "not run"},
			{"Existing tests", "not run"},
			{"Analysis produced", "no"},
			{"Remote branch", "-"},
		},
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Rows(tt.result)); diff != "" {
				t.Errorf("Rows() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf,
		triage.PipelineResult{Success: true, IssueInfo: triage.IssueInfo{Repo: "octo/demo", Number: 7}},
		triage.PipelineResult{IssueInfo: triage.IssueInfo{Repo: "octo/demo", Number: 8}, Error: &triage.ErrorInfo{Kind: triage.KindTimeout, Message: "fetch exceeded 2m0s"}},
	)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	out := buf.String()
	t.Logf("Generated summary:\n%s", out)
	for _, want := range []string{"FIELD", "Repository", "octo/demo", "#7", "#8", "TimeoutError", "fetch exceeded 2m0s"} {
		if !strings.Contains(strings.ToUpper(out), strings.ToUpper(want)) {
			t.Errorf("summary missing %q", want)
		}
	}
}
