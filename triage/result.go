/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package triage

import (
	"encoding/json"
	"io"
)

// CandidateOutcome is one proposed fix and its validation status as
// reported by the analysis backend. A nil PassedBuild or PassedExistingTest
// means the step was not requested or its outcome is unknown.
type CandidateOutcome struct {
	Patch                 string  `json:"patch" jsonschema:"required,description=Unified diff of the proposed fix"`
	PassedReproducingTest bool    `json:"passed_reproducing_test" jsonschema:"required"`
	PassedBuild           *bool   `json:"passed_build" jsonschema:"required,nullable,description=Null when no build was requested"`
	PassedExistingTest    *bool   `json:"passed_existing_test" jsonschema:"required,nullable,description=Null when no test run was requested"`
	IssueResponse         string  `json:"issue_response" jsonschema:"required,description=Analysis narrative"`
	RemoteBranchName      *string `json:"remote_branch_name" jsonschema:"required,nullable,description=Branch the fix was pushed to"`
}

// IssueInfo is the projection of an IssueContext reported to callers.
type IssueInfo struct {
	Repo   string `json:"repo" jsonschema:"required,description=owner/repo"`
	Number int    `json:"number" jsonschema:"required"`
	Title  string `json:"title" jsonschema:"required"`
	URL    string `json:"url" jsonschema:"required"`
	State  string `json:"state" jsonschema:"required"`
}

// PipelineResult is the single artifact a pipeline run produces. Field order
// is the serialization order.
type PipelineResult struct {
	Success        bool              `json:"success" jsonschema:"required,description=True only when a fully validated fix was produced and published if requested"`
	IssueInfo      IssueInfo         `json:"issue_info" jsonschema:"required"`
	AnalysisResult *CandidateOutcome `json:"prometheus_result,omitempty" jsonschema:"description=Selected candidate; absent when analysis did not complete"`
	Error          *ErrorInfo        `json:"error,omitempty" jsonschema:"description=Present when the run failed"`
}

// WriteJSON writes r as indented JSON followed by a newline. HTML characters
// are not escaped so patches round-trip verbatim.
func (r PipelineResult) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(r)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
