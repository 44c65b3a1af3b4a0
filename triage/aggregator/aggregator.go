/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package aggregator reduces the candidate outcomes returned by the analysis
// backend to the single result a pipeline run reports.
//
// Selection is a pure function of the candidate order: the first candidate
// that reproduced the issue and did not fail a requested validation step
// wins. When none qualifies the first candidate is still reported, but not
// as validated.
package aggregator

import (
	"chainguard.dev/issuedebug/triage"
)

// Selection is the outcome chosen from a candidate list.
type Selection struct {
	// Outcome is the chosen candidate.
	Outcome triage.CandidateOutcome
	// Index is the candidate's position in generation order.
	Index int
	// Validated reports whether Outcome satisfies Validated.
	Validated bool
}

// Normalize returns a copy of outcomes with validation results for steps
// that were not requested cleared, and any remote branch name dropped.
func Normalize(outcomes []triage.CandidateOutcome, runBuild, runTest bool) []triage.CandidateOutcome {
	out := make([]triage.CandidateOutcome, len(outcomes))
	for i, o := range outcomes {
		if !runBuild {
			o.PassedBuild = nil
		}
		if !runTest {
			o.PassedExistingTest = nil
		}
		o.RemoteBranchName = nil
		out[i] = o
	}
	return out
}

// Validated reports whether o reproduced the issue without failing a build
// or existing test run. Unknown validation results do not disqualify.
func Validated(o triage.CandidateOutcome) bool {
	return o.PassedReproducingTest &&
		(o.PassedBuild == nil || *o.PassedBuild) &&
		(o.PassedExistingTest == nil || *o.PassedExistingTest)
}

// Select picks the first validated candidate, or the first candidate when
// none is validated. An empty list is an EmptyResultError.
func Select(outcomes []triage.CandidateOutcome) (Selection, error) {
	if len(outcomes) == 0 {
		return Selection{}, triage.Errorf(triage.KindEmptyResult, "analysis backend returned no candidate patches")
	}
	for i, o := range outcomes {
		if Validated(o) {
			return Selection{Outcome: o, Index: i, Validated: true}, nil
		}
	}
	return Selection{Outcome: outcomes[0], Index: 0}, nil
}
