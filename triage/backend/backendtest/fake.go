/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package backendtest provides a scripted analysis backend for tests.
package backendtest

import (
	"context"
	"sync"

	"chainguard.dev/issuedebug/triage"
)

// Fake returns scripted candidate outcomes and records every request.
type Fake struct {
	// Outcomes is returned, copied, from every successful Analyze call.
	Outcomes []triage.CandidateOutcome
	// Err, when set, is returned instead of Outcomes.
	Err error
	// Block makes Analyze wait for its context to end.
	Block bool

	mu       sync.Mutex
	requests []triage.AnalysisRequest
}

// New returns a fake that answers with outcomes.
func New(outcomes ...triage.CandidateOutcome) *Fake {
	return &Fake{Outcomes: outcomes}
}

// Failing returns a fake that answers every call with err.
func Failing(err error) *Fake {
	return &Fake{Err: err}
}

// Analyze implements the pipeline's analysis backend.
func (f *Fake) Analyze(ctx context.Context, req triage.AnalysisRequest) ([]triage.CandidateOutcome, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.Block {
		<-ctx.Done()
		return nil, triage.Errorf(triage.KindTimeout, "analyze: %w", ctx.Err())
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]triage.CandidateOutcome(nil), f.Outcomes...), nil
}

// Requests returns the requests seen so far.
func (f *Fake) Requests() []triage.AnalysisRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]triage.AnalysisRequest(nil), f.requests...)
}
