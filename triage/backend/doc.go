/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package backend talks to the external analysis service that turns an issue
// into candidate patches.
//
// The service keeps a knowledge graph per repository. Before an issue can be
// analyzed the repository must be ingested; Client.Analyze takes care of
// that, tolerating another invocation ingesting the same repository
// concurrently:
//
//	c, err := backend.New("http://localhost:9002")
//	if err != nil {
//	    return err
//	}
//	outcomes, err := c.Analyze(ctx, triage.AnalysisRequest{
//	    Repo:           repo,
//	    Issue:          issue,
//	    Environment:    env,
//	    CandidateCount: 4,
//	})
//
// The client shapes requests and normalizes responses; building and testing
// candidates happens inside the service's own sandbox. Validation fields for
// steps that were not requested are always reported as unknown.
package backend
