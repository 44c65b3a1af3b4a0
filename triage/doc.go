/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package triage holds the data model shared by the issue debugging
// pipeline: the issue context fetched from GitHub, the execution environment
// used to validate candidate fixes, the per-invocation RunConfig, the
// candidate outcomes produced by the analysis backend, and the
// PipelineResult reported to callers.
//
// It also defines the error taxonomy used across the pipeline. Every
// collaborator reports failures as *Error values tagged with a Kind so the
// orchestrator can produce a machine-readable error in the final result:
//
//	if errors.Is(err, triage.ErrRateLimited) {
//	    // back off and try later
//	}
//
//	result.Error = triage.ErrorInfoFrom(err)
package triage
