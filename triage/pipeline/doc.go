/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package pipeline orchestrates one issue triage run.
//
// A run moves through the states
//
//	FetchingIssue -> AnalyzingIssue -> SelectingResult -> [PublishingBranch] -> Done | Failed
//
// and always ends with exactly one triage.PipelineResult. Configuration is
// validated before any network call. Fetch, analysis and publication each
// run under their own timeout from the RunConfig.
//
// Runs share nothing but their collaborators, so one Pipeline may serve many
// concurrent runs for different issues:
//
//	p := pipeline.New(pipeline.WithPublisher(pub))
//	result := p.Run(ctx, cfg)
//	if err := result.WriteJSON(os.Stdout); err != nil {
//		return err
//	}
package pipeline
