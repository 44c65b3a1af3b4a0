/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package publisher pushes a validated candidate patch to a branch on the
// issue's repository.
//
// A publish clones the repository's default branch into a temporary
// directory, checks out a fresh branch named "<identity>/issue-<n>", applies
// the candidate's unified diff with strict context matching, commits as the
// configured identity and force pushes the branch. The temporary clone is
// removed afterwards whatever the outcome.
//
//	pub, err := publisher.New("issuedebug-bot")
//	if err != nil {
//		return err
//	}
//	branch, err := pub.Publish(ctx, repo, issue, selected, cred)
package publisher
