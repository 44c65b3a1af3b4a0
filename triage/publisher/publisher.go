/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package publisher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"chainguard.dev/issuedebug/triage"
	"chainguard.dev/issuedebug/triage/ghauth"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"golang.org/x/oauth2"
)

const cloneDirPrefix = "issuedebug-publish-"

// repoURL resolves the remote git URL for a repository. Tests override it
// with local filesystem paths.
var repoURL = defaultRemoteURL

func defaultRemoteURL(repo triage.Repo) string {
	return repo.CloneURL()
}

// Git publishes candidate patches as branches on the issue's repository.
// Every Publish works in its own temporary clone, so a Git is safe for
// concurrent use.
type Git struct {
	identity string
	auth     []ghauth.Option
}

// Option configures a Git publisher.
type Option func(*Git)

// WithAuthOptions passes options through to ghauth.New.
func WithAuthOptions(opts ...ghauth.Option) Option {
	return func(g *Git) { g.auth = append(g.auth, opts...) }
}

// New constructs a publisher. Identity names the pushed branches and is the
// commit author name (suffixed with @users.noreply.github.com when it lacks
// a domain).
func New(identity string, opts ...Option) (*Git, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, triage.Errorf(triage.KindConfiguration, "publisher identity cannot be empty")
	}
	g := &Git{identity: identity}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// BranchName returns the branch a fix for issue is published to.
func BranchName(identity string, issue int) string {
	return fmt.Sprintf("%s/issue-%d", identity, issue)
}

// Publish applies outcome's patch on top of the default branch, commits it
// and force pushes it to BranchName. It returns the pushed branch name. Every
// failure is a PublishError.
func (g *Git) Publish(ctx context.Context, repo triage.Repo, issue *triage.IssueContext, outcome triage.CandidateOutcome, cred triage.Credential) (string, error) {
	if issue == nil {
		return "", triage.Errorf(triage.KindPublish, "no issue to publish a fix for")
	}
	branch := BranchName(g.identity, issue.Number)
	if err := g.publish(ctx, repo, issue, branch, outcome.Patch, cred); err != nil {
		return "", triage.Errorf(triage.KindPublish, "publish %s to %s: %w", branch, repo, err)
	}
	return branch, nil
}

func (g *Git) publish(ctx context.Context, repo triage.Repo, issue *triage.IssueContext, branch, patch string, cred triage.Credential) error {
	log := clog.FromContext(ctx).With("repo", repo.String(), "branch", branch)

	if strings.TrimSpace(patch) == "" {
		return errors.New("candidate has an empty patch")
	}
	changes, err := parsePatch(patch)
	if err != nil {
		return err
	}

	authn, err := ghauth.New(cred, g.auth...)
	if err != nil {
		return err
	}
	tokens := authn.TokenSource(ctx)

	dir, err := os.MkdirTemp("", cloneDirPrefix)
	if err != nil {
		return fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	auth, err := basicAuth(tokens)
	if err != nil {
		return fmt.Errorf("getting token: %w", err)
	}

	remote := repoURL(repo)
	log.Infof("Cloning repository %s into %s", remote, dir)
	r, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:          remote,
		SingleBranch: true,
		Auth:         auth,
	})
	if err != nil {
		return fmt.Errorf("cloning repository: %w", err)
	}

	head, err := r.Head()
	if err != nil {
		return fmt.Errorf("resolving HEAD: %w", err)
	}

	ref, err := createFreshBranch(r, branch, head.Hash())
	if err != nil {
		return fmt.Errorf("creating fresh branch: %w", err)
	}

	wt, err := r.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	if err := stageChanges(wt, dir, changes); err != nil {
		return err
	}

	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("getting worktree status: %w", err)
	}
	if status.IsClean() {
		return errors.New("patch produced no changes")
	}

	if err := g.commitChanges(wt, commitMessage(issue)); err != nil {
		return fmt.Errorf("committing changes: %w", err)
	}

	if err := forcePushBranch(ctx, r, ref, auth); err != nil {
		return fmt.Errorf("force pushing branch: %w", err)
	}
	log.Info("Published candidate patch")
	return nil
}

func stageChanges(wt *git.Worktree, root string, changes []fileChange) error {
	for _, fc := range changes {
		if err := fc.apply(root); err != nil {
			return err
		}
		if fc.to != "" {
			if _, err := wt.Add(fc.to); err != nil {
				return fmt.Errorf("staging %s: %w", fc.to, err)
			}
		}
		if fc.from != "" && fc.from != fc.to {
			if _, err := wt.Remove(fc.from); err != nil {
				return fmt.Errorf("removing %s: %w", fc.from, err)
			}
		}
	}
	return nil
}

func createFreshBranch(r *git.Repository, branch string, at plumbing.Hash) (plumbing.ReferenceName, error) {
	refName := plumbing.NewBranchReferenceName(branch)
	if err := r.Storer.SetReference(plumbing.NewHashReference(refName, at)); err != nil {
		return "", fmt.Errorf("setting branch reference: %w", err)
	}

	wt, err := r.Worktree()
	if err != nil {
		return "", fmt.Errorf("getting worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: refName, Force: true}); err != nil {
		return "", fmt.Errorf("checking out branch: %w", err)
	}
	return refName, nil
}

func commitMessage(issue *triage.IssueContext) string {
	msg := fmt.Sprintf("Fix #%d: %s", issue.Number, issue.Title)
	if issue.URL != "" {
		msg += "\n\nProposed fix for " + issue.URL
	}
	return msg
}

func (g *Git) commitChanges(wt *git.Worktree, message string) error {
	email := g.identity
	if !strings.Contains(email, "@") {
		email = fmt.Sprintf("%s@users.noreply.github.com", email)
	}

	_, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  g.identity,
			Email: email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

func forcePushBranch(ctx context.Context, r *git.Repository, ref plumbing.ReferenceName, auth *githttp.BasicAuth) error {
	log := clog.FromContext(ctx)

	refSpec := gitconfig.RefSpec(fmt.Sprintf("%s:%s", ref.String(), ref.String()))
	log.Infof("Force pushing to %s", refSpec)

	if err := r.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		Auth:       auth,
		Force:      true,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
	}); err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			log.Infof("Branch already up to date")
			return nil
		}
		return fmt.Errorf("force pushing: %w", err)
	}
	return nil
}

func basicAuth(ts oauth2.TokenSource) (*githttp.BasicAuth, error) {
	token, err := ts.Token()
	if err != nil {
		return nil, err
	}
	return &githttp.BasicAuth{
		Username: "x-access-token",
		Password: token.AccessToken,
	}, nil
}
