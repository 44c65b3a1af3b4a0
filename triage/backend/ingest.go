/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"chainguard.dev/issuedebug/triage"
	"github.com/cenkalti/backoff/v4"
	"github.com/chainguard-dev/clog"
)

var errStillIngesting = errors.New("repository ingestion still in progress")

// EnsureIngested makes sure the service knows the repository. It is a no-op
// when the repository is already ingested, and waits when another caller is
// ingesting it right now.
func (c *Client) EnsureIngested(ctx context.Context, repo triage.Repo) error {
	log := clog.FromContext(ctx).With("repo", repo.String())

	exists, err := c.exists(ctx, repo)
	if err != nil {
		return err
	}
	if exists {
		log.Info("Repository already ingested, skipping upload")
		return nil
	}

	log.Info("Ingesting repository")
	status, body, err := c.send(ctx, http.MethodGet, "/repository/github/", repoQuery(repo), nil)
	if err != nil {
		return err
	}

	switch status {
	case http.StatusOK, http.StatusCreated:
		var env envelope
		if len(bytes.TrimSpace(body)) > 0 {
			if err := json.Unmarshal(body, &env); err != nil {
				return triage.Errorf(triage.KindAnalysisFailed, "decode ingest response: %w", err)
			}
		}
		if !env.ok() {
			return triage.Errorf(triage.KindAnalysisFailed, "ingest %s: %s", repo, env.Message)
		}
		log.Info("Repository ingested")
		return nil

	case http.StatusAccepted, http.StatusConflict:
		log.With("max_wait", c.ingestWait).Info("Repository ingestion already in progress, waiting")
		return c.waitIngested(ctx, repo)

	default:
		return statusError("ingest "+repo.String(), status, body)
	}
}

// waitIngested polls the ingestion state with exponential backoff.
func (c *Client) waitIngested(ctx context.Context, repo triage.Repo) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.pollInterval
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = c.ingestWait

	err := backoff.Retry(func() error {
		ok, err := c.exists(ctx, repo)
		switch {
		case err != nil && triage.IsTransient(err):
			return err
		case err != nil:
			return backoff.Permanent(err)
		case !ok:
			return errStillIngesting
		}
		return nil
	}, backoff.WithContext(bo, ctx))

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errStillIngesting):
		return triage.Errorf(triage.KindBackendUnavailable, "%s still ingesting after %s", repo, c.ingestWait)
	case errors.Is(err, context.DeadlineExceeded):
		return triage.Errorf(triage.KindTimeout, "waiting for %s ingestion: %w", repo, err)
	case errors.Is(err, context.Canceled) && triage.KindOf(err) != triage.KindCanceled:
		return triage.Errorf(triage.KindCanceled, "waiting for %s ingestion: %w", repo, err)
	default:
		return err
	}
}

// exists asks whether the repository is ingested. The service answers either
// with an envelope or a bare boolean.
func (c *Client) exists(ctx context.Context, repo triage.Repo) (bool, error) {
	status, body, err := c.send(ctx, http.MethodGet, "/repository/exists/", repoQuery(repo), nil)
	if err != nil {
		return false, err
	}
	if status/100 != 2 {
		return false, statusError("check "+repo.String(), status, body)
	}

	body = bytes.TrimSpace(body)
	if b, err := strconv.ParseBool(string(body)); err == nil {
		return b, nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false, triage.Errorf(triage.KindAnalysisFailed, "decode exists response: %w", err)
	}
	if !env.ok() {
		return false, triage.Errorf(triage.KindAnalysisFailed, "check %s: %s", repo, env.Message)
	}
	var exists bool
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &exists); err != nil {
			return false, triage.Errorf(triage.KindAnalysisFailed, "decode exists flag: %w", err)
		}
	}
	return exists, nil
}
