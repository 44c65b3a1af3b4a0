/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package issuefetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"chainguard.dev/issuedebug/triage"
	"github.com/google/go-github/v84/github"
)

// classify maps a go-github error onto the triage taxonomy. Only
// BackendUnavailableError is considered transient by the retry loop.
func classify(ctx context.Context, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	subject := fmt.Sprintf(format, args...)

	var (
		rateErr  *github.RateLimitError
		abuseErr *github.AbuseRateLimitError
		respErr  *github.ErrorResponse
		netErr   net.Error
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return triage.Errorf(triage.KindTimeout, "timed out fetching %s: %w", subject, err)

	case errors.Is(err, context.Canceled):
		return triage.Errorf(triage.KindCanceled, "fetching %s: %w", subject, err)

	case errors.As(err, &rateErr):
		return triage.Errorf(triage.KindRateLimited, "GitHub API rate limit exhausted fetching %s (resets %s): %w",
			subject, rateErr.Rate.Reset.Format(time.RFC3339), err)

	case errors.As(err, &abuseErr):
		return triage.Errorf(triage.KindRateLimited, "GitHub secondary rate limit hit fetching %s (retry after %s): %w",
			subject, abuseErr.GetRetryAfter(), err)

	case errors.As(err, &respErr) && respErr.Response != nil:
		return classifyStatus(respErr.Response.StatusCode, subject, err)

	case errors.As(err, &netErr) && netErr.Timeout():
		return triage.Errorf(triage.KindTimeout, "timed out fetching %s: %w", subject, err)

	default:
		// Connection refused/reset and other transport failures.
		return triage.Errorf(triage.KindBackendUnavailable, "fetching %s: %w", subject, err)
	}
}

func classifyStatus(status int, subject string, err error) error {
	switch {
	case status == http.StatusUnauthorized:
		return triage.Errorf(triage.KindAuth, "GitHub rejected the credential fetching %s: %w", subject, err)
	case status == http.StatusForbidden:
		return triage.Errorf(triage.KindNotFound, "%s is not accessible with the given credential: %w", subject, err)
	case status == http.StatusNotFound || status == http.StatusGone:
		return triage.Errorf(triage.KindNotFound, "%s not found: %w", subject, err)
	case status == http.StatusTooManyRequests:
		return triage.Errorf(triage.KindRateLimited, "GitHub throttled fetching %s: %w", subject, err)
	case status >= 500:
		return triage.Errorf(triage.KindBackendUnavailable, "GitHub returned %d fetching %s: %w", status, subject, err)
	default:
		return fmt.Errorf("fetching %s: %w", subject, err)
	}
}
