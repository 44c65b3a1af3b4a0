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
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chainguard.dev/issuedebug/triage"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 64 << 20

// Client is an HTTP client for the analysis service. It is safe for
// concurrent use and keeps no per-request state.
type Client struct {
	baseURL      *url.URL
	http         *http.Client
	token        string
	ingestWait   time.Duration
	pollInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. The default one is instrumented
// with OpenTelemetry.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithIngestWait bounds how long Analyze waits for an ingestion started by
// someone else to finish.
func WithIngestWait(d time.Duration) Option {
	return func(c *Client) { c.ingestWait = d }
}

// WithPollInterval sets the initial interval between ingestion status polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// New creates a client for the service at endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(endpoint, "/"))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, triage.Errorf(triage.KindConfiguration, "invalid backend URL %q", endpoint)
	}

	c := &Client{
		baseURL:      u,
		http:         &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		ingestWait:   10 * time.Minute,
		pollInterval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Analyze ensures the repository is ingested, submits the issue and returns
// the candidate outcomes in generation order.
func (c *Client) Analyze(ctx context.Context, req triage.AnalysisRequest) ([]triage.CandidateOutcome, error) {
	if req.Issue == nil {
		return nil, triage.Errorf(triage.KindConfiguration, "analysis request has no issue")
	}
	log := clog.FromContext(ctx).With("repo", req.Repo.String(), "issue", req.Issue.Number)

	if err := c.EnsureIngested(ctx, req.Repo); err != nil {
		return nil, err
	}

	log.With("candidates", req.CandidateCount, "run_build", req.RunBuild, "run_test", req.RunTest).
		Info("Sending issue for analysis")

	var env envelope
	if err := c.call(ctx, http.MethodPost, "/issue/answer/", nil, newAnswerRequest(req), &env); err != nil {
		return nil, err
	}
	if !env.ok() {
		return nil, triage.Errorf(triage.KindAnalysisFailed, "analysis failed (code %d): %s", env.Code, env.Message)
	}

	wire, err := decodeOutcomes(env.Data)
	if err != nil {
		return nil, triage.Errorf(triage.KindAnalysisFailed, "malformed analysis response: %w", err)
	}

	outcomes := make([]triage.CandidateOutcome, 0, len(wire))
	for _, w := range wire {
		outcomes = append(outcomes, w.toOutcome(req.RunBuild, req.RunTest))
	}
	log.With("returned", len(outcomes)).Info("Analysis completed")
	return outcomes, nil
}

// Delete removes the repository's ingested state from the service.
func (c *Client) Delete(ctx context.Context, repo triage.Repo) error {
	var env envelope
	if err := c.call(ctx, http.MethodDelete, "/repository/delete/", repoQuery(repo), nil, &env); err != nil {
		return err
	}
	if !env.ok() {
		return triage.Errorf(triage.KindAnalysisFailed, "delete %s: %s", repo, env.Message)
	}
	return nil
}

// Health checks that the service reports itself healthy.
func (c *Client) Health(ctx context.Context) error {
	var health struct {
		Status string `json:"status"`
	}
	if err := c.call(ctx, http.MethodGet, "/health", nil, nil, &health); err != nil {
		return err
	}
	if health.Status != "healthy" {
		return triage.Errorf(triage.KindBackendUnavailable, "backend reports status %q", health.Status)
	}
	return nil
}

func repoQuery(repo triage.Repo) url.Values {
	return url.Values{"https_url": {repo.CloneURL()}}
}

// call sends a request and decodes a 2xx JSON response into out.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, in, out any) error {
	status, body, err := c.send(ctx, method, path, query, in)
	if err != nil {
		return err
	}
	if status/100 != 2 {
		return statusError(method+" "+path, status, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return triage.Errorf(triage.KindAnalysisFailed, "decode %s %s response: %w", method, path, err)
	}
	return nil
}

// send performs the round trip. Only transport failures are returned as
// errors; status handling is left to the caller.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, in any) (int, []byte, error) {
	u := c.baseURL.JoinPath(path)
	// JoinPath drops the trailing slash the service routes on.
	if strings.HasSuffix(path, "/") && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, transportError(method+" "+path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, transportError("read "+method+" "+path, err)
	}
	return resp.StatusCode, b, nil
}

func transportError(op string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return triage.Errorf(triage.KindTimeout, "%s: %w", op, err)
	case errors.Is(err, context.Canceled):
		return triage.Errorf(triage.KindCanceled, "%s: %w", op, err)
	default:
		return triage.Errorf(triage.KindBackendUnavailable, "%s: %w", op, err)
	}
}

func statusError(op string, status int, body []byte) error {
	msg := serviceMessage(body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return triage.Errorf(triage.KindAuth, "%s: backend rejected credentials (%d): %s", op, status, msg)
	case status == http.StatusTooManyRequests || status >= 500:
		return triage.Errorf(triage.KindBackendUnavailable, "%s: backend returned %d: %s", op, status, msg)
	default:
		return triage.Errorf(triage.KindAnalysisFailed, "%s: backend returned %d: %s", op, status, msg)
	}
}

// serviceMessage extracts a human-readable message from an error body: the
// envelope message, a FastAPI "detail", or the raw text.
func serviceMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Detail  any    `json:"detail"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch {
		case parsed.Message != "":
			return parsed.Message
		case parsed.Detail != nil:
			return fmt.Sprint(parsed.Detail)
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512] + "..."
	}
	return msg
}
