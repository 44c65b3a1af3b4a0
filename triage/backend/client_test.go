/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"chainguard.dev/issuedebug/triage"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// fakeService mimics the analysis service's HTTP API.
type fakeService struct {
	mu sync.Mutex

	// existsAnswers is consumed one per exists call; the last one repeats.
	existsAnswers []string
	ingestStatus  int
	answerStatus  int
	answerBody    string

	ingestCalls int
	answers     []answerRequest
	authHeaders []string
}

func (f *fakeService) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repository/exists/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if got := r.URL.Query().Get("https_url"); got != "https://github.com/octo/demo.git" {
			t.Errorf("https_url = %q", got)
		}
		answer := f.existsAnswers[0]
		if len(f.existsAnswers) > 1 {
			f.existsAnswers = f.existsAnswers[1:]
		}
		fmt.Fprint(w, answer)
	})
	mux.HandleFunc("GET /repository/github/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.ingestCalls++
		w.WriteHeader(f.ingestStatus)
		fmt.Fprint(w, `{"code":200,"message":"success","data":null}`)
	})
	mux.HandleFunc("POST /issue/answer/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		var req answerRequest
		if err := json.Unmarshal(b, &req); err != nil {
			t.Errorf("decode answer request: %v", err)
		}
		f.answers = append(f.answers, req)
		w.WriteHeader(f.answerStatus)
		fmt.Fprint(w, f.answerBody)
	})
	mux.HandleFunc("DELETE /repository/delete/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":200,"message":"success","data":null}`)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"healthy","timestamp":"2026-10-18T00:00:00Z"}`)
	})
	return mux
}

func (f *fakeService) recorded() ([]answerRequest, []string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]answerRequest(nil), f.answers...), append([]string(nil), f.authHeaders...), f.ingestCalls
}

func newFake() *fakeService {
	return &fakeService{
		existsAnswers: []string{`{"code":200,"message":"success","data":true}`},
		ingestStatus:  http.StatusOK,
		answerStatus:  http.StatusOK,
	}
}

func start(t *testing.T, f *fakeService, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func testRequest() triage.AnalysisRequest {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return triage.AnalysisRequest{
		Repo: triage.Repo{Owner: "octo", Name: "demo"},
		Issue: &triage.IssueContext{
			Repo:   triage.Repo{Owner: "octo", Name: "demo"},
			Number: 7,
			Title:  "panic on empty config",
			Body:   "Steps to reproduce",
			Comments: []triage.Comment{
				{Author: "bob", Body: "second", CreatedAt: t0.Add(time.Hour)},
				{Author: "alice", Body: "first", CreatedAt: t0},
			},
			State: triage.IssueOpen,
		},
		Environment:    triage.ExecutionEnvironmentSpec{Image: "golang:1.25", Workdir: "/app", TestCommands: []string{"go test ./..."}},
		CandidateCount: 1,
	}
}

func TestAnalyzeShapesRequestAndNormalizesOutcome(t *testing.T) {
	f := newFake()
	f.answerBody = `{"code":200,"message":"success","data":{
		"patch":"diff --git a/main.go b/main.go",
		"passed_reproducing_test":true,
		"passed_build":false,
		"passed_existing_test":false,
		"issue_response":"Fixed the nil map.",
		"remote_branch_name":"prometheus/fix-7"}}`
	c := start(t, f, WithToken("backend-secret"))

	got, err := c.Analyze(context.Background(), testRequest())
	require.NoError(t, err)

	want := []triage.CandidateOutcome{{
		Patch:                 "diff --git a/main.go b/main.go",
		PassedReproducingTest: true,
		IssueResponse:         "Fixed the nil map.",
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Analyze() mismatch (-want +got):\n%s", diff)
	}

	answers, auth, ingests := f.recorded()
	require.Len(t, answers, 1)
	wantReq := answerRequest{
		RepositoryURL:          "https://github.com/octo/demo.git",
		IssueNumber:            7,
		IssueTitle:             "panic on empty config",
		IssueBody:              "Steps to reproduce",
		IssueComments:          []wireComment{{Username: "alice", Comment: "first"}, {Username: "bob", Comment: "second"}},
		IssueType:              "bug",
		NumberOfCandidatePatch: 1,
		ImageName:              "golang:1.25",
		Workdir:                "/app",
		TestCommands:           []string{"go test ./..."},
	}
	if diff := cmp.Diff(wantReq, answers[0]); diff != "" {
		t.Errorf("answer request mismatch (-want +got):\n%s", diff)
	}
	if auth[0] != "Bearer backend-secret" {
		t.Errorf("Authorization = %q", auth[0])
	}
	if ingests != 0 {
		t.Errorf("ingest calls = %d, want 0 for an already ingested repository", ingests)
	}
}

func TestAnalyzeKeepsRequestedValidation(t *testing.T) {
	f := newFake()
	f.answerBody = `{"code":200,"data":[
		{"patch":"p1","passed_reproducing_test":false,"passed_build":true,"passed_existing_test":null},
		{"patch":"p2","passed_reproducing_test":true,"passed_build":true,"passed_existing_test":true}]}`
	c := start(t, f)

	req := testRequest()
	req.RunBuild, req.RunTest = true, true
	req.CandidateCount = 2

	got, err := c.Analyze(context.Background(), req)
	require.NoError(t, err)

	want := []triage.CandidateOutcome{
		{Patch: "p1", PassedBuild: triage.Ptr(true)},
		{Patch: "p2", PassedReproducingTest: true, PassedBuild: triage.Ptr(true), PassedExistingTest: triage.Ptr(true)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Analyze() mismatch (-want +got):\n%s", diff)
	}
	answers, _, _ := f.recorded()
	if a := answers[0]; !a.RunBuild || !a.RunExistingTest || a.NumberOfCandidatePatch != 2 {
		t.Errorf("validation flags not forwarded: %+v", a)
	}
}

func TestAnalyzeWrappedCandidatesAndEmpty(t *testing.T) {
	f := newFake()
	f.answerBody = `{"code":200,"data":{"candidates":[{"patch":"a"},{"patch":"b"}]}}`
	c := start(t, f)

	got, err := c.Analyze(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].Patch)
	require.Equal(t, "b", got[1].Patch)

	f.mu.Lock()
	f.answerBody = `{"code":200,"data":{"candidates":[]}}`
	f.mu.Unlock()
	got, err = c.Analyze(context.Background(), testRequest())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestAnalyzeIngestsMissingRepository(t *testing.T) {
	f := newFake()
	f.existsAnswers = []string{"false"}
	f.answerBody = `{"data":{"patch":"p","passed_reproducing_test":true}}`
	c := start(t, f)

	_, err := c.Analyze(context.Background(), testRequest())
	require.NoError(t, err)
	_, _, ingests := f.recorded()
	require.Equal(t, 1, ingests)
}

func TestAnalyzeWaitsForConcurrentIngestion(t *testing.T) {
	f := newFake()
	f.existsAnswers = []string{
		`{"data":false}`, // before ingest
		`{"data":false}`, // still running
		`{"data":true}`,
	}
	f.ingestStatus = http.StatusConflict
	f.answerBody = `{"data":{"patch":"p","passed_reproducing_test":true}}`
	c := start(t, f, WithPollInterval(time.Millisecond), WithIngestWait(5*time.Second))

	got, err := c.Analyze(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, got, 1)
	answers, _, _ := f.recorded()
	require.Len(t, answers, 1)
}

func TestAnalyzeGivesUpOnStuckIngestion(t *testing.T) {
	f := newFake()
	f.existsAnswers = []string{`{"data":false}`}
	f.ingestStatus = http.StatusAccepted
	c := start(t, f, WithPollInterval(time.Millisecond), WithIngestWait(30*time.Millisecond))

	_, err := c.Analyze(context.Background(), testRequest())
	if !errors.Is(err, triage.ErrBackendUnavailable) {
		t.Fatalf("Analyze() = %v, want BackendUnavailableError", err)
	}
	if answers, _, _ := f.recorded(); len(answers) != 0 {
		t.Error("issue was submitted before ingestion finished")
	}
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind triage.Kind
		wantMsg  string
	}{{
		name:     "failure envelope",
		status:   http.StatusOK,
		body:     `{"code":500,"message":"LLM quota exceeded","data":null}`,
		wantKind: triage.KindAnalysisFailed,
		wantMsg:  "analysis failed (code 500): LLM quota exceeded",
	}, {
		name:     "server error",
		status:   http.StatusBadGateway,
		body:     `bad gateway`,
		wantKind: triage.KindBackendUnavailable,
	}, {
		name:     "unauthorized",
		status:   http.StatusUnauthorized,
		body:     `{"detail":"Not authenticated"}`,
		wantKind: triage.KindAuth,
	}, {
		name:     "validation error",
		status:   http.StatusUnprocessableEntity,
		body:     `{"detail":"issue_title required"}`,
		wantKind: triage.KindAnalysisFailed,
	}, {
		name:     "garbage payload",
		status:   http.StatusOK,
		body:     `{"code":200,"data":"oops"}`,
		wantKind: triage.KindAnalysisFailed,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFake()
			f.answerStatus = tt.status
			f.answerBody = tt.body
			c := start(t, f)

			_, err := c.Analyze(context.Background(), testRequest())
			if got := triage.KindOf(err); got != tt.wantKind {
				t.Fatalf("KindOf(Analyze()) = %q (%v), want %q", got, err, tt.wantKind)
			}
			if tt.wantMsg != "" {
				if got := triage.ErrorInfoFrom(err).Message; got != tt.wantMsg {
					t.Errorf("message = %q, want %q", got, tt.wantMsg)
				}
			}
		})
	}
}

func TestAnalyzeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url)
	require.NoError(t, err)

	_, err = c.Analyze(context.Background(), testRequest())
	if !errors.Is(err, triage.ErrBackendUnavailable) {
		t.Fatalf("Analyze() = %v, want BackendUnavailableError", err)
	}
}

func TestAnalyzeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Analyze(ctx, testRequest())
	if !errors.Is(err, triage.ErrTimeout) {
		t.Fatalf("Analyze() = %v, want TimeoutError", err)
	}
}

func TestAnalyzeCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	_, err = c.Analyze(ctx, testRequest())
	if !errors.Is(err, triage.ErrCanceled) {
		t.Fatalf("Analyze() = %v, want CanceledError", err)
	}
}

func TestDeleteAndHealth(t *testing.T) {
	c := start(t, newFake())

	require.NoError(t, c.Delete(context.Background(), triage.Repo{Owner: "octo", Name: "demo"}))
	require.NoError(t, c.Health(context.Background()))
}

func TestNewRejectsBadEndpoint(t *testing.T) {
	for _, endpoint := range []string{"", "localhost:9002", "ftp://example.com"} {
		if _, err := New(endpoint); !errors.Is(err, triage.ErrConfiguration) {
			t.Errorf("New(%q) = %v, want ConfigurationError", endpoint, err)
		}
	}
}
