/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package triage

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{{
		name: "nil",
		err:  nil,
		want: "",
	}, {
		name: "classified",
		err:  Errorf(KindNotFound, "issue %d not found", 7),
		want: KindNotFound,
	}, {
		name: "wrapped classified",
		err:  fmt.Errorf("fetch issue: %w", Errorf(KindRateLimited, "quota exhausted")),
		want: KindRateLimited,
	}, {
		name: "bare deadline",
		err:  fmt.Errorf("waiting: %w", context.DeadlineExceeded),
		want: KindTimeout,
	}, {
		name: "classified deadline keeps its kind",
		err:  Wrap(KindBackendUnavailable, context.DeadlineExceeded),
		want: KindBackendUnavailable,
	}, {
		name: "bare cancellation",
		err:  fmt.Errorf("fetch issue: %w", context.Canceled),
		want: KindCanceled,
	}, {
		name: "unclassified",
		err:  errors.New("boom"),
		want: KindInternal,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorIsSentinel(t *testing.T) {
	err := fmt.Errorf("fetch: %w", Errorf(KindAuth, "bad credentials"))

	if !errors.Is(err, ErrAuth) {
		t.Error("errors.Is(err, ErrAuth) = false, want true")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("errors.Is(err, ErrNotFound) = true, want false")
	}
}

func TestErrorfUnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := Errorf(KindBackendUnavailable, "calling backend: %w", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	if got, want := err.Error(), "BackendUnavailableError: calling backend: connection reset by peer"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorInfoFrom(t *testing.T) {
	if got := ErrorInfoFrom(nil); got != nil {
		t.Errorf("ErrorInfoFrom(nil) = %v, want nil", got)
	}

	info := ErrorInfoFrom(fmt.Errorf("stage: %w", Errorf(KindEmptyResult, "backend returned no candidates")))
	if info.Kind != KindEmptyResult {
		t.Errorf("Kind = %q, want %q", info.Kind, KindEmptyResult)
	}
	if info.Message != "backend returned no candidates" {
		t.Errorf("Message = %q, want %q", info.Message, "backend returned no candidates")
	}

	info = ErrorInfoFrom(errors.New("unexpected"))
	if info.Kind != KindInternal || info.Message != "unexpected" {
		t.Errorf("ErrorInfoFrom(unclassified) = %+v, want InternalError/unexpected", info)
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(Errorf(KindBackendUnavailable, "502")) {
		t.Error("IsTransient(BackendUnavailable) = false, want true")
	}
	for _, kind := range []Kind{KindAuth, KindNotFound, KindRateLimited, KindTimeout} {
		if IsTransient(Errorf(kind, "x")) {
			t.Errorf("IsTransient(%s) = true, want false", kind)
		}
	}
}
