/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package retry_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"chainguard.dev/issuedebug/triage/retry"
)

func testConfig() retry.Config {
	return retry.Config{
		MaxAttempts: 2,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  10 * time.Millisecond,
		MaxJitter:   time.Millisecond,
	}
}

func alwaysRetryable(err error) bool { return err != nil }

func TestDo_Success(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	got, err := retry.Do(context.Background(), testConfig(), "test_op", alwaysRetryable, func(context.Context) (string, error) {
		attempts.Add(1)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Fatalf("expected %q, got %q", "ok", got)
	}
	if n := attempts.Load(); n != 1 {
		t.Fatalf("expected 1 attempt, got %d", n)
	}
}

func TestDo_RecoversOnSecondAttempt(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	got, err := retry.Do(context.Background(), testConfig(), "test_op", alwaysRetryable, func(context.Context) (int, error) {
		if attempts.Add(1) == 1 {
			return 0, errors.New("502 bad gateway")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if n := attempts.Load(); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
}

func TestDo_AtMostMaxAttempts(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	wantErr := errors.New("connection reset by peer")
	_, err := retry.Do(context.Background(), testConfig(), "test_op", alwaysRetryable, func(context.Context) (int, error) {
		attempts.Add(1)
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected last error to be returned unchanged, got %v", err)
	}
	if n := attempts.Load(); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
}

func TestDo_NonRetryable(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	permanent := errors.New("401 bad credentials")
	_, err := retry.Do(context.Background(), testConfig(), "test_op", func(error) bool { return false }, func(context.Context) (int, error) {
		attempts.Add(1)
		return 0, permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected %v, got %v", permanent, err)
	}
	if n := attempts.Load(); n != 1 {
		t.Fatalf("expected 1 attempt, got %d", n)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.BaseBackoff = time.Hour
	cfg.MaxBackoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	_, err := retry.Do(ctx, cfg, "test_op", alwaysRetryable, func(context.Context) (int, error) {
		cancel()
		return 0, errors.New("503")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	if err := retry.Transient().Validate(); err != nil {
		t.Errorf("Transient().Validate() = %v", err)
	}
	if retry.Transient().MaxAttempts != 2 {
		t.Errorf("Transient().MaxAttempts = %d, want 2", retry.Transient().MaxAttempts)
	}
	for _, cfg := range []retry.Config{
		{MaxAttempts: 0},
		{MaxAttempts: 1, BaseBackoff: -1},
		{MaxAttempts: 1, MaxBackoff: -1},
		{MaxAttempts: 1, MaxJitter: -1},
	} {
		if err := cfg.Validate(); err == nil {
			t.Errorf("Validate(%+v) = nil, want error", cfg)
		}
	}
}
