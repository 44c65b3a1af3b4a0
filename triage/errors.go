/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package triage

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindAuth               Kind = "AuthError"
	KindNotFound           Kind = "NotFoundError"
	KindRateLimited        Kind = "RateLimitedError"
	KindBackendUnavailable Kind = "BackendUnavailableError"
	KindAnalysisFailed     Kind = "AnalysisFailedError"
	KindEmptyResult        Kind = "EmptyResultError"
	KindTimeout            Kind = "TimeoutError"
	KindConfiguration      Kind = "ConfigurationError"
	KindPublish            Kind = "PublishError"

	// KindCanceled tags runs interrupted by their caller.
	KindCanceled Kind = "CanceledError"

	// KindInternal tags failures outside the taxonomy above.
	KindInternal Kind = "InternalError"
)

// Sentinels for use with errors.Is.
var (
	ErrAuth               = &Error{Kind: KindAuth}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrRateLimited        = &Error{Kind: KindRateLimited}
	ErrBackendUnavailable = &Error{Kind: KindBackendUnavailable}
	ErrAnalysisFailed     = &Error{Kind: KindAnalysisFailed}
	ErrEmptyResult        = &Error{Kind: KindEmptyResult}
	ErrTimeout            = &Error{Kind: KindTimeout}
	ErrConfiguration      = &Error{Kind: KindConfiguration}
	ErrPublish            = &Error{Kind: KindPublish}
	ErrCanceled           = &Error{Kind: KindCanceled}
)

// Error is a classified pipeline failure. Message is meant for humans and
// Err, when set, is the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Errorf returns a new *Error of the given kind with a formatted message.
// A %w verb in format also records the wrapped error as the cause.
func Errorf(kind Kind, format string, args ...any) *Error {
	wrapped := fmt.Errorf(format, args...)
	return &Error{
		Kind:    kind,
		Message: wrapped.Error(),
		Err:     errors.Unwrap(wrapped),
	}
}

// Wrap tags err with kind. A nil err returns nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind. Sentinels carry
// no message, so errors.Is(err, ErrNotFound) matches any not-found failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// KindOf classifies err. The outermost *Error wins. A bare context deadline
// is a timeout and a bare cancellation is CanceledError. Everything else is
// internal.
func KindOf(err error) Kind {
	var te *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &te):
		return te.Kind
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindInternal
	}
}

// IsTransient reports whether err is worth retrying at the stage that
// produced it. Auth, not-found and rate-limit failures never are.
func IsTransient(err error) bool {
	return KindOf(err) == KindBackendUnavailable
}

// ErrorInfo is the machine-readable error carried by a failed PipelineResult.
type ErrorInfo struct {
	Kind    Kind   `json:"kind" jsonschema:"required,enum=AuthError,enum=NotFoundError,enum=RateLimitedError,enum=BackendUnavailableError,enum=AnalysisFailedError,enum=EmptyResultError,enum=TimeoutError,enum=ConfigurationError,enum=PublishError,enum=CanceledError,enum=InternalError"`
	Message string `json:"message" jsonschema:"required"`
}

// ErrorInfoFrom converts err into its reportable form.
func ErrorInfoFrom(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	info := &ErrorInfo{Kind: KindOf(err), Message: err.Error()}
	var te *Error
	if errors.As(err, &te) && te.Message != "" {
		info.Message = te.Message
	}
	return info
}
