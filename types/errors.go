package types

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a source failure.
type ErrorKind string

const (
	ErrRateLimited  ErrorKind = "RATE_LIMITED"
	ErrTimeout      ErrorKind = "TIMEOUT"
	ErrUnreachable  ErrorKind = "UNREACHABLE"
	ErrParse        ErrorKind = "PARSE_ERROR"
	ErrAuthRequired ErrorKind = "AUTH_REQUIRED"
)

// SourceError is the typed failure a source client reports. It is contained
// at the per-source boundary and never aborts the whole run.
type SourceError struct {
	Kind       ErrorKind
	RetryAfter time.Duration
	Detail     string
	Err        error
}

func (e *SourceError) Error() string {
	msg := string(e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Kind == ErrRateLimited && e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

func NewRateLimited(retryAfter time.Duration) *SourceError {
	return &SourceError{Kind: ErrRateLimited, RetryAfter: retryAfter}
}

func NewTimeout(err error) *SourceError {
	return &SourceError{Kind: ErrTimeout, Err: err}
}

func NewUnreachable(err error) *SourceError {
	return &SourceError{Kind: ErrUnreachable, Err: err}
}

func NewParseError(detail string, err error) *SourceError {
	return &SourceError{Kind: ErrParse, Detail: detail, Err: err}
}

func NewAuthRequired(detail string) *SourceError {
	return &SourceError{Kind: ErrAuthRequired, Detail: detail}
}

// AsSourceError coerces an arbitrary client error into a SourceError.
// Context expiry maps to TIMEOUT, anything unclassified to UNREACHABLE.
func AsSourceError(err error) *SourceError {
	if err == nil {
		return nil
	}
	var srcErr *SourceError
	if errors.As(err, &srcErr) {
		return srcErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewTimeout(err)
	}
	return NewUnreachable(err)
}
