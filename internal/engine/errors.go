package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/khill1269/servalsheets-sub001/internal/docstore"
)

// Kind categorizes engine errors. Kinds are stable strings; callers and
// the MCP surface switch on them.
type Kind string

const (
	// KindVersionMismatch indicates the observed content differs from the
	// caller's expected fingerprint.
	KindVersionMismatch Kind = "VERSION_MISMATCH"

	// KindPreconditionFailed indicates a structural mismatch (title or
	// checksum range) or a missing document or sheet.
	KindPreconditionFailed Kind = "PRECONDITION_FAILED"

	KindEffectScopeExceeded   Kind = "EFFECT_SCOPE_EXCEEDED"
	KindExplicitRangeRequired Kind = "EXPLICIT_RANGE_REQUIRED"
	KindAmbiguousRange        Kind = "AMBIGUOUS_RANGE"

	// KindTransactionConflict indicates the transaction id is in flight.
	KindTransactionConflict Kind = "TRANSACTION_CONFLICT"

	// KindTransactionExpired indicates the transaction id outlived its TTL.
	KindTransactionExpired Kind = "TRANSACTION_EXPIRED"

	// KindReplayFailed indicates the transaction id was committed for a
	// different request, or its cached report is unusable.
	KindReplayFailed Kind = "REPLAY_FAILED"

	KindSnapshotCreateFailed  Kind = "SNAPSHOT_CREATE_FAILED"
	KindSnapshotRestoreFailed Kind = "SNAPSHOT_RESTORE_FAILED"
	KindSnapshotNotFound      Kind = "SNAPSHOT_NOT_FOUND"

	// Transport kinds classify failures of the remote store.
	KindTransportUnavailable Kind = "TRANSPORT_UNAVAILABLE"
	KindRateLimited          Kind = "RATE_LIMITED"
	KindAuthFailed           Kind = "AUTH_FAILED"
	KindTransportError       Kind = "TRANSPORT_ERROR"

	KindCancelled Kind = "CANCELLED"
)

// RetryStrategy tells the caller how to retry. The engine itself never
// retries.
type RetryStrategy string

const (
	RetryNone               RetryStrategy = "none"
	RetryExponentialBackoff RetryStrategy = "exponential_backoff"
	RetryWaitForReset       RetryStrategy = "wait_for_reset"
	RetryManual             RetryStrategy = "manual"
)

// EngineError is the single error type returned by Guard. Optional fields
// are set depending on Kind: Field/Expected/Observed for precondition
// errors, Limit/Predicted/Allowed for scope errors.
type EngineError struct {
	Kind          Kind           `json:"code"`
	Message       string         `json:"message"`
	Retryable     bool           `json:"retryable"`
	RetryStrategy RetryStrategy  `json:"retryStrategy"`
	Field         string         `json:"field,omitempty"`
	Expected      any            `json:"expected,omitempty"`
	Observed      any            `json:"observed,omitempty"`
	Limit         string         `json:"limit,omitempty"`
	Predicted     int            `json:"predicted,omitempty"`
	Allowed       int            `json:"allowed,omitempty"`
	Details       map[string]any `json:"details,omitempty"`

	// Err is the underlying cause, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or "" if err is not an EngineError.
// Uses errors.As to handle wrapped errors.
func KindOf(err error) Kind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}

// IsKind reports whether err is an EngineError of kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

func newError(kind Kind, format string, args ...any) *EngineError {
	return &EngineError{
		Kind:          kind,
		Message:       fmt.Sprintf(format, args...),
		RetryStrategy: RetryNone,
	}
}

// cancelled wraps a context error.
func cancelled(err error) *EngineError {
	e := newError(KindCancelled, "request cancelled")
	e.Err = err
	return e
}

// classifyStoreError maps a docstore failure to an engine error. op names
// the stage for the message.
func classifyStoreError(op string, err error) *EngineError {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return cancelled(err)
	}
	if errors.Is(err, docstore.ErrNotFound) {
		e := newError(KindPreconditionFailed, "%s: document or sheet not found", op)
		e.Err = err
		return e
	}

	var se *docstore.StatusError
	if !errors.As(err, &se) {
		// No status means the request never completed (network, DNS, TLS).
		e := newError(KindTransportUnavailable, "%s: store unreachable", op)
		e.Retryable, e.RetryStrategy, e.Err = true, RetryExponentialBackoff, err
		return e
	}

	var e *EngineError
	switch {
	case se.Code == http.StatusTooManyRequests:
		e = newError(KindRateLimited, "%s: rate limited", op)
		e.Retryable, e.RetryStrategy = true, RetryWaitForReset
		if se.RetryAfter > 0 {
			e.Details = map[string]any{"retryAfterMs": se.RetryAfter.Milliseconds()}
		}
	case se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden:
		e = newError(KindAuthFailed, "%s: %s", op, statusText(se))
		e.RetryStrategy = RetryManual
	case se.Code == http.StatusRequestTimeout || se.Code >= 500:
		e = newError(KindTransportUnavailable, "%s: %s", op, statusText(se))
		e.Retryable, e.RetryStrategy = true, RetryExponentialBackoff
	default:
		e = newError(KindTransportError, "%s: %s", op, statusText(se))
	}
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details["status"] = se.Code
	e.Err = err
	return e
}

func statusText(se *docstore.StatusError) string {
	if se.Message != "" {
		return se.Message
	}
	return http.StatusText(se.Code)
}
