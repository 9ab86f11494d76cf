package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/khill1269/servalsheets-sub001/internal/txn"
)

// requestPayload is the canonical description of a request. The
// transaction id is excluded so it identifies the request, not the attempt.
type requestPayload struct {
	Kind    string         `json:"kind"`
	Target  any            `json:"target"`
	Action  map[string]any `json:"action"`
	Options SafetyOptions  `json:"options"`
}

// RequestFingerprint hashes action and opts into the value stored with a
// transaction. Two requests with the same fingerprint are the same request.
func RequestFingerprint(action MutationAction, opts SafetyOptions) (string, error) {
	opts.TransactionID = ""
	fp, err := txn.RequestFingerprint(requestPayload{
		Kind:    action.Kind(),
		Target:  action.Target(),
		Action:  action.Descriptor(),
		Options: opts,
	})
	if err != nil {
		return "", fmt.Errorf("request fingerprint: %w", err)
	}
	return fp, nil
}

// decodeReport rebuilds a cached report for replay.
func decodeReport(data []byte) (*MutationReport, error) {
	var r MutationReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode cached report: %w", err)
	}
	return &r, nil
}

// transactionError maps a coordinator decision that blocks execution to an
// engine error. It returns nil for Fresh and Replay.
func transactionError(id string, d txn.Decision) *EngineError {
	switch d.Outcome {
	case txn.Conflict:
		if d.InFlight {
			return newError(KindTransactionConflict, "transaction %s is in flight", id)
		}
		return newError(KindReplayFailed, "transaction %s was committed for a different request", id)
	case txn.Expired:
		e := newError(KindTransactionExpired, "transaction %s has expired", id)
		if d.Existing != nil {
			e.Details = map[string]any{"expiredAt": d.Existing.ExpiresAt}
		}
		return e
	}
	return nil
}

// registryError maps a transaction registry failure to an engine error.
func registryError(op string, err error) *EngineError {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return cancelled(err)
	case errors.Is(err, txn.ErrReportCorrupt):
		e := newError(KindReplayFailed, "%s: cached report does not match its hash", op)
		e.Err = err
		return e
	}
	e := newError(KindTransportUnavailable, "%s: registry unavailable", op)
	e.Retryable, e.RetryStrategy, e.Err = true, RetryExponentialBackoff, err
	return e
}
