// Package services defines the business logic for waitlist intake. This file
// centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; the
// handler layer translates them into user-facing messages and HTTP status
// codes. Internal detail (counter values, webhook reply bodies) stays out of
// the error text that reaches the caller.
package services

import "errors"

var (
	// ErrRateLimited is returned when either the email-scoped or the
	// IP-scoped submission threshold is exceeded inside the rolling window.
	ErrRateLimited = errors.New("submission rate limit exceeded")

	// ErrRetryExhausted is returned when a pending record under the same
	// idempotency key has already consumed its dispatch budget. The caller
	// must wait for the key bucket to roll over.
	ErrRetryExhausted = errors.New("retry budget exhausted for this submission")

	// ErrInFlight is returned when a concurrent request holding the same
	// idempotency key claimed the dispatch first and has not reached a
	// terminal state yet.
	ErrInFlight = errors.New("submission already in progress")
)
