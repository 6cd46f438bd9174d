// Package handlers defines HTTP-layer error codes used across the API.
//
// Codes are lowercase, snake_case, and stable: clients branch on them for
// programmatic error handling while `message` stays free to change. Every
// error response includes both an HTTP status and one of these codes.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodePayloadTooLarge  = "payload_too_large"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeUnavailable      = "service_unavailable"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeValidation   = "validation_failed"
	ErrCodeDispatchFail = "submission_failed"
)
