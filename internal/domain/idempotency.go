// Package domain defines the core model for the intake service. This file
// implements idempotency key derivation for submissions.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// IdempotencyKey derives the stable key that collapses retried or duplicate
// submissions into one logical attempt. It is a pure function of the
// normalized email and the request time truncated to granularity:
//
//	hex(sha256(email + ":" + rfc3339Bucket))
//
// Two requests from the same email inside the same bucket share a key and are
// treated as the same submission; requests in different buckets are
// independent even when every visible field matches.
func IdempotencyKey(email string, at time.Time, granularity time.Duration) string {
	if granularity <= 0 {
		granularity = time.Minute
	}
	bucket := at.UTC().Truncate(granularity)
	sum := sha256.Sum256([]byte(NormalizeEmail(email) + ":" + bucket.Format(time.RFC3339)))
	return hex.EncodeToString(sum[:])
}

// NormalizeEmail lowercases and trims an address so rate-limit counts and
// idempotency keys are insensitive to casing and stray whitespace.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
