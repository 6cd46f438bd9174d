// Package domain defines the persistence model for waitlist submissions and
// the idempotency key derivation. These types are mapped with GORM and are
// shared across the repository and service layers.
package domain

import "time"

// SubmissionStatus is the delivery lifecycle state of a submission attempt.
type SubmissionStatus string

// Lifecycle: a record is created as StatusPending when a new idempotency key
// is first claimed, moves to StatusSent on confirmed webhook delivery
// (terminal, never re-dispatched), or to StatusFailed once the retry budget
// is exhausted. Failed is not terminal for the email: a later request with a
// different key may still succeed.
const (
	StatusPending SubmissionStatus = "pending"
	StatusSent    SubmissionStatus = "sent"
	StatusFailed  SubmissionStatus = "failed"
)

// Submission is a persisted record of one logical waitlist signup attempt,
// keyed by its idempotency key. It is written exclusively by the intake
// service and read by the rate limiter and the idempotency lookup.
//
// Fields:
//   - IdempotencyKey: hex SHA-256 digest, unique; the atomic claim on this
//     column is what prevents two concurrent duplicates from both dispatching.
//   - Email: normalized (lowercased, trimmed) address; indexed together with
//     CreatedAt so the rolling-window count stays an index scan.
//   - Payload: JSON snapshot of the normalized submission as sent downstream.
//   - Status / AttemptCount: delivery bookkeeping; AttemptCount increments
//     before every dispatch attempt (write-before-send).
type Submission struct {
	ID             string           `json:"id"              gorm:"type:char(36);primaryKey"`
	IdempotencyKey string           `json:"-"               gorm:"type:char(64);not null;uniqueIndex:ux_submission_key"`
	Email          string           `json:"email"           gorm:"type:varchar(255);not null;index:idx_email_created,priority:1"`
	Payload        string           `json:"-"               gorm:"type:text;not null"`
	Status         SubmissionStatus `json:"status"          gorm:"type:varchar(16);not null;check:status IN ('pending','sent','failed')"`
	AttemptCount   int              `json:"attempt_count"   gorm:"not null;default:0"`
	CreatedAt      time.Time        `json:"created_at"      gorm:"index:idx_email_created,priority:2"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// TableName returns the database table name for Submission.
func (Submission) TableName() string { return "submissions" }
