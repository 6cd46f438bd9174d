// Package repo implements the data persistence layer for the submission
// store. This file provides the repository helpers used by the idempotency
// lookup, the email rate limiter, and delivery bookkeeping.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-waitlist-backend/internal/domain"
)

// ErrNotFound indicates that no submission exists under the given key.
var ErrNotFound = errors.New("submission not found")

// ErrDuplicate indicates that a submission record already exists for the
// given idempotency key. Callers racing on the same key use this to detect
// that another request claimed the dispatch first.
var ErrDuplicate = errors.New("duplicate submission key")

// ErrClaimLost indicates a reclaim lost the compare-and-swap: the record
// changed since the caller read it, so a concurrent duplicate owns it now.
var ErrClaimLost = errors.New("submission claim lost")

// GetSubmission returns the record for an idempotency key, or ErrNotFound.
func GetSubmission(ctx context.Context, db *gorm.DB, key string) (*domain.Submission, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Submission
	err := db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ClaimSubmission inserts a pending record for key stamped at now and
// returns ErrDuplicate on a unique violation. The insert is the atomic claim
// that serializes concurrent requests carrying the same key: exactly one
// caller wins and proceeds to dispatch.
func ClaimSubmission(ctx context.Context, db *gorm.DB, key, email, payload string, now time.Time) (*domain.Submission, error) {
	now = now.UTC()
	rec := &domain.Submission{
		ID:             uuid.NewString(),
		IdempotencyKey: key,
		Email:          domain.NormalizeEmail(email),
		Payload:        payload,
		Status:         domain.StatusPending,
		AttemptCount:   0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// ReclaimSubmission takes over an existing record for re-dispatch. The update
// flips the record back to pending only while its (status, updated_at) pair
// still matches what the caller read, so of any duplicates racing on the same
// key exactly one wins the compare-and-swap; losers get ErrClaimLost. A sent
// record is terminal and never reclaimable.
func ReclaimSubmission(ctx context.Context, db *gorm.DB, key string, seenStatus domain.SubmissionStatus, seenUpdatedAt time.Time) error {
	if seenStatus == domain.StatusSent {
		return ErrClaimLost
	}
	tx := db.WithContext(ctx).
		Model(&domain.Submission{}).
		Where("idempotency_key = ? AND status = ? AND updated_at = ?", key, seenStatus, seenUpdatedAt).
		Updates(map[string]any{
			"status":     domain.StatusPending,
			"updated_at": time.Now().UTC(),
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrClaimLost
	}
	return nil
}

// IncrementAttempt bumps the attempt counter for key and returns the new
// value. The update happens before the corresponding dispatch attempt so a
// crash mid-send never loses the count. It also touches updated_at, which
// keeps an in-flight record fresh and invalidates any stale reads a racing
// duplicate might try to reclaim with.
func IncrementAttempt(ctx context.Context, db *gorm.DB, key string) (int, error) {
	tx := db.WithContext(ctx).
		Model(&domain.Submission{}).
		Where("idempotency_key = ?", key).
		Updates(map[string]any{
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"updated_at":    time.Now().UTC(),
		})
	if tx.Error != nil {
		return 0, tx.Error
	}
	if tx.RowsAffected == 0 {
		return 0, ErrNotFound
	}
	rec, err := GetSubmission(ctx, db, key)
	if err != nil {
		return 0, err
	}
	return rec.AttemptCount, nil
}

// UpdateStatus transitions the record for key to status. Returns ErrNotFound
// when no record exists under the key.
func UpdateStatus(ctx context.Context, db *gorm.DB, key string, status domain.SubmissionStatus) error {
	tx := db.WithContext(ctx).
		Model(&domain.Submission{}).
		Where("idempotency_key = ?", key).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountRecentByEmail counts submissions recorded for email since the given
// boundary. The query is re-evaluated against the caller's "now - window", so
// older entries age out naturally without any cleanup job.
func CountRecentByEmail(ctx context.Context, db *gorm.DB, email string, since time.Time) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Submission{}).
		Where("email = ? AND created_at >= ?", domain.NormalizeEmail(email), since).
		Count(&n).Error
	return n, err
}
