// Package services – IntakeService
//
// This file implements the IntakeService, the per-request orchestration for
// waitlist signups. Each submission walks a fixed pipeline:
//
//	validate → rate check → idempotency resolve → claim → dispatch → record
//
// Any stage may stop the pipeline early with a sentinel error (or a
// validation.FieldError), which the handler maps to an HTTP outcome. The
// service owns every write to the submission store; nothing else mutates it.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-waitlist-backend/internal/config"
	"github.com/tbourn/go-waitlist-backend/internal/domain"
	"github.com/tbourn/go-waitlist-backend/internal/repo"
	"github.com/tbourn/go-waitlist-backend/internal/validation"
	"github.com/tbourn/go-waitlist-backend/internal/webhook"
)

// submissionsTotal counts intake outcomes at the service boundary.
var submissionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "waitlist_submissions_total",
		Help: "Total waitlist submissions by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(submissionsTotal)
}

// pendingGrace is how long an untouched pending record is presumed to belong
// to a dispatch still in flight. Duplicates arriving within the grace are
// answered with ErrInFlight; past it the record is treated as crashed and
// reclaimed. Every dispatch attempt touches the record, so a live request
// keeps resetting the clock.
const pendingGrace = 5 * time.Minute

// Result distinguishes a fresh delivery from an idempotent replay. Both are
// reported to the caller as success.
type Result int

const (
	// ResultDelivered means the webhook confirmed this submission now.
	ResultDelivered Result = iota
	// ResultReplayed means a previous request with the same idempotency key
	// already delivered; no new webhook call was made.
	ResultReplayed
)

// Dispatcher is the narrow slice of the webhook client the service needs.
// Tests substitute a fake to observe dispatch decisions.
type Dispatcher interface {
	Configured() bool
	Send(ctx context.Context, payload any, onAttempt func(context.Context) error) error
}

// IntakeService coordinates validation, abuse control, idempotent claiming,
// and delivery of waitlist submissions.
type IntakeService struct {
	// DB is the submission store handle.
	DB *gorm.DB

	// Validator checks and normalizes raw submissions.
	Validator *validation.Validator

	// Dispatcher delivers normalized payloads downstream.
	Dispatcher Dispatcher

	// EmailLimit and Window define the persisted rolling-window limit per
	// email identity.
	EmailLimit int
	Window     time.Duration

	// MaxRetries is the dispatch budget per idempotency key.
	MaxRetries int

	// KeyGranularity is the timestamp bucket folded into the idempotency key.
	KeyGranularity time.Duration
}

// NewIntakeService wires an IntakeService from configuration.
func NewIntakeService(db *gorm.DB, v *validation.Validator, d Dispatcher, cfg config.Config) *IntakeService {
	return &IntakeService{
		DB:             db,
		Validator:      v,
		Dispatcher:     d,
		EmailLimit:     cfg.RateLimit.EmailLimit,
		Window:         cfg.RateLimit.Window,
		MaxRetries:     cfg.Webhook.MaxRetries,
		KeyGranularity: cfg.IdempotencyGranularity,
	}
}

// Submit runs the intake pipeline for one raw submission observed at now.
//
// Returns:
//   - (ResultDelivered, nil) on a confirmed fresh delivery,
//   - (ResultReplayed, nil) when the key was already delivered,
//   - a *validation.FieldError for schema violations,
//   - ErrRateLimited / ErrRetryExhausted / ErrInFlight for abuse-control stops,
//   - webhook.ErrNotConfigured when no downstream URL is set,
//   - a *webhook.DeliveryError once the retry budget is spent.
//
// Every non-success path that owns a claimed record updates its persisted
// status before returning; no outcome is silently swallowed.
func (s *IntakeService) Submit(ctx context.Context, raw validation.SubmissionRequest, now time.Time) (Result, error) {
	req, err := s.Validator.Validate(raw)
	if err != nil {
		submissionsTotal.WithLabelValues("invalid").Inc()
		return 0, err
	}

	// Store-backed rolling window per email. The boundary is recomputed per
	// request, so old entries age out without a cleanup job.
	count, err := repo.CountRecentByEmail(ctx, s.DB, req.EmailAddress, now.Add(-s.Window))
	if err != nil {
		return 0, err
	}
	if count >= int64(s.EmailLimit) {
		submissionsTotal.WithLabelValues("rate_limited").Inc()
		return 0, ErrRateLimited
	}

	key := domain.IdempotencyKey(req.EmailAddress, now, s.KeyGranularity)

	rec, err := repo.GetSubmission(ctx, s.DB, key)
	switch {
	case err == nil:
		switch {
		case rec.Status == domain.StatusSent:
			// Terminal success: idempotent replay, never re-dispatched.
			submissionsTotal.WithLabelValues("replayed").Inc()
			return ResultReplayed, nil
		case rec.Status == domain.StatusPending && rec.AttemptCount >= s.MaxRetries:
			submissionsTotal.WithLabelValues("exhausted").Inc()
			return 0, ErrRetryExhausted
		case rec.Status == domain.StatusPending && now.Sub(rec.UpdatedAt) < pendingGrace:
			// A recently touched pending record belongs to a request that is
			// still dispatching; racing it could deliver the same key twice.
			submissionsTotal.WithLabelValues("in_flight").Inc()
			return 0, ErrInFlight
		}
		// failed, or pending gone quiet (crashed mid-dispatch): take over the
		// record before re-dispatching. The compare-and-swap on the observed
		// state admits exactly one of any concurrent duplicates.
		if rerr := repo.ReclaimSubmission(ctx, s.DB, key, rec.Status, rec.UpdatedAt); rerr != nil {
			if !errors.Is(rerr, repo.ErrClaimLost) {
				return 0, rerr
			}
			other, gerr := repo.GetSubmission(ctx, s.DB, key)
			if gerr != nil {
				return 0, gerr
			}
			if other.Status == domain.StatusSent {
				submissionsTotal.WithLabelValues("replayed").Inc()
				return ResultReplayed, nil
			}
			submissionsTotal.WithLabelValues("in_flight").Inc()
			return 0, ErrInFlight
		}
	case errors.Is(err, repo.ErrNotFound):
		payload, merr := json.Marshal(req)
		if merr != nil {
			return 0, merr
		}
		if _, cerr := repo.ClaimSubmission(ctx, s.DB, key, req.EmailAddress, string(payload), now); cerr != nil {
			if !errors.Is(cerr, repo.ErrDuplicate) {
				return 0, cerr
			}
			// Lost the race: a concurrent request claimed this key between
			// our lookup and insert. Observe its state instead of racing it.
			other, gerr := repo.GetSubmission(ctx, s.DB, key)
			if gerr != nil {
				return 0, gerr
			}
			if other.Status == domain.StatusSent {
				submissionsTotal.WithLabelValues("replayed").Inc()
				return ResultReplayed, nil
			}
			submissionsTotal.WithLabelValues("in_flight").Inc()
			return 0, ErrInFlight
		}
	default:
		return 0, err
	}

	if !s.Dispatcher.Configured() {
		return 0, webhook.ErrNotConfigured
	}

	// Write-before-send: the attempt counter increments ahead of each
	// network attempt so a crash mid-dispatch never loses the count.
	onAttempt := func(actx context.Context) error {
		_, ierr := repo.IncrementAttempt(actx, s.DB, key)
		return ierr
	}

	if derr := s.Dispatcher.Send(ctx, req, onAttempt); derr != nil {
		if uerr := repo.UpdateStatus(ctx, s.DB, key, domain.StatusFailed); uerr != nil {
			log.Error().Err(uerr).Msg("mark submission failed")
		}
		submissionsTotal.WithLabelValues("failed").Inc()
		return 0, derr
	}

	if uerr := repo.UpdateStatus(ctx, s.DB, key, domain.StatusSent); uerr != nil {
		// Delivery happened; a bookkeeping failure must not turn it into a
		// caller-visible error, or the client will retry and double-send.
		log.Error().Err(uerr).Msg("mark submission sent")
	}
	submissionsTotal.WithLabelValues("delivered").Inc()
	return ResultDelivered, nil
}
