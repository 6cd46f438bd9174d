// Waitlist HTTP handlers.
//
// This file exposes the single transactional endpoint of the service:
//   - POST /waitlist-submit  (validate, rate-check, dedupe, deliver)
//
// The handler is transport-thin: it binds the JSON body, delegates to the
// IntakeService, and maps service outcomes to the response envelope. The
// pipeline's diagnostic detail (webhook reply bodies, counter values) is
// logged server-side and never reaches the caller.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-waitlist-backend/internal/http/middleware"
	"github.com/tbourn/go-waitlist-backend/internal/services"
	"github.com/tbourn/go-waitlist-backend/internal/validation"
	"github.com/tbourn/go-waitlist-backend/internal/webhook"
)

// Handlers bundles the handler dependencies injected by the router.
type Handlers struct {
	Intake *services.IntakeService
}

// New constructs the Handlers set.
func New(intake *services.IntakeService) *Handlers {
	return &Handlers{Intake: intake}
}

// SubmitWaitlist godoc
// @ID          submitWaitlist
// @Summary     Join the waitlist
// @Description Validates a signup, enforces rate limits, deduplicates retried
// @Description submissions, and forwards the entry to the intake spreadsheet.
// @Tags        Waitlist
// @Accept      json
// @Produce     json
//
// @Param       body  body  validation.SubmissionRequest  true  "Signup payload"
//
// @Success     200  {object}  handlers.SubmitResponse  "Handled; check success flag"
// @Failure     400  {object}  handlers.ErrorResponse   "Malformed or invalid body"
// @Failure     403  {object}  handlers.ErrorResponse   "Origin rejected"
// @Failure     413  {object}  handlers.ErrorResponse   "Payload too large"
// @Failure     429  {object}  handlers.ErrorResponse   "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse   "Delivery failed"
// @Failure     503  {object}  handlers.ErrorResponse   "Webhook not configured"
// @Router      /waitlist-submit [post]
func (h *Handlers) SubmitWaitlist(c *gin.Context) {
	ctx := c.Request.Context()

	var raw validation.SubmissionRequest
	if err := c.ShouldBindJSON(&raw); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "request body too large")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request body must be valid JSON")
		return
	}

	result, err := h.Intake.Submit(ctx, raw, time.Now().UTC())
	if err != nil {
		h.failSubmit(c, err)
		return
	}

	if result == services.ResultReplayed {
		// Same envelope as a fresh delivery: a replayed duplicate is a
		// success from the caller's perspective.
		middleware.LoggerFrom(c).Info().Msg("idempotent replay served")
	}
	ok(c, "Form submitted successfully")
}

// failSubmit maps pipeline errors to HTTP outcomes.
func (h *Handlers) failSubmit(c *gin.Context, err error) {
	var fieldErr *validation.FieldError
	var deliveryErr *webhook.DeliveryError

	switch {
	case errors.As(err, &fieldErr):
		failField(c, fieldErr)
	case errors.Is(err, services.ErrRateLimited),
		errors.Is(err, services.ErrRetryExhausted),
		errors.Is(err, services.ErrInFlight):
		// Generic message only; the exact counter state is never revealed.
		fail(c, http.StatusTooManyRequests, ErrCodeRateLimited,
			"Too many requests. Please try again later.")
	case errors.Is(err, webhook.ErrNotConfigured):
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable,
			"Submissions are temporarily unavailable.")
	case errors.As(err, &deliveryErr):
		middleware.LoggerFrom(c).Error().
			Int("webhook_status", deliveryErr.StatusCode).
			Str("reason", middleware.Redact(deliveryErr.Reason)).
			Msg("submission delivery failed")
		fail(c, http.StatusInternalServerError, ErrCodeDispatchFail,
			"Submission failed. Please try again later.")
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("submission pipeline error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal,
			"Something went wrong. Please try again later.")
	}
}

// failField writes the 400 envelope for the first violated field.
func failField(c *gin.Context, fe *validation.FieldError) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Success:   false,
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      ErrCodeValidation,
		Field:     fe.Field,
		Message:   fe.Message,
	})
}
