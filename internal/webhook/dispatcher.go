// Package webhook delivers normalized submissions to the external intake
// endpoint with bounded retries. The dispatcher owns transport concerns
// (timeouts, backoff, attempt accounting) and defers success detection to
// Classify; it deliberately knows nothing about the submission store.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-waitlist-backend/internal/config"
)

// maxLoggedBody caps how much of a remote reply reaches the logs.
const maxLoggedBody = 256

// attemptsTotal counts outbound delivery attempts by terminal result of the
// individual attempt ("delivered" or "failed").
var attemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhook_attempts_total",
		Help: "Total outbound webhook delivery attempts by result.",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(attemptsTotal)
}

// ErrNotConfigured is returned when no webhook URL was supplied. The HTTP
// layer maps it to 503 so a misconfigured deployment fails closed instead of
// crashing or silently dropping submissions.
var ErrNotConfigured = errors.New("webhook url not configured")

// DeliveryError is the terminal failure after the retry budget is spent.
// Reason retains the last observed status/body for operator logs; it is never
// surfaced verbatim to the caller.
type DeliveryError struct {
	StatusCode int
	Reason     string
}

// Error implements the error interface.
func (e *DeliveryError) Error() string { return "webhook delivery failed: " + e.Reason }

// Dispatcher sends JSON payloads to the configured intake webhook.
// It is safe for concurrent use.
type Dispatcher struct {
	url        string
	maxRetries int
	initialGap time.Duration
	client     *http.Client
}

// NewDispatcher builds a Dispatcher from configuration. The HTTP client
// timeout bounds each individual attempt; the caller's context bounds the
// whole retry sequence so a stalled remote cannot hold a handler beyond the
// ambient request deadline.
func NewDispatcher(cfg config.WebhookConfig) *Dispatcher {
	return &Dispatcher{
		url:        cfg.URL,
		maxRetries: cfg.MaxRetries,
		initialGap: cfg.Backoff,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

// Configured reports whether a destination URL is set.
func (d *Dispatcher) Configured() bool { return d.url != "" }

// Send posts payload to the webhook, retrying up to the configured attempt
// budget with exponential backoff between attempts.
//
// Returns nil on a classified success. Returns ErrNotConfigured when no URL
// is set, a *DeliveryError carrying the last observed status and abbreviated
// body once all attempts fail, or the context error when the deadline expires
// mid-sequence. onAttempt, when non-nil, runs before every network attempt;
// an error from it aborts the sequence (used for write-before-send attempt
// accounting).
func (d *Dispatcher) Send(ctx context.Context, payload any, onAttempt func(context.Context) error) error {
	if !d.Configured() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var last *DeliveryError

	op := func() error {
		if onAttempt != nil {
			if err := onAttempt(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		derr := d.attempt(ctx, body)
		if derr == nil {
			return nil
		}
		last = derr
		return derr
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.initialGap
	bo.MaxInterval = 5 * time.Second

	err = backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(d.maxRetries-1)), ctx))
	if err == nil {
		return nil
	}
	if last != nil {
		return last
	}
	return err
}

// attempt performs one POST and classifies the reply. It returns nil on
// success and a *DeliveryError describing the observed reply otherwise.
func (d *Dispatcher) attempt(ctx context.Context, body []byte) *DeliveryError {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Reason: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		attemptsTotal.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Str("endpoint", d.url).Msg("webhook attempt failed")
		return &DeliveryError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	// Bound the read; the classifier never needs more than a small reply.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		attemptsTotal.WithLabelValues("failed").Inc()
		return &DeliveryError{StatusCode: resp.StatusCode, Reason: err.Error()}
	}

	if Classify(resp.StatusCode, raw) {
		attemptsTotal.WithLabelValues("delivered").Inc()
		log.Debug().
			Str("endpoint", d.url).
			Int("status", resp.StatusCode).
			Str("body", abbreviate(raw, maxLoggedBody)).
			Msg("webhook delivered")
		return nil
	}

	attemptsTotal.WithLabelValues("failed").Inc()
	log.Warn().
		Str("endpoint", d.url).
		Int("status", resp.StatusCode).
		Str("body", abbreviate(raw, maxLoggedBody)).
		Msg("webhook rejected payload")
	return &DeliveryError{
		StatusCode: resp.StatusCode,
		Reason:     "status " + resp.Status + ": " + abbreviate(raw, maxLoggedBody),
	}
}
