// Package handlers provides the HTTP handler implementations for the public
// API. This file defines the response envelope shared by every endpoint.
//
// The form contract with the front end is minimal: clients branch on the
// `success` boolean and show `message` in a toast. The envelope additionally
// carries a stable machine-readable `code` and the correlation `request_id`
// on failures so client errors can be matched to server logs.
//
// Example failure:
//
//	HTTP/1.1 429 Too Many Requests
//	{
//	  "success": false,
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "too_many_requests",
//	  "message": "Too many requests. Please try again later."
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-waitlist-backend/internal/http/middleware"
)

// SubmitResponse is the envelope returned on the success path.
type SubmitResponse struct {
	// Success is the flag the front end branches on.
	Success bool `json:"success" example:"true"`
	// Message is a human-readable confirmation, safe to show to users.
	Message string `json:"message" example:"Form submitted successfully"`
}

// ErrorResponse is the envelope returned on every failure path.
type ErrorResponse struct {
	// Success is always false here.
	Success bool `json:"success" example:"false"`
	// RequestID correlates server logs and client errors.
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Code is a stable, machine-readable code (see errors.go constants).
	Code string `json:"code" example:"bad_request"`
	// Field names the offending field for validation failures.
	Field string `json:"field,omitempty" example:"emailAddress"`
	// Message is human-readable and safe to show to users.
	Message string `json:"message" example:"Please enter a valid email"`
}

// fail aborts the request with a structured error and logs server-side errors.
//
// Server errors (>=500) are logged using the request-scoped logger so the
// diagnostic detail stays in the logs while the caller only sees the generic
// category-level message.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		Success:   false,
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail(), used by router fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success envelope with the given message.
func ok(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, SubmitResponse{Success: true, Message: msg})
}
