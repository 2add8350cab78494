// Package handlers provides HTTP handler implementations for the public API.
//
// This file holds the response helpers shared by every endpoint: the error
// envelope, fail/Fail, ok/noContent, and writeError, which maps service
// errors onto status codes and envelope codes in one place.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "demand: not found"
//	}
package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-match-backend/internal/http/middleware"
	"github.com/tbourn/go-match-backend/internal/quota"
	"github.com/tbourn/go-match-backend/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"resource not found"`
}

// QuotaErrorResponse is the 429 body of GET /search. It carries the quota
// snapshot so clients can show when searching becomes possible again.
type QuotaErrorResponse struct {
	ErrorResponse
	RateLimit quota.Decision `json:"rate_limit"`
}

// fail aborts the request with a structured error. 5xx responses are logged
// with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	middleware.SetErrorCode(c, code)
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail, for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// writeError translates a service error into the envelope.
func writeError(c *gin.Context, err error) {
	var verr *services.ValidationError
	var qerr *services.QuotaExceededError

	switch {
	case errors.As(err, &verr):
		fail(c, http.StatusBadRequest, ErrCodeValidation, verr.Error())
	case errors.As(err, &qerr):
		middleware.SetErrorCode(c, ErrCodeQuotaExceeded)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, QuotaErrorResponse{
			ErrorResponse: ErrorResponse{
				RequestID: c.Writer.Header().Get("X-Request-ID"),
				Code:      ErrCodeQuotaExceeded,
				Message:   "daily search limit reached",
			},
			RateLimit: qerr.Decision,
		})
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrForbidden):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "not allowed to access this resource")
	case errors.Is(err, services.ErrExpired):
		fail(c, http.StatusBadRequest, ErrCodeExpired, "demand has expired")
	case errors.Is(err, services.ErrPaymentNotCompleted):
		fail(c, http.StatusBadRequest, ErrCodePaymentNotCompleted, "payment not completed")
	case errors.Is(err, services.ErrPaymentMismatch):
		fail(c, http.StatusBadRequest, ErrCodePaymentMismatch, "payment does not belong to this demand")
	case errors.Is(err, services.ErrAlreadyApplied), errors.Is(err, services.ErrPaymentAlreadyUsed):
		fail(c, http.StatusConflict, ErrCodeConflict, msgConflict)
	case errors.Is(err, services.ErrPaymentVerificationFailed):
		fail(c, http.StatusBadGateway, ErrCodePaymentVerificationFailed, "could not verify payment, retry later")
	case errors.Is(err, services.ErrPaymentProvider):
		fail(c, http.StatusBadGateway, ErrCodePaymentProvider, "payment provider unavailable, retry later")
	case errors.Is(err, services.ErrMatchFailure):
		fail(c, http.StatusBadGateway, ErrCodeMatchFailure, "matching is temporarily unavailable")
	case errors.Is(err, services.ErrStoreUnavailable):
		fail(c, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "rate limit store unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusGatewayTimeout, ErrCodeTimeout, "request timed out")
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("unhandled service error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

// requireUser returns the caller's identity or answers 401.
func requireUser(c *gin.Context) (string, bool) {
	uid, found := middleware.UserID(c)
	if !found {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "user identity required")
		return "", false
	}
	return uid, true
}

// retryAfterSeconds is the whole number of seconds until the quota resets,
// at least 1.
func retryAfterSeconds(d quota.Decision, now time.Time) int {
	secs := int(math.Ceil(d.ResetAt.Sub(now).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
