// Package services holds the marketplace business logic: demand posting,
// the rate-limited semantic matcher, payment intents and the payment-gated
// application gateway.
//
// This file centralizes service-level errors. Translation into HTTP status
// codes is done by the handler layer.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/go-match-backend/internal/quota"
)

// ValidationError reports a caller-supplied field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// QuotaExceededError is returned when the caller has used today's searches.
// Decision carries the reset instant.
type QuotaExceededError struct {
	Decision quota.Decision
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily search quota exhausted; resets at %s", e.Decision.ResetAt.Format("2006-01-02T15:04:05Z07:00"))
}

var (
	// ErrNotFound indicates the demand, supply or user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExpired is returned when acting on a demand past its expiry.
	ErrExpired = errors.New("demand has expired")

	// ErrForbidden is returned when the caller does not own the resource.
	ErrForbidden = errors.New("forbidden")

	// Payment verification.
	ErrPaymentVerificationFailed = errors.New("payment verification failed")
	ErrPaymentNotCompleted       = errors.New("payment not completed")
	ErrPaymentMismatch           = errors.New("payment does not belong to this demand")
	ErrPaymentProvider           = errors.New("payment provider error")

	// Uniqueness conflicts on supplies.
	ErrAlreadyApplied     = errors.New("already applied to this demand")
	ErrPaymentAlreadyUsed = errors.New("payment already used")

	// ErrMatchFailure wraps embedder or vector index failures.
	ErrMatchFailure = errors.New("match failure")

	// ErrStoreUnavailable is the counter store outage error; callers fail closed.
	ErrStoreUnavailable = quota.ErrStoreUnavailable
)
