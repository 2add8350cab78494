// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are stable, lowercase snake_case strings returned in the `code` field
// of the error envelope. Clients branch on them; messages are for humans.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "conflict",
//	  "message": "application already exists for this demand or payment"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeValidation                = "validation_error"
	ErrCodeQuotaExceeded             = "quota_exceeded"
	ErrCodeExpired                   = "expired"
	ErrCodePaymentNotCompleted       = "payment_not_completed"
	ErrCodePaymentMismatch           = "payment_mismatch"
	ErrCodePaymentVerificationFailed = "payment_verification_failed"
	ErrCodePaymentProvider           = "payment_provider_error"
	ErrCodeMatchFailure              = "match_failure"
	ErrCodeStoreUnavailable          = "store_unavailable"
	ErrCodeTimeout                   = "timeout"
)

// msgConflict is shared by both uniqueness conflicts so the response does not
// reveal which constraint fired.
const msgConflict = "application already exists for this demand or payment"
