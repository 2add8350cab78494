// Package payments talks to the payment confirmation service. Given a
// payment-intent id it reports settlement status and the metadata the
// intent was created with.
package payments

import (
	"context"
	"errors"
)

// Status is the normalized settlement state of a payment intent.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSettled  Status = "settled"
	StatusCanceled Status = "canceled"
	StatusFailed   Status = "failed"
)

// Metadata keys attached to every intent.
const (
	MetaDemandID = "demandId"
	MetaUserID   = "userId"
)

// ErrPaymentNotFound is returned by Lookup when the provider has no intent
// with the given id.
var ErrPaymentNotFound = errors.New("payment intent not found")

// Intent is a freshly created payment intent.
type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
}

// Payment is the provider's view of an existing intent.
type Payment struct {
	ID       string
	Status   Status
	RawState string
	Amount   int64
	Currency string
	Metadata map[string]string
}

// Settled reports whether the funds were captured.
func (p Payment) Settled() bool { return p.Status == StatusSettled }

// Provider is the payment confirmation service.
type Provider interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (Intent, error)
	Lookup(ctx context.Context, paymentID string) (Payment, error)
}
