package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-match-backend/internal/clock"
	"github.com/tbourn/go-match-backend/internal/payments"
	"github.com/tbourn/go-match-backend/internal/repo"
)

// PaymentService creates and inspects the payment intents that gate
// applications.
type PaymentService struct {
	DB       *gorm.DB
	Payments payments.Provider
	Clock    clock.Clock
	Users    UserDirectory

	FeeCents    int64
	Currency    string
	CallTimeout time.Duration
}

// IntentResult is handed to the client to confirm payment.
type IntentResult struct {
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

// VerifyResult reports where a payment intent stands.
type VerifyResult struct {
	Status   string `json:"status"`
	Settled  bool   `json:"settled"`
	DemandID string `json:"demand_id"`
}

// CreateIntent opens a payment intent for userID to apply to demandID. It
// fails fast when the application could never succeed.
func (s *PaymentService) CreateIntent(ctx context.Context, userID, demandID string) (*IntentResult, error) {
	tr := otel.Tracer("services/PaymentService")
	ctx, span := tr.Start(ctx, "CreateIntent",
		trace.WithAttributes(
			attribute.String("demand.id", demandID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	if err := checkUser(userID); err != nil {
		return nil, err
	}
	if err := checkID("demand_id", demandID); err != nil {
		return nil, err
	}
	if err := ensureUser(ctx, s.Users, userID, s.CallTimeout); err != nil {
		return nil, err
	}
	qctx, cancel := bounded(ctx, s.CallTimeout)
	defer cancel()
	d, err := repo.GetDemand(qctx, s.DB, demandID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if d.IsExpired(nowFrom(s.Clock)) {
		return nil, ErrExpired
	}
	applied, err := repo.HasApplied(qctx, s.DB, demandID, userID)
	if err != nil {
		return nil, err
	}
	if applied {
		return nil, ErrAlreadyApplied
	}

	pctx, pcancel := bounded(ctx, s.CallTimeout)
	defer pcancel()
	in, err := s.Payments.CreateIntent(pctx, s.FeeCents, s.Currency, map[string]string{
		payments.MetaDemandID: demandID,
		payments.MetaUserID:   userID,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}
	return &IntentResult{
		ClientSecret:    in.ClientSecret,
		PaymentIntentID: in.ID,
		Amount:          in.Amount,
		Currency:        in.Currency,
	}, nil
}

// Verify looks up a payment intent on behalf of userID.
func (s *PaymentService) Verify(ctx context.Context, userID, paymentID string) (*VerifyResult, error) {
	tr := otel.Tracer("services/PaymentService")
	ctx, span := tr.Start(ctx, "Verify",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, invalid("payment_intent_id", "is required")
	}

	pctx, cancel := bounded(ctx, s.CallTimeout)
	defer cancel()
	p, err := s.Payments.Lookup(pctx, paymentID)
	if err != nil {
		if errors.Is(err, payments.ErrPaymentNotFound) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrPaymentVerificationFailed, err)
	}
	if uid, ok := p.Metadata[payments.MetaUserID]; ok && uid != userID {
		return nil, ErrForbidden
	}
	return &VerifyResult{
		Status:   p.RawState,
		Settled:  p.Settled(),
		DemandID: p.Metadata[payments.MetaDemandID],
	}, nil
}
