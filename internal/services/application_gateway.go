// Package services – ApplicationGateway
//
// ApplicationGateway turns a settled payment into exactly one supply row.
// The flow is strictly ordered: validate, load the demand, verify payment
// with the provider, check the payment metadata, then a single INSERT. The
// unique indexes on supplies decide concurrent races; there is no
// read-then-write check. Post-commit work (event publishing) never undoes
// the write.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-match-backend/internal/clock"
	"github.com/tbourn/go-match-backend/internal/domain"
	"github.com/tbourn/go-match-backend/internal/events"
	"github.com/tbourn/go-match-backend/internal/payments"
	"github.com/tbourn/go-match-backend/internal/repo"
)

// ApplicationGateway owns the supply lifecycle.
type ApplicationGateway struct {
	DB       *gorm.DB
	Payments payments.Provider
	Events   events.Publisher
	Clock    clock.Clock
	Users    UserDirectory

	CallTimeout time.Duration
}

// CreateApplicationInput is the caller-supplied part of an application.
type CreateApplicationInput struct {
	UserID    string
	DemandID  string
	Content   string
	Email     string
	Phone     string
	PaymentID string
}

// CreateApplication verifies payment and inserts the supply.
func (g *ApplicationGateway) CreateApplication(ctx context.Context, in CreateApplicationInput) (*domain.Supply, error) {
	tr := otel.Tracer("services/ApplicationGateway")
	ctx, span := tr.Start(ctx, "CreateApplication",
		trace.WithAttributes(
			attribute.String("demand.id", in.DemandID),
			attribute.String("user.id", in.UserID),
		),
	)
	defer span.End()

	s, outcome, err := g.create(ctx, in)
	applicationsTotal.WithLabelValues(outcome).Inc()
	if err != nil {
		span.SetAttributes(attribute.String("outcome", outcome))
		if outcome == "verification_failed" || outcome == "error" {
			span.RecordError(err)
		}
		return nil, err
	}
	return s, nil
}

func (g *ApplicationGateway) create(ctx context.Context, in CreateApplicationInput) (*domain.Supply, string, error) {
	log := zerolog.Ctx(ctx)

	// Validating
	if err := checkUser(in.UserID); err != nil {
		return nil, "invalid", err
	}
	if err := checkID("demand_id", in.DemandID); err != nil {
		return nil, "invalid", err
	}
	content, err := cleanText("content", in.Content, SupplyContentMin, SupplyContentMax)
	if err != nil {
		return nil, "invalid", err
	}
	email, err := cleanEmail(in.Email)
	if err != nil {
		return nil, "invalid", err
	}
	phone, err := cleanPhone(in.Phone)
	if err != nil {
		return nil, "invalid", err
	}
	if in.PaymentID == "" {
		return nil, "invalid", invalid("payment_intent_id", "is required")
	}
	if err := ensureUser(ctx, g.Users, in.UserID, g.CallTimeout); err != nil {
		return nil, "invalid", err
	}

	// DemandLookup
	now := nowFrom(g.Clock)
	qctx, cancel := bounded(ctx, g.CallTimeout)
	d, err := repo.GetDemand(qctx, g.DB, in.DemandID)
	cancel()
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, "not_found", ErrNotFound
		}
		return nil, "error", err
	}
	if d.IsExpired(now) {
		return nil, "expired", ErrExpired
	}

	// PaymentVerification
	pctx, cancel := bounded(ctx, g.CallTimeout)
	p, err := g.Payments.Lookup(pctx, in.PaymentID)
	cancel()
	if err != nil {
		if errors.Is(err, payments.ErrPaymentNotFound) {
			return nil, "payment_not_completed", ErrPaymentNotCompleted
		}
		log.Warn().Err(err).Str("demand_id", in.DemandID).Msg("payment lookup failed")
		return nil, "verification_failed", fmt.Errorf("%w: %v", ErrPaymentVerificationFailed, err)
	}
	if !p.Settled() {
		return nil, "payment_not_completed", ErrPaymentNotCompleted
	}

	// MetadataCheck
	if p.Metadata[payments.MetaDemandID] != in.DemandID {
		return nil, "payment_mismatch", ErrPaymentMismatch
	}
	if uid, ok := p.Metadata[payments.MetaUserID]; ok && uid != in.UserID {
		return nil, "payment_mismatch", ErrPaymentMismatch
	}

	// AtomicInsert
	s := &domain.Supply{
		ID:                    uuid.NewString(),
		DemandID:              d.ID,
		UserID:                in.UserID,
		Content:               content,
		Email:                 email,
		Phone:                 phone,
		PaymentConfirmationID: in.PaymentID,
		CreatedAt:             now,
	}
	ictx, cancel := bounded(ctx, g.CallTimeout)
	defer cancel()
	if err := repo.CreateSupply(ictx, g.DB, s); err != nil {
		var cv *repo.ConstraintViolation
		if errors.As(err, &cv) {
			switch cv.Which {
			case repo.ConstraintDemandUser:
				return nil, "already_applied", ErrAlreadyApplied
			case repo.ConstraintPayment:
				return nil, "payment_already_used", ErrPaymentAlreadyUsed
			}
		}
		return nil, "error", err
	}

	log.Info().Str("supply_id", s.ID).Str("demand_id", s.DemandID).Msg("application created")
	g.publish(ctx, s)
	return s, "ok", nil
}

// publish is best-effort; failures are logged only.
func (g *ApplicationGateway) publish(ctx context.Context, s *domain.Supply) {
	if g.Events == nil {
		return
	}
	ectx, cancel := bounded(context.WithoutCancel(ctx), g.CallTimeout)
	defer cancel()
	err := g.Events.ApplicationCreated(ectx, events.ApplicationCreated{
		SupplyID:  s.ID,
		DemandID:  s.DemandID,
		UserID:    s.UserID,
		CreatedAt: s.CreatedAt,
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("supply_id", s.ID).Msg("publish application.created failed")
	}
}

// Get returns a supply visible to its author or to the demand owner.
func (g *ApplicationGateway) Get(ctx context.Context, requesterID, id string) (*domain.Supply, error) {
	tr := otel.Tracer("services/ApplicationGateway")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(attribute.String("supply.id", id)),
	)
	defer span.End()

	if err := checkID("supply_id", id); err != nil {
		return nil, err
	}
	ctx, cancel := bounded(ctx, g.CallTimeout)
	defer cancel()
	s, err := repo.GetSupply(ctx, g.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if s.UserID == requesterID {
		return s, nil
	}
	d, err := repo.GetDemand(ctx, g.DB, s.DemandID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	if d.UserID != requesterID {
		return nil, ErrForbidden
	}
	return s, nil
}

// ListByDemand returns all applications to a demand. Demand owner only.
func (g *ApplicationGateway) ListByDemand(ctx context.Context, requesterID, demandID string) ([]domain.Supply, error) {
	tr := otel.Tracer("services/ApplicationGateway")
	ctx, span := tr.Start(ctx, "ListByDemand",
		trace.WithAttributes(attribute.String("demand.id", demandID)),
	)
	defer span.End()

	if err := checkID("demand_id", demandID); err != nil {
		return nil, err
	}
	ctx, cancel := bounded(ctx, g.CallTimeout)
	defer cancel()
	d, err := repo.GetDemand(ctx, g.DB, demandID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if d.UserID != requesterID {
		return nil, ErrForbidden
	}
	return repo.ListSuppliesByDemand(ctx, g.DB, demandID)
}

// ListByUser returns userID's applications, newest first. Owner only.
func (g *ApplicationGateway) ListByUser(ctx context.Context, requesterID, userID string) ([]domain.Supply, error) {
	tr := otel.Tracer("services/ApplicationGateway")
	ctx, span := tr.Start(ctx, "ListByUser",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if requesterID != userID {
		return nil, ErrForbidden
	}
	ctx, cancel := bounded(ctx, g.CallTimeout)
	defer cancel()
	return repo.ListSuppliesByUser(ctx, g.DB, userID)
}

// Delete removes the requester's own supply, releasing both of its unique
// constraints.
func (g *ApplicationGateway) Delete(ctx context.Context, requesterID, id string) error {
	tr := otel.Tracer("services/ApplicationGateway")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("supply.id", id),
			attribute.String("user.id", requesterID),
		),
	)
	defer span.End()

	if err := checkID("supply_id", id); err != nil {
		return err
	}
	ctx, cancel := bounded(ctx, g.CallTimeout)
	defer cancel()
	s, err := repo.GetSupply(ctx, g.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if s.UserID != requesterID {
		return ErrForbidden
	}
	if err := repo.DeleteSupply(ctx, g.DB, id, requesterID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	zerolog.Ctx(ctx).Info().Str("supply_id", id).Msg("application deleted")
	return nil
}
