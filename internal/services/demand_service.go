// Package services – DemandService
//
// DemandService posts demands and serves reads over them. A demand is
// embedded and written to the vector index inside the same database
// transaction as its row, so an indexing failure leaves no orphan row.
// Contact details are only returned to the owner or to a user who has
// already applied.
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
	"github.com/tbourn/go-match-backend/internal/embedding"
	"github.com/tbourn/go-match-backend/internal/repo"
	"github.com/tbourn/go-match-backend/internal/search"
)

// DemandService coordinates demand persistence and indexing.
type DemandService struct {
	DB       *gorm.DB
	Index    search.Index
	Embedder embedding.Embedder
	Clock    clock.Clock
	Users    UserDirectory

	// CallTimeout bounds each embedder, index and relational call.
	CallTimeout time.Duration
}

// CreateDemandInput is the caller-supplied part of a demand.
type CreateDemandInput struct {
	UserID  string
	Content string
	Email   string
	Phone   string
	Days    int
}

// DemandView is a demand as seen by a particular requester.
type DemandView struct {
	Demand     domain.Demand `json:"demand"`
	HasApplied bool          `json:"has_applied"`
	IsExpired  bool          `json:"is_expired"`
}

// Create validates, stores and indexes a new demand.
func (s *DemandService) Create(ctx context.Context, in CreateDemandInput) (*domain.Demand, error) {
	tr := otel.Tracer("services/DemandService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("user.id", in.UserID),
			attribute.Int("days", in.Days),
		),
	)
	defer span.End()

	if err := checkUser(in.UserID); err != nil {
		return nil, err
	}
	content, err := cleanText("content", in.Content, DemandContentMin, DemandContentMax)
	if err != nil {
		return nil, err
	}
	email, err := cleanEmail(in.Email)
	if err != nil {
		return nil, err
	}
	phone, err := cleanPhone(in.Phone)
	if err != nil {
		return nil, err
	}
	if err := checkDays(in.Days); err != nil {
		return nil, err
	}
	if err := ensureUser(ctx, s.Users, in.UserID, s.CallTimeout); err != nil {
		return nil, err
	}

	now := nowFrom(s.Clock)
	d := &domain.Demand{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Content:   content,
		Email:     email,
		Phone:     phone,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(in.Days) * 24 * time.Hour),
	}

	ectx, cancel := bounded(ctx, s.CallTimeout)
	vec, err := s.Embedder.Embed(ectx, embedding.Prepare(d.Content))
	cancel()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: embed demand: %v", ErrMatchFailure, err)
	}

	// One budget covers the insert and the index write.
	tctx, cancel := bounded(ctx, 2*s.CallTimeout)
	defer cancel()
	err = s.DB.WithContext(tctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateDemand(tctx, tx, d); err != nil {
			return err
		}
		ictx, cancel := bounded(tctx, s.CallTimeout)
		defer cancel()
		if err := s.Index.Upsert(ictx, search.Entry{
			ID:     d.ID,
			Vector: vec,
			Metadata: search.Metadata{
				UserID:    d.UserID,
				Content:   d.Content,
				CreatedAt: d.CreatedAt,
				ExpiresAt: d.ExpiresAt,
			},
		}); err != nil {
			return fmt.Errorf("%w: index demand: %v", ErrMatchFailure, err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Str("demand_id", d.ID).Time("expires_at", d.ExpiresAt).Msg("demand created")
	return d, nil
}

// Get returns a demand by id. Expired demands stay readable.
func (s *DemandService) Get(ctx context.Context, requesterID, id string) (*DemandView, error) {
	tr := otel.Tracer("services/DemandService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(
			attribute.String("demand.id", id),
			attribute.String("user.id", requesterID),
		),
	)
	defer span.End()

	if err := checkID("demand_id", id); err != nil {
		return nil, err
	}
	ctx, cancel := bounded(ctx, s.CallTimeout)
	defer cancel()
	d, err := repo.GetDemand(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	view := &DemandView{IsExpired: d.IsExpired(nowFrom(s.Clock))}
	if requesterID != "" && requesterID != d.UserID {
		applied, err := repo.HasApplied(ctx, s.DB, d.ID, requesterID)
		if err != nil {
			return nil, err
		}
		view.HasApplied = applied
	}
	if requesterID == d.UserID || view.HasApplied {
		view.Demand = *d
	} else {
		view.Demand = d.Redacted()
	}
	return view, nil
}

// ListByUser returns userID's demands, newest first. Only the owner may list.
func (s *DemandService) ListByUser(ctx context.Context, requesterID, userID string) ([]domain.Demand, error) {
	tr := otel.Tracer("services/DemandService")
	ctx, span := tr.Start(ctx, "ListByUser",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if requesterID != userID {
		return nil, ErrForbidden
	}
	ctx, cancel := bounded(ctx, s.CallTimeout)
	defer cancel()
	return repo.ListDemandsByUser(ctx, s.DB, userID)
}

// Stats returns the count and newest created_at of userID's demands, for
// conditional GETs.
func (s *DemandService) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	ctx, cancel := bounded(ctx, s.CallTimeout)
	defer cancel()
	return repo.DemandStats(ctx, s.DB, userID)
}
