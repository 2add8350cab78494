// Package repo implements the data persistence layer for domain entities,
// backed by GORM.
//
// The repository follows a "thin" approach: it performs persistence and simple
// query composition, leaving business rules to the services package.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-match-backend/internal/domain"
)

// CreateDemand inserts a fully populated demand row.
func CreateDemand(ctx context.Context, db *gorm.DB, d *domain.Demand) error {
	return db.WithContext(ctx).Create(d).Error
}

// GetDemand fetches a demand by id regardless of expiry. It returns
// ErrNotFound when no row exists.
func GetDemand(ctx context.Context, db *gorm.DB, id string) (*domain.Demand, error) {
	var d domain.Demand
	if err := db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// ListDemandsByUser returns every demand posted by userID, newest first.
func ListDemandsByUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Demand, error) {
	var out []domain.Demand
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id ASC").
		Find(&out).Error
	return out, err
}

// ListLiveDemandsByIDs hydrates the given ids, keeping only demands whose
// expiry is strictly after now. Liveness is filtered by the database so that
// stale vector-index entries can never leak expired postings. Order is not
// significant; callers re-join on id.
func ListLiveDemandsByIDs(ctx context.Context, db *gorm.DB, ids []string, now time.Time) ([]domain.Demand, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []domain.Demand
	err := db.WithContext(ctx).
		Where("id IN ? AND expires_at > ?", ids, now).
		Find(&out).Error
	return out, err
}

// ExpiryCursor is a keyset position over demands ordered by (expires_at, id).
type ExpiryCursor struct {
	ID        string
	ExpiresAt time.Time
}

// ListExpiredDemands returns up to limit demands expired at now that sort
// strictly after the cursor, oldest expiry first. A zero cursor starts from
// the beginning. Used by maintenance to prune the vector index in batches.
func ListExpiredDemands(ctx context.Context, db *gorm.DB, after ExpiryCursor, now time.Time, limit int) ([]ExpiryCursor, error) {
	q := db.WithContext(ctx).
		Model(&domain.Demand{}).
		Select("id", "expires_at").
		Where("expires_at <= ?", now)
	if !after.ExpiresAt.IsZero() {
		q = q.Where("expires_at > ? OR (expires_at = ? AND id > ?)", after.ExpiresAt, after.ExpiresAt, after.ID)
	}
	var out []ExpiryCursor
	err := q.Order("expires_at ASC").Order("id ASC").Limit(limit).Scan(&out).Error
	return out, err
}
