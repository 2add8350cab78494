// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-match-backend/internal/domain"
)

// DemandStats returns the number of demands posted by userID and the newest
// CreatedAt among them. Demands are immutable, so the pair changes exactly
// when the listing does. maxCreatedAt is nil when the user has none.
func DemandStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxCreatedAt *time.Time, err error) {
	return createdStats(ctx, db.Model(&domain.Demand{}).Where("user_id = ?", userID))
}

// SupplyStats returns the number of applications for demandID and the newest
// CreatedAt among them.
func SupplyStats(ctx context.Context, db *gorm.DB, demandID string) (count int64, maxCreatedAt *time.Time, err error) {
	return createdStats(ctx, db.Model(&domain.Supply{}).Where("demand_id = ?", demandID))
}

func createdStats(ctx context.Context, q *gorm.DB) (int64, *time.Time, error) {
	var count int64
	q = q.WithContext(ctx)
	if err := q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err := q.Session(&gorm.Session{}).Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
