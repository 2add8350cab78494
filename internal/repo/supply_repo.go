package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-match-backend/internal/domain"
)

// CreateSupply performs the single INSERT guarding an application. Unique
// violations are reported as *ConstraintViolation; there is no prior SELECT,
// the unique indexes are the serialization point.
func CreateSupply(ctx context.Context, db *gorm.DB, s *domain.Supply) error {
	err := db.WithContext(ctx).Omit("Demand").Create(s).Error
	if err == nil {
		return nil
	}
	if which, ok := classifySupplyViolation(err); ok {
		return &ConstraintViolation{Which: which, Err: err}
	}
	return err
}

// GetSupply fetches a supply by id or returns ErrNotFound.
func GetSupply(ctx context.Context, db *gorm.DB, id string) (*domain.Supply, error) {
	var s domain.Supply
	if err := db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// ListSuppliesByDemand returns applications for a demand, oldest first.
func ListSuppliesByDemand(ctx context.Context, db *gorm.DB, demandID string) ([]domain.Supply, error) {
	var out []domain.Supply
	err := db.WithContext(ctx).
		Where("demand_id = ?", demandID).
		Order("created_at ASC").Order("id ASC").
		Find(&out).Error
	return out, err
}

// ListSuppliesByUser returns applications made by userID, newest first.
func ListSuppliesByUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Supply, error) {
	var out []domain.Supply
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id ASC").
		Find(&out).Error
	return out, err
}

// HasApplied reports whether userID holds a supply for demandID.
func HasApplied(ctx context.Context, db *gorm.DB, demandID, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Supply{}).
		Where("demand_id = ? AND user_id = ?", demandID, userID).
		Count(&n).Error
	return n > 0, err
}

// DeleteSupply hard-deletes a supply owned by userID, releasing both unique
// constraints. It returns ErrNotFound when nothing matched.
func DeleteSupply(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&domain.Supply{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
