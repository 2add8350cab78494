package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-match-backend/internal/domain"
)

func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	// Unique DB per test to avoid schema leaking across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		// one connection: shared-cache sqlite reports SQLITE_LOCKED under
		// concurrent writers instead of waiting
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func seedDemand(t *testing.T, db *gorm.DB, id, userID string, created time.Time, days int) *domain.Demand {
	t.Helper()
	d := &domain.Demand{
		ID:        id,
		UserID:    userID,
		Content:   "Looking for a reliable plumber to fix a leaking kitchen sink this week.",
		Email:     userID + "@example.com",
		CreatedAt: created,
		ExpiresAt: created.Add(time.Duration(days) * 24 * time.Hour),
	}
	if err := CreateDemand(context.Background(), db, d); err != nil {
		t.Fatalf("seed demand %s: %v", id, err)
	}
	return d
}

func newSupply(id, demandID, userID, payment string, at time.Time) *domain.Supply {
	return &domain.Supply{
		ID:                    id,
		DemandID:              demandID,
		UserID:                userID,
		Content:               "Licensed plumber, available tomorrow morning.",
		Email:                 userID + "@example.com",
		PaymentConfirmationID: payment,
		CreatedAt:             at,
	}
}
