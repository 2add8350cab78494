package services

import (
	"context"
	"fmt"
	"time"

	"github.com/tbourn/go-match-backend/internal/clock"
)

// UserDirectory answers whether a user id refers to a known account.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// ensureUser is a no-op without a directory.
func ensureUser(ctx context.Context, dir UserDirectory, userID string, d time.Duration) error {
	if dir == nil {
		return nil
	}
	ctx, cancel := bounded(ctx, d)
	defer cancel()
	ok, err := dir.Exists(ctx, userID)
	if err != nil {
		return fmt.Errorf("user directory: %w", err)
	}
	if !ok {
		return fmt.Errorf("user: %w", ErrNotFound)
	}
	return nil
}

func nowFrom(c clock.Clock) time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c.Now()
}

// bounded applies d to ctx when d is positive.
func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
