package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"
)

// stall blocks a statement until its context is done while on is set.
func stall(on *atomic.Bool) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		if !on.Load() {
			return
		}
		select {
		case <-time.After(2 * time.Second):
		case <-tx.Statement.Context.Done():
			_ = tx.AddError(tx.Statement.Context.Err())
		}
	}
}

func TestMatcher_Search_SlowHydrationTimesOut(t *testing.T) {
	f := newFixture(t)
	f.postDemand(t, "alice", 7)

	var slow atomic.Bool
	if err := f.db.Callback().Query().Before("gorm:query").Register("test:stall_query", stall(&slow)); err != nil {
		t.Fatalf("register callback: %v", err)
	}
	f.matcher.CallTimeout = 50 * time.Millisecond
	slow.Store(true)

	start := time.Now()
	_, err := f.matcher.Search(context.Background(), "bob", queryText)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrMatchFailure) {
		t.Fatalf("want ErrMatchFailure, got %v", err)
	}
	if elapsed > time.Second {
		t.Fatalf("search took %v; hydration was not bounded", elapsed)
	}
}

func TestApplicationGateway_Create_SlowInsertTimesOut(t *testing.T) {
	f := newFixture(t)
	d := f.postDemand(t, "alice", 7)
	pid := f.settledPayment(t, d.ID, "bob")

	var slow atomic.Bool
	if err := f.db.Callback().Create().Before("gorm:create").Register("test:stall_create", stall(&slow)); err != nil {
		t.Fatalf("register callback: %v", err)
	}
	f.gateway.CallTimeout = 50 * time.Millisecond
	slow.Store(true)

	start := time.Now()
	_, err := f.apply(d.ID, "bob", pid)
	elapsed := time.Since(start)
	slow.Store(false)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
	if elapsed > time.Second {
		t.Fatalf("create took %v; insert was not bounded", elapsed)
	}
	if n := countSupplies(t, f.db); n != 0 {
		t.Fatalf("want no supply rows, got %d", n)
	}
}

func TestApplicationGateway_Get_SlowLookupTimesOut(t *testing.T) {
	f := newFixture(t)
	d := f.postDemand(t, "alice", 7)
	s, err := f.apply(d.ID, "bob", f.settledPayment(t, d.ID, "bob"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	var slow atomic.Bool
	if err := f.db.Callback().Query().Before("gorm:query").Register("test:stall_get", stall(&slow)); err != nil {
		t.Fatalf("register callback: %v", err)
	}
	f.gateway.CallTimeout = 50 * time.Millisecond
	slow.Store(true)

	start := time.Now()
	_, err = f.gateway.Get(context.Background(), "bob", s.ID)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("get took %v", elapsed)
	}
}

func TestDemandService_Create_SlowInsertTimesOut(t *testing.T) {
	f := newFixture(t)

	var slow atomic.Bool
	if err := f.db.Callback().Create().Before("gorm:create").Register("test:stall_demand", stall(&slow)); err != nil {
		t.Fatalf("register callback: %v", err)
	}
	f.demands.CallTimeout = 50 * time.Millisecond
	slow.Store(true)

	_, err := f.demands.Create(context.Background(), CreateDemandInput{
		UserID:  "alice",
		Content: demandText,
		Email:   "alice@example.com",
		Days:    7,
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
	if f.index.Len() != 0 {
		t.Fatalf("index written for a failed insert")
	}
}
