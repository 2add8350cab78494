package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-match-backend/internal/clock"
	"github.com/tbourn/go-match-backend/internal/domain"
	"github.com/tbourn/go-match-backend/internal/embedding"
	"github.com/tbourn/go-match-backend/internal/events"
	"github.com/tbourn/go-match-backend/internal/payments"
	"github.com/tbourn/go-match-backend/internal/quota"
	"github.com/tbourn/go-match-backend/internal/repo"
	"github.com/tbourn/go-match-backend/internal/search"
)

const testDim = 64

var t0 = time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakeEmbedder delegates to fn.
type fakeEmbedder struct {
	fn  func(ctx context.Context, text string) ([]float32, error)
	dim int
}

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.fn(ctx, text)
}
func (f fakeEmbedder) Dimension() int { return f.dim }

// fakeIndex wraps a MemoryIndex with optional failures.
type fakeIndex struct {
	*search.MemoryIndex
	upsertErr error
	queryErr  error
}

func (f *fakeIndex) Upsert(ctx context.Context, e search.Entry) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.MemoryIndex.Upsert(ctx, e)
}

func (f *fakeIndex) Query(ctx context.Context, v []float32, k int) ([]search.Match, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.MemoryIndex.Query(ctx, v, k)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.ApplicationCreated
	err    error
}

func (p *recordingPublisher) ApplicationCreated(_ context.Context, ev events.ApplicationCreated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// countingProvider counts Lookup calls and can inject failures.
type countingProvider struct {
	*payments.MemoryProvider
	mu        sync.Mutex
	lookups   int
	lookupErr error
}

func (c *countingProvider) Lookup(ctx context.Context, id string) (payments.Payment, error) {
	c.mu.Lock()
	c.lookups++
	err := c.lookupErr
	c.mu.Unlock()
	if err != nil {
		return payments.Payment{}, err
	}
	return c.MemoryProvider.Lookup(ctx, id)
}

func (c *countingProvider) lookupCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookups
}

type mapDirectory map[string]bool

func (m mapDirectory) Exists(_ context.Context, id string) (bool, error) { return m[id], nil }

type fixture struct {
	db      *gorm.DB
	clk     *clock.Manual
	index   *fakeIndex
	store   *quota.MemoryStore
	limiter *quota.DailyLimiter
	pay     *countingProvider
	pub     *recordingPublisher

	demands  *DemandService
	matcher  *Matcher
	gateway  *ApplicationGateway
	payments *PaymentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:    newSvcDB(t),
		clk:   clock.NewManual(t0),
		index: &fakeIndex{MemoryIndex: search.NewMemoryIndex(search.WithDimension(testDim))},
		pay:   &countingProvider{MemoryProvider: payments.NewMemoryProvider()},
		pub:   &recordingPublisher{},
	}
	f.store = quota.NewMemoryStore(f.clk)
	f.limiter = quota.NewDailyLimiter(f.store, quota.WithClock(f.clk), quota.WithDailyMax(10))
	emb := embedding.NewHashEmbedder(testDim)

	f.demands = &DemandService{DB: f.db, Index: f.index, Embedder: emb, Clock: f.clk, CallTimeout: time.Second}
	f.matcher = &Matcher{DB: f.db, Index: f.index, Embedder: emb, Limiter: f.limiter, Clock: f.clk, CallTimeout: time.Second}
	f.gateway = &ApplicationGateway{DB: f.db, Payments: f.pay, Events: f.pub, Clock: f.clk, CallTimeout: time.Second}
	f.payments = &PaymentService{DB: f.db, Payments: f.pay, Clock: f.clk, FeeCents: 1000, Currency: "usd", CallTimeout: time.Second}
	return f
}

const (
	demandText = "Looking for an experienced plumber to repair a leaking kitchen sink and replace old pipes."
	supplyText = "Licensed plumber with ten years of experience, available this week."
	queryText  = "need a plumber to repair a leaking kitchen sink"
)

func (f *fixture) postDemand(t *testing.T, userID string, days int) *domain.Demand {
	t.Helper()
	d, err := f.demands.Create(context.Background(), CreateDemandInput{
		UserID:  userID,
		Content: demandText,
		Email:   userID + "@Example.com",
		Phone:   "+1 555 0100",
		Days:    days,
	})
	if err != nil {
		t.Fatalf("create demand: %v", err)
	}
	return d
}

// settledPayment creates and settles an intent for (demand, user).
func (f *fixture) settledPayment(t *testing.T, demandID, userID string) string {
	t.Helper()
	in, err := f.pay.CreateIntent(context.Background(), 1000, "usd", map[string]string{
		payments.MetaDemandID: demandID,
		payments.MetaUserID:   userID,
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	f.pay.Settle(in.ID)
	return in.ID
}

func (f *fixture) apply(demandID, userID, paymentID string) (*domain.Supply, error) {
	return f.gateway.CreateApplication(context.Background(), CreateApplicationInput{
		UserID:    userID,
		DemandID:  demandID,
		Content:   supplyText,
		Email:     userID + "@example.com",
		PaymentID: paymentID,
	})
}

func countSupplies(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&domain.Supply{}).Count(&n).Error; err != nil {
		t.Fatalf("count supplies: %v", err)
	}
	return n
}

func isValidation(err error, field string) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && (field == "" || ve.Field == field)
}

func runes(n int) string { return strings.Repeat("a", n) }
