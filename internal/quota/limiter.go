package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-match-backend/internal/clock"
)

// DefaultDailyMax is the number of searches a user may run per UTC day.
const DefaultDailyMax = 10

// Decision is a quota snapshot. ResetAt is always the next UTC midnight
// after the call and is recomputed on every call, never stored.
type Decision struct {
	Allowed   bool      `json:"-"`
	Remaining int       `json:"remaining"`
	Total     int       `json:"total"`
	ResetAt   time.Time `json:"reset_at"`
	// Degraded marks a Peek answered without consulting the store.
	Degraded bool `json:"degraded,omitempty"`
}

// DailyLimiter meters an action per (user, UTC day).
type DailyLimiter struct {
	store        CounterStore
	clock        clock.Clock
	max          int
	prefix       string
	timeout      time.Duration
	peekFailOpen bool
}

// Option configures a DailyLimiter.
type Option func(*DailyLimiter)

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option { return func(l *DailyLimiter) { l.clock = c } }

// WithDailyMax sets the per-day allowance (values < 1 are ignored).
func WithDailyMax(n int) Option {
	return func(l *DailyLimiter) {
		if n >= 1 {
			l.max = n
		}
	}
}

// WithKeyPrefix sets the counter key namespace.
func WithKeyPrefix(p string) Option { return func(l *DailyLimiter) { l.prefix = p } }

// WithTimeout bounds each store call. Zero means no extra deadline.
func WithTimeout(d time.Duration) Option { return func(l *DailyLimiter) { l.timeout = d } }

// WithPeekFailOpen makes Peek report a full allowance when the store is
// unavailable. CheckAndConsume always fails closed.
func WithPeekFailOpen(on bool) Option { return func(l *DailyLimiter) { l.peekFailOpen = on } }

// NewDailyLimiter builds a limiter over store.
func NewDailyLimiter(store CounterStore, opts ...Option) *DailyLimiter {
	l := &DailyLimiter{
		store:  store,
		clock:  clock.System{},
		max:    DefaultDailyMax,
		prefix: "ratelimit",
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Total is the configured daily allowance.
func (l *DailyLimiter) Total() int { return l.max }

// Key returns the counter key for userID on the UTC day containing now.
func (l *DailyLimiter) Key(userID string, now time.Time) string {
	return fmt.Sprintf("%s:%s:%s", l.prefix, userID, clock.DayKey(now))
}

// CheckAndConsume takes one unit of today's allowance for userID. When the
// allowance is exhausted it returns Allowed=false and mutates nothing. Store
// failures return ErrStoreUnavailable.
func (l *DailyLimiter) CheckAndConsume(ctx context.Context, userID string) (Decision, error) {
	now := l.clock.Now()
	d := Decision{Total: l.max, ResetAt: clock.NextUTCMidnight(now)}

	cctx, cancel := l.withTimeout(ctx)
	defer cancel()
	count, ok, err := l.store.IncrBelow(cctx, l.Key(userID, now), int64(l.max), clock.UntilUTCMidnight(now))
	if err != nil {
		return d, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	d.Allowed = ok
	d.Remaining = remaining(l.max, count)
	return d, nil
}

// Peek reports today's allowance without consuming or creating anything.
func (l *DailyLimiter) Peek(ctx context.Context, userID string) (Decision, error) {
	now := l.clock.Now()
	d := Decision{Total: l.max, ResetAt: clock.NextUTCMidnight(now)}

	cctx, cancel := l.withTimeout(ctx)
	defer cancel()
	count, err := l.store.Get(cctx, l.Key(userID, now))
	if err != nil {
		if l.peekFailOpen {
			zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("quota peek degraded: reporting full allowance")
			d.Remaining = l.max
			d.Allowed = true
			d.Degraded = true
			return d, nil
		}
		return d, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	d.Remaining = remaining(l.max, count)
	d.Allowed = d.Remaining > 0
	return d, nil
}

func (l *DailyLimiter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, l.timeout)
}

func remaining(max int, count int64) int {
	r := int64(max) - count
	if r < 0 {
		return 0
	}
	return int(r)
}
