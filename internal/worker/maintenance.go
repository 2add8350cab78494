// Package worker runs periodic housekeeping on a cron schedule.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-match-backend/internal/clock"
	"github.com/tbourn/go-match-backend/internal/repo"
	"github.com/tbourn/go-match-backend/internal/search"
)

const (
	defaultBatchSize = 200
	defaultTimeout   = 5 * time.Minute
)

// Maintenance prunes expired idempotency records and removes expired
// demands from the vector index. Expired rows stay in the database so they
// remain readable by id.
type Maintenance struct {
	DB    *gorm.DB
	Index search.Index
	Clock clock.Clock

	BatchSize int
	Timeout   time.Duration // per run

	mu     sync.Mutex
	cursor repo.ExpiryCursor
}

// Report summarizes one maintenance run.
type Report struct {
	IdempotencyPruned int64
	VectorsRemoved    int
}

// RunOnce performs a single pass. Index removal resumes from where the
// previous run stopped, so each expired demand is deleted once per process.
func (m *Maintenance) RunOnce(ctx context.Context) (Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rep Report
	now := m.now()

	n, err := repo.DeleteExpiredIdempotency(ctx, m.DB, now)
	if err != nil {
		return rep, fmt.Errorf("prune idempotency: %w", err)
	}
	rep.IdempotencyPruned = n

	if m.Index == nil {
		return rep, nil
	}
	batch := m.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	for {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		page, err := repo.ListExpiredDemands(ctx, m.DB, m.cursor, now, batch)
		if err != nil {
			return rep, fmt.Errorf("list expired demands: %w", err)
		}
		if len(page) == 0 {
			return rep, nil
		}
		ids := make([]string, len(page))
		for i, p := range page {
			ids[i] = p.ID
		}
		if err := m.Index.Delete(ctx, ids...); err != nil {
			return rep, fmt.Errorf("index delete: %w", err)
		}
		rep.VectorsRemoved += len(ids)
		m.cursor = page[len(page)-1]
		if len(page) < batch {
			return rep, nil
		}
	}
}

func (m *Maintenance) now() time.Time {
	if m.Clock == nil {
		return time.Now().UTC()
	}
	return m.Clock.Now()
}

// Scheduler owns the cron runner for Maintenance.
type Scheduler struct {
	c *cron.Cron
}

// Start schedules m on spec (standard cron or "@every 1h") in UTC. An empty
// spec disables maintenance and returns a nil scheduler.
func Start(spec string, m *Maintenance) (*Scheduler, error) {
	if spec == "" {
		return nil, nil
	}
	if m == nil || m.DB == nil {
		return nil, errors.New("worker: maintenance requires a database")
	}
	lg := cronLogger{l: log.With().Str("component", "maintenance").Logger()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(lg),
		cron.WithChain(cron.Recover(lg), cron.SkipIfStillRunning(lg)),
	)

	timeout := m.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		start := time.Now()
		rep, err := m.RunOnce(ctx)
		ev := lg.l.Info()
		if err != nil {
			ev = lg.l.Error().Err(err)
		}
		ev.Int64("idempotency_pruned", rep.IdempotencyPruned).
			Int("vectors_removed", rep.VectorsRemoved).
			Dur("took", time.Since(start)).
			Msg("maintenance run")
	})
	if err != nil {
		return nil, fmt.Errorf("worker: bad schedule %q: %w", spec, err)
	}
	c.Start()
	return &Scheduler{c: c}, nil
}

// Stop stops scheduling and waits for a running job, bounded by ctx.
// Safe on a nil receiver.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := s.c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ l zerolog.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Debug().Fields(kv).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Error().Err(err).Fields(kv).Msg(msg)
}
