// Package services – Matcher
//
// Matcher runs the rate-limited semantic search over demands. Each search
// consumes one unit of the caller's daily allowance before any embedding or
// index work is done; failures after consumption do not refund the unit.
// The relational store is authoritative for liveness: index hits without a
// live row are dropped.
package services

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-match-backend/internal/clock"
	"github.com/tbourn/go-match-backend/internal/domain"
	"github.com/tbourn/go-match-backend/internal/embedding"
	"github.com/tbourn/go-match-backend/internal/quota"
	"github.com/tbourn/go-match-backend/internal/repo"
	"github.com/tbourn/go-match-backend/internal/search"
)

// DefaultTopK is the number of candidates requested from the index.
const DefaultTopK = 10

// RateLimiter is the daily quota contract the matcher depends on.
type RateLimiter interface {
	CheckAndConsume(ctx context.Context, userID string) (quota.Decision, error)
	Peek(ctx context.Context, userID string) (quota.Decision, error)
}

// Matcher performs semantic search over live demands.
type Matcher struct {
	DB       *gorm.DB
	Index    search.Index
	Embedder embedding.Embedder
	Limiter  RateLimiter
	Clock    clock.Clock
	Users    UserDirectory

	TopK        int
	CallTimeout time.Duration
}

// MatchResult is one ranked demand. Contact details are never included.
type MatchResult struct {
	Demand domain.Demand `json:"demand"`
	Score  float64       `json:"score"`
}

// SearchResult carries the ranked matches and the quota after this search.
type SearchResult struct {
	Matches []MatchResult  `json:"matches"`
	Quota   quota.Decision `json:"rate_limit"`
}

// Search validates query, consumes one unit of userID's quota and returns
// live demands ranked by similarity.
func (m *Matcher) Search(ctx context.Context, userID, query string) (*SearchResult, error) {
	tr := otel.Tracer("services/Matcher")
	ctx, span := tr.Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("query.len", utf8.RuneCountInString(query)),
		),
	)
	defer span.End()

	res, outcome, err := m.search(ctx, userID, query)
	searchesTotal.WithLabelValues(outcome).Inc()
	if err != nil && outcome != "invalid" && outcome != "quota_exceeded" {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	return res, err
}

func (m *Matcher) search(ctx context.Context, userID, query string) (*SearchResult, string, error) {
	if err := checkUser(userID); err != nil {
		return nil, "invalid", err
	}
	q, err := cleanText("q", query, QueryMin, QueryMax)
	if err != nil {
		return nil, "invalid", err
	}
	if err := ensureUser(ctx, m.Users, userID, m.CallTimeout); err != nil {
		return nil, "invalid", err
	}

	dec, err := m.Limiter.CheckAndConsume(ctx, userID)
	if err != nil {
		return nil, "store_unavailable", err
	}
	if !dec.Allowed {
		quotaRejections.Inc()
		return nil, "quota_exceeded", &QuotaExceededError{Decision: dec}
	}

	matches, err := m.rank(ctx, q)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("search failed after quota consumption")
		return nil, "failure", err
	}
	return &SearchResult{Matches: matches, Quota: dec}, "ok", nil
}

// rank runs embed, index query and hydration.
func (m *Matcher) rank(ctx context.Context, q string) ([]MatchResult, error) {
	ectx, cancel := bounded(ctx, m.CallTimeout)
	vec, err := m.Embedder.Embed(ectx, embedding.Prepare(q))
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: embed: %v", ErrMatchFailure, err)
	}

	topK := m.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	ictx, cancel := bounded(ctx, m.CallTimeout)
	hits, err := m.Index.Query(ictx, vec, topK)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: index query: %v", ErrMatchFailure, err)
	}
	if len(hits) == 0 {
		return []MatchResult{}, nil
	}

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	hctx, cancel := bounded(ctx, m.CallTimeout)
	rows, err := repo.ListLiveDemandsByIDs(hctx, m.DB, ids, nowFrom(m.Clock))
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: hydrate: %v", ErrMatchFailure, err)
	}
	live := make(map[string]domain.Demand, len(rows))
	for _, d := range rows {
		live[d.ID] = d
	}

	search.SortMatches(hits)
	out := make([]MatchResult, 0, len(rows))
	for _, h := range hits {
		d, ok := live[h.ID]
		if !ok {
			continue
		}
		out = append(out, MatchResult{Demand: d.Redacted(), Score: h.Score})
	}
	return out, nil
}

// Quota reports userID's remaining searches today without consuming any.
func (m *Matcher) Quota(ctx context.Context, userID string) (quota.Decision, error) {
	tr := otel.Tracer("services/Matcher")
	ctx, span := tr.Start(ctx, "Quota",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if err := checkUser(userID); err != nil {
		return quota.Decision{}, err
	}
	if err := ensureUser(ctx, m.Users, userID, m.CallTimeout); err != nil {
		return quota.Decision{}, err
	}
	return m.Limiter.Peek(ctx, userID)
}
