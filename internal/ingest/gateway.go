// Package ingest implements the store gateway: it resolves a candidate
// against existing records, merges duplicates and writes the result through
// a bounded retry policy.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pace/ingest-service/internal/match"
	"pace/ingest-service/internal/merge"
	"pace/ingest-service/internal/model"
	"pace/ingest-service/internal/normalize"
	"pace/ingest-service/internal/retry"
	"pace/ingest-service/internal/store"
)

// ErrMissingIdentifier is returned when a candidate with no duplicate target
// reaches the new-record path without a deterministic id. It is not retried.
var ErrMissingIdentifier = errors.New("candidate must include a deterministic id")

// Result describes one successful upsert.
type Result struct {
	ID      string
	Created bool
	Match   match.Kind
	Score   int
}

// Gateway is the single write path for opportunities.
type Gateway struct {
	store   store.Store
	matcher *match.Matcher
	policy  retry.Policy
	now     func() time.Time
	onRetry func(attempt int, err error)
	log     *zap.Logger
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithClock overrides time.Now for FetchedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithRetryHook is called after each failed attempt that will be retried.
func WithRetryHook(fn func(attempt int, err error)) Option {
	return func(g *Gateway) { g.onRetry = fn }
}

// NewGateway wires a Gateway over s. The matcher must read from the same store.
func NewGateway(s store.Store, m *match.Matcher, policy retry.Policy, log *zap.Logger, opts ...Option) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	g := &Gateway{
		store:   s,
		matcher: m,
		policy:  policy,
		now:     time.Now,
		log:     log.With(zap.String("component", "gateway")),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Upsert deduplicates candidate and writes it. Each attempt re-reads the
// store, so a retried write merges against current state. Exhausted retries
// return an error wrapping retry.ErrMaxAttemptsExceeded.
func (g *Gateway) Upsert(ctx context.Context, candidate model.Opportunity) (Result, error) {
	if candidate.ApplyLink != "" {
		candidate.ApplyLink = normalize.URL(candidate.ApplyLink)
	}

	policy := g.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		g.log.Warn("store write failed, retrying",
			zap.String("apply_link", candidate.ApplyLink),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if g.onRetry != nil {
			g.onRetry(attempt, err)
		}
	}

	var res Result
	err := policy.Do(ctx, func(ctx context.Context) error {
		var err error
		res, err = g.upsertOnce(ctx, candidate)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (g *Gateway) upsertOnce(ctx context.Context, candidate model.Opportunity) (Result, error) {
	m, err := g.matcher.Match(ctx, candidate)
	if err != nil {
		return Result{}, fmt.Errorf("match: %w", err)
	}
	now := g.now().UTC()

	if m.Existing != nil {
		merged := merge.Merge(*m.Existing, candidate, now)
		if err := g.store.Upsert(ctx, merged); err != nil {
			return Result{}, err
		}
		return Result{ID: merged.ID, Match: m.Kind, Score: m.Score}, nil
	}

	if candidate.ID == "" {
		return Result{}, retry.Permanent(ErrMissingIdentifier)
	}
	// Merging into an empty record applies the same list dedup and trimming
	// rules to a brand-new document.
	body := merge.Merge(model.Opportunity{ID: candidate.ID}, candidate, now)
	if err := g.store.Upsert(ctx, body); err != nil {
		return Result{}, err
	}
	return Result{ID: body.ID, Created: true, Match: match.KindNone, Score: m.Score}, nil
}
