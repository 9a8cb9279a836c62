// Package match decides whether a candidate opportunity already exists in the
// store: first by exact canonical apply link, then by fuzzy title/company
// similarity over the most recently fetched records.
package match

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"pace/ingest-service/internal/model"
	"pace/ingest-service/internal/store"
)

const (
	// DefaultLimit is how many recent records the fuzzy scan reads.
	DefaultLimit = 100
	// DefaultThreshold is the minimum score for a fuzzy duplicate.
	DefaultThreshold = 85

	titleWeight   = 0.75
	companyWeight = 0.25
)

// Kind reports how a match was found.
type Kind string

// Match kinds.
const (
	KindNone  Kind = "none"
	KindExact Kind = "exact"
	KindFuzzy Kind = "fuzzy"
)

// Finder is the read side of the store the matcher needs.
type Finder interface {
	FindByApplyLink(ctx context.Context, link string) (*model.Opportunity, error)
	ListRecent(ctx context.Context, limit int) ([]model.Opportunity, error)
}

// Result is the outcome of Match. Existing is nil when Kind is KindNone.
type Result struct {
	Kind     Kind
	Existing *model.Opportunity
	Score    int
}

// Matcher finds the duplicate target of a candidate, if any.
type Matcher struct {
	finder    Finder
	limit     int
	threshold int
	log       *zap.Logger
}

// New constructs a Matcher. Non-positive limit or threshold fall back to
// DefaultLimit and DefaultThreshold.
func New(finder Finder, limit, threshold int, log *zap.Logger) *Matcher {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Matcher{finder: finder, limit: limit, threshold: threshold, log: log.With(zap.String("component", "matcher"))}
}

// Match looks the candidate up by its (already canonical) apply link and
// falls back to a fuzzy scan of the last m.limit fetched records.
func (m *Matcher) Match(ctx context.Context, candidate model.Opportunity) (Result, error) {
	if candidate.ApplyLink != "" {
		existing, err := m.finder.FindByApplyLink(ctx, candidate.ApplyLink)
		switch {
		case err == nil:
			return Result{Kind: KindExact, Existing: existing, Score: 100}, nil
		case !errors.Is(err, store.ErrNotFound):
			return Result{}, fmt.Errorf("find by apply link: %w", err)
		}
	}

	recent, err := m.finder.ListRecent(ctx, m.limit)
	if err != nil {
		return Result{}, fmt.Errorf("list recent: %w", err)
	}

	best, bestScore := -1, 0
	for i := range recent {
		score := Score(candidate.Title, candidate.Company, recent[i].Title, recent[i].Company)
		// Strictly greater: the first maximum in scan order wins.
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 || bestScore < m.threshold {
		return Result{Kind: KindNone, Score: bestScore}, nil
	}

	m.log.Debug("fuzzy duplicate found",
		zap.String("candidate_title", candidate.Title),
		zap.String("existing_id", recent[best].ID),
		zap.Int("score", bestScore),
	)
	existing := recent[best]
	return Result{Kind: KindFuzzy, Existing: &existing, Score: bestScore}, nil
}

// Score weights title similarity at 0.75 and company similarity at 0.25 and
// truncates to an integer. Company adds nothing when both sides are empty.
func Score(title1, company1, title2, company2 string) int {
	score := titleWeight * TokenSortRatio(title1, title2)
	if company1 != "" || company2 != "" {
		score += companyWeight * TokenSortRatio(company1, company2)
	}
	return int(score)
}
