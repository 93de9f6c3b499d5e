// Package suggest maintains the ranked list of outreach candidates:
// firms that were never contacted, outside the excluded region, ordered
// by licence count then revenue.
package suggest

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/OancaAdrian/CRM/internal/model"
	"github.com/OancaAdrian/CRM/internal/store"
)

// DefaultLimit is the candidate list size when none is configured.
const DefaultLimit = 20

// Ranker rebuilds and serves the suggestion list.
type Ranker struct {
	store         store.Store
	limit         int
	excludeRegion string
}

// NewRanker creates a Ranker. excludeRegion is a case-insensitive
// region prefix ("constan" excludes Constanța in all spellings).
func NewRanker(st store.Store, limit int, excludeRegion string) *Ranker {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Ranker{store: st, limit: limit, excludeRegion: excludeRegion}
}

// pattern returns the LIKE prefix pattern, or "" when no region is
// excluded. The stores skip the filter entirely on "".
func (r *Ranker) pattern() string {
	region := strings.TrimSpace(r.excludeRegion)
	if region == "" {
		return ""
	}
	return region + "%"
}

// Rebuild recomputes the whole candidate list. Concurrent rebuilds are
// last-writer-wins; the list is a sales convenience, not a ledger.
func (r *Ranker) Rebuild(ctx context.Context) (int64, error) {
	n, err := r.store.RebuildSuggestions(ctx, r.limit, r.pattern())
	if err != nil {
		return 0, eris.Wrap(err, "suggest: rebuild")
	}
	zap.L().Info("suggestions rebuilt", zap.Int64("candidates", n), zap.Int("limit", r.limit))
	return n, nil
}

// TakeNext returns up to n unused candidates in rank order.
func (r *Ranker) TakeNext(ctx context.Context, n int) ([]model.Suggestion, error) {
	if n <= 0 || n > r.limit {
		n = r.limit
	}
	out, err := r.store.ListSuggestions(ctx, n)
	return out, eris.Wrap(err, "suggest: take next")
}

// MarkUsed flags the given firms and rebuilds so the freed slots are
// backfilled with the next best candidates.
func (r *Ranker) MarkUsed(ctx context.Context, cuis []string) (int64, error) {
	marked, err := r.store.MarkSuggestionsUsed(ctx, cuis)
	if err != nil {
		return 0, eris.Wrap(err, "suggest: mark used")
	}
	if _, err := r.Rebuild(ctx); err != nil {
		return marked, err
	}
	return marked, nil
}
