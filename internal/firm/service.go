// Package firm serves registry lookups: search by CUI or name fragment
// and the full firm detail view.
package firm

import (
	"context"

	"github.com/OancaAdrian/CRM/internal/model"
	"github.com/OancaAdrian/CRM/internal/store"
	"github.com/OancaAdrian/CRM/internal/textutil"
)

// detailActivityLimit caps the activity history on the detail view.
const detailActivityLimit = 200

// Service answers firm queries.
type Service struct {
	store store.Store
}

// NewService creates a Service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

func searchLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 200:
		return 200
	default:
		return limit
	}
}

// Search finds firms by CUI (with or without the RO prefix) or by a
// diacritic-folded name fragment.
func (s *Service) Search(ctx context.Context, q string, limit int) ([]model.FirmSearchRow, error) {
	norm := textutil.NormalizeQuery(q)
	if textutil.IsDigits(textutil.NormalizeCUI(q)) {
		norm = textutil.NormalizeCUI(q)
	}
	return s.store.SearchFirms(ctx, norm, searchLimit(limit))
}

// Get returns the firm with its latest financial year and recent
// activity history. store.ErrNotFound propagates when the CUI is
// unknown.
func (s *Service) Get(ctx context.Context, cui string) (*model.FirmDetail, error) {
	norm := textutil.NormalizeCUI(cui)

	f, err := s.store.GetFirm(ctx, norm)
	if err != nil {
		return nil, err
	}

	fin, err := s.store.LatestFinancial(ctx, norm)
	if err != nil {
		return nil, err
	}

	acts, err := s.store.ListActivities(ctx, norm, detailActivityLimit)
	if err != nil {
		return nil, err
	}
	if acts == nil {
		acts = []model.Activity{}
	}

	return &model.FirmDetail{Firm: *f, LatestFinancial: fin, Activities: acts}, nil
}
