// Package activity logs sales actions against firms and computes their
// follow-up dates.
package activity

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/OancaAdrian/CRM/internal/model"
	"github.com/OancaAdrian/CRM/internal/schedule"
	"github.com/OancaAdrian/CRM/internal/store"
	"github.com/OancaAdrian/CRM/internal/textutil"
)

// ErrValidation marks caller errors that should surface as HTTP 400.
var ErrValidation = eris.New("activity: validation")

// Input is a create-or-update request for one activity.
type Input struct {
	CUI           string `json:"firm_id"`
	TypeName      string `json:"type,omitempty"`
	Comment       string `json:"comment"`
	Score         *int   `json:"score,omitempty"`
	ScheduledDate string `json:"scheduled_date,omitempty"`
}

// Result reports the stored activity and whether an existing row was
// updated instead of a new one inserted.
type Result struct {
	Activity model.Activity
	Updated  bool
}

// Service coordinates activity writes with follow-up scheduling.
type Service struct {
	store store.Store
}

// NewService creates a Service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// listLimit clamps a requested page size the way the old API did.
func listLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// CreateOrUpdate validates the input, resolves the follow-up date from
// the explicit value or the score table, and upserts by the natural key
// (cui, comment, scheduled day). A duplicate refreshes the existing row
// rather than creating a twin.
func (s *Service) CreateOrUpdate(ctx context.Context, in Input) (*Result, error) {
	cui := textutil.NormalizeCUI(in.CUI)
	comment := strings.TrimSpace(in.Comment)
	if cui == "" || comment == "" {
		return nil, eris.Wrap(ErrValidation, "firm_id and comment required")
	}

	day, err := schedule.Resolve(model.Today(), in.Score, in.ScheduledDate)
	if err != nil {
		return nil, eris.Wrap(ErrValidation, err.Error())
	}

	var typeID *int64
	if name := strings.TrimSpace(in.TypeName); name != "" {
		at, err := s.store.GetOrCreateActivityType(ctx, name)
		if err != nil {
			return nil, err
		}
		typeID = &at.ID
	}

	existing, err := s.store.FindActivityByKey(ctx, cui, comment, day)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		patch := store.ActivityPatch{TypeID: typeID, Score: in.Score, ScheduledDate: day}
		if err := s.store.UpdateActivity(ctx, existing.ID, patch); err != nil {
			return nil, err
		}
		existing.TypeID = typeID
		existing.Score = in.Score
		existing.ScheduledDate = day
		zap.L().Info("activity deduplicated",
			zap.String("cui", cui), zap.Int64("id", existing.ID))
		return &Result{Activity: *existing, Updated: true}, nil
	}

	a := model.Activity{
		CUI:           cui,
		TypeID:        typeID,
		Comment:       comment,
		Score:         in.Score,
		ScheduledDate: day,
	}
	if err := s.store.InsertActivity(ctx, &a); err != nil {
		return nil, err
	}
	return &Result{Activity: a}, nil
}

// Complete flips the completion flag of one activity.
func (s *Service) Complete(ctx context.Context, id int64) error {
	return s.store.CompleteActivity(ctx, id)
}

// ListForFirm returns the newest activities of a firm.
func (s *Service) ListForFirm(ctx context.Context, cui string, limit int) ([]model.Activity, error) {
	return s.store.ListActivities(ctx, textutil.NormalizeCUI(cui), listLimit(limit))
}
