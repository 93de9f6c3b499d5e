// Package agenda assembles the daily follow-up view: what is due, what
// slipped, what the coming week holds, and who to call next.
package agenda

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/OancaAdrian/CRM/internal/model"
	"github.com/OancaAdrian/CRM/internal/store"
	"github.com/OancaAdrian/CRM/internal/suggest"
)

// UpcomingHorizonDays bounds the "upcoming" bucket to the next week.
const UpcomingHorizonDays = 7

// Service builds agenda views.
type Service struct {
	store  store.Store
	ranker *suggest.Ranker
}

// NewService creates a Service.
func NewService(st store.Store, ranker *suggest.Ranker) *Service {
	return &Service{store: st, ranker: ranker}
}

// Get returns the agenda for day. The four reads are independent, so
// they run concurrently on the pool.
func (s *Service) Get(ctx context.Context, day model.Date) (*model.Agenda, error) {
	ag := &model.Agenda{Day: day}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ag.Due, err = s.store.AgendaDue(gctx, day)
		return err
	})
	g.Go(func() error {
		var err error
		ag.Overdue, err = s.store.AgendaOverdue(gctx, day)
		return err
	})
	g.Go(func() error {
		var err error
		ag.Upcoming, err = s.store.AgendaUpcoming(gctx, day, UpcomingHorizonDays)
		return err
	})
	g.Go(func() error {
		var err error
		ag.Suggestions, err = s.ranker.TakeNext(gctx, 0)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "agenda: get")
	}

	// Frontends iterate these unconditionally; never hand out nil.
	if ag.Due == nil {
		ag.Due = []model.AgendaItem{}
	}
	if ag.Overdue == nil {
		ag.Overdue = []model.AgendaItem{}
	}
	if ag.Upcoming == nil {
		ag.Upcoming = []model.AgendaItem{}
	}
	if ag.Suggestions == nil {
		ag.Suggestions = []model.Suggestion{}
	}
	return ag, nil
}
