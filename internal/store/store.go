// Package store persists firms, activities and the derived suggestion
// list. PostgresStore is the production backend; SQLiteStore backs
// local development and the CLI importers.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/OancaAdrian/CRM/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// ActivityPatch updates the mutable columns of an existing activity
// when a duplicate create lands on the same natural key.
type ActivityPatch struct {
	TypeID        *int64
	Score         *int
	ScheduledDate *model.Date
}

// Store defines the persistence interface for the CRM.
type Store interface {
	// Firms (reference data, written only by the importers)
	SearchFirms(ctx context.Context, q string, limit int) ([]model.FirmSearchRow, error)
	GetFirm(ctx context.Context, cui string) (*model.Firm, error)
	LatestFinancial(ctx context.Context, cui string) (*model.Financial, error)
	UpsertFirms(ctx context.Context, firms []model.Firm) (int64, error)
	InsertFinancial(ctx context.Context, f model.Financial) error

	// Activity types
	GetOrCreateActivityType(ctx context.Context, name string) (*model.ActivityType, error)

	// Activities
	FindActivityByKey(ctx context.Context, cui, comment string, day *model.Date) (*model.Activity, error)
	InsertActivity(ctx context.Context, a *model.Activity) error
	UpdateActivity(ctx context.Context, id int64, patch ActivityPatch) error
	CompleteActivity(ctx context.Context, id int64) error
	ListActivities(ctx context.Context, cui string, limit int) ([]model.Activity, error)

	// Agenda partitions over non-completed, scheduled activities
	AgendaDue(ctx context.Context, day model.Date) ([]model.AgendaItem, error)
	AgendaOverdue(ctx context.Context, day model.Date) ([]model.AgendaItem, error)
	AgendaUpcoming(ctx context.Context, day model.Date, horizonDays int) ([]model.AgendaItem, error)

	// Suggestions (derived, replaced wholesale on rebuild)
	RebuildSuggestions(ctx context.Context, limit int, excludePattern string) (int64, error)
	ListSuggestions(ctx context.Context, n int) ([]model.Suggestion, error)
	MarkSuggestionsUsed(ctx context.Context, cuis []string) (int64, error)

	// CAEN nomenclature
	UpsertCAENCodes(ctx context.Context, codes []model.CAENCode) (int64, error)
	LookupCAEN(ctx context.Context, grupa string) (*model.CAENCode, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
