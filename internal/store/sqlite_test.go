package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OancaAdrian/CRM/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func seedFirms(t *testing.T, st *SQLiteStore) {
	t.Helper()
	_, err := st.UpsertFirms(context.Background(), []model.Firm{
		{CUI: "123456", Name: "ARABESQUE SRL", County: "GALATI", City: "Galati", Licenses: intPtr(5), Revenue: int64Ptr(10_000_000)},
		{CUI: "654321", Name: "CONSTRUCT GALATI SA", County: "GALATI", City: "Galati", Licenses: intPtr(2), Revenue: int64Ptr(5_000_000)},
		{CUI: "777777", Name: "PORT OPERATOR SA", County: "CONSTANTA", City: "Constanta", Licenses: intPtr(9), Revenue: int64Ptr(90_000_000)},
	})
	require.NoError(t, err)
}

// --- Firms ---

func TestSQLite_FirmRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedFirms(t, st)

	f, err := st.GetFirm(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, "ARABESQUE SRL", f.Name)
	assert.Equal(t, "GALATI", f.County)
	require.NotNil(t, f.Licenses)
	assert.Equal(t, 5, *f.Licenses)
	require.NotNil(t, f.UpdatedAt)
}

func TestSQLite_GetFirm_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetFirm(context.Background(), "000000")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_UpsertFirms_Overwrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedFirms(t, st)

	_, err := st.UpsertFirms(context.Background(), []model.Firm{
		{CUI: "123456", Name: "ARABESQUE SRL", County: "GALATI", Licenses: intPtr(7)},
	})
	require.NoError(t, err)

	f, err := st.GetFirm(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, 7, *f.Licenses)
}

func TestSQLite_SearchFirms_ByCUIAndPrefix(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedFirms(t, st)

	rows, err := st.SearchFirms(context.Background(), "123456", 50)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ARABESQUE SRL", rows[0].Name)
}

func TestSQLite_SearchFirms_ByNameFragment(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedFirms(t, st)

	rows, err := st.SearchFirms(context.Background(), "GALATI", 50)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "CONSTRUCT GALATI SA", rows[0].Name)
}

func TestSQLite_SearchFirms_JoinsLatestFinancial(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedFirms(t, st)

	require.NoError(t, st.InsertFinancial(context.Background(), model.Financial{CUI: "123456", Year: 2023, Revenue: int64Ptr(8_000_000)}))
	require.NoError(t, st.InsertFinancial(context.Background(), model.Financial{CUI: "123456", Year: 2024, Revenue: int64Ptr(12_000_000)}))

	rows, err := st.SearchFirms(context.Background(), "ARABESQUE", 50)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].FinancialYear)
	assert.Equal(t, 2024, *rows[0].FinancialYear)
	assert.Equal(t, int64(12_000_000), *rows[0].Revenue)
}

// --- Activities ---

func TestSQLite_ActivityInsertAndFindByKey(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	day, err := model.ParseDate("2025-06-01")
	require.NoError(t, err)

	a := &model.Activity{CUI: "123456", Comment: "sunat, revin", Score: intPtr(3), ScheduledDate: &day}
	require.NoError(t, st.InsertActivity(ctx, a))
	assert.NotZero(t, a.ID)
	assert.False(t, a.CreatedAt.IsZero())

	found, err := st.FindActivityByKey(ctx, "123456", "sunat, revin", &day)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, a.ID, found.ID)
	require.NotNil(t, found.ScheduledDate)
	assert.Equal(t, "2025-06-01", found.ScheduledDate.String())

	// Same comment on a different day is a different natural key.
	other := day.AddDays(1)
	none, err := st.FindActivityByKey(ctx, "123456", "sunat, revin", &other)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSQLite_FindActivityByKey_NullDate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := &model.Activity{CUI: "123456", Comment: "fara data"}
	require.NoError(t, st.InsertActivity(ctx, a))

	found, err := st.FindActivityByKey(ctx, "123456", "fara data", nil)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Nil(t, found.ScheduledDate)
}

func TestSQLite_UpdateAndCompleteActivity(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := &model.Activity{CUI: "123456", Comment: "oferta"}
	require.NoError(t, st.InsertActivity(ctx, a))

	day, _ := model.ParseDate("2025-07-01")
	require.NoError(t, st.UpdateActivity(ctx, a.ID, ActivityPatch{Score: intPtr(5), ScheduledDate: &day}))

	list, err := st.ListActivities(ctx, "123456", 50)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 5, *list[0].Score)
	assert.Equal(t, "2025-07-01", list[0].ScheduledDate.String())
	assert.False(t, list[0].Completed)

	require.NoError(t, st.CompleteActivity(ctx, a.ID))
	list, err = st.ListActivities(ctx, "123456", 50)
	require.NoError(t, err)
	assert.True(t, list[0].Completed)
}

func TestSQLite_CompleteActivity_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.ErrorIs(t, st.CompleteActivity(context.Background(), 99), ErrNotFound)
}

func TestSQLite_ActivityTypes_GetOrCreate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := st.GetOrCreateActivityType(ctx, "contact")
	require.NoError(t, err)
	again, err := st.GetOrCreateActivityType(ctx, "contact")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	other, err := st.GetOrCreateActivityType(ctx, "oferta")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

// --- Agenda ---

func TestSQLite_AgendaPartitions(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedFirms(t, st)

	day, _ := model.ParseDate("2025-06-10")
	overdue := day.AddDays(-3)
	upcoming := day.AddDays(5)
	beyond := day.AddDays(8)

	mk := func(comment string, d model.Date) {
		require.NoError(t, st.InsertActivity(ctx, &model.Activity{CUI: "123456", Comment: comment, ScheduledDate: &d}))
	}
	mk("azi", day)
	mk("restanta", overdue)
	mk("saptamana", upcoming)
	mk("departe", beyond)

	due, err := st.AgendaDue(ctx, day)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "azi", due[0].Comment)
	assert.Equal(t, "ARABESQUE SRL", due[0].FirmName)

	over, err := st.AgendaOverdue(ctx, day)
	require.NoError(t, err)
	require.Len(t, over, 1)
	assert.Equal(t, "restanta", over[0].Comment)

	up, err := st.AgendaUpcoming(ctx, day, 7)
	require.NoError(t, err)
	require.Len(t, up, 1)
	assert.Equal(t, "saptamana", up[0].Comment)
}

func TestSQLite_AgendaSkipsCompleted(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	day, _ := model.ParseDate("2025-06-10")
	a := &model.Activity{CUI: "123456", Comment: "done", ScheduledDate: &day}
	require.NoError(t, st.InsertActivity(ctx, a))
	require.NoError(t, st.CompleteActivity(ctx, a.ID))

	due, err := st.AgendaDue(ctx, day)
	require.NoError(t, err)
	assert.Empty(t, due)
}

// --- Suggestions ---

func TestSQLite_RebuildSuggestions_RanksAndExcludes(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedFirms(t, st)

	n, err := st.RebuildSuggestions(ctx, 20, "constan%")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := st.ListSuggestions(ctx, 20)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// PORT OPERATOR (Constanta) excluded despite the top licente count.
	assert.Equal(t, "ARABESQUE SRL", got[0].Name)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, "CONSTRUCT GALATI SA", got[1].Name)
	assert.Equal(t, 2, got[1].Rank)
}

func TestSQLite_RebuildSuggestions_EmptyPatternDisablesRegionFilter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedFirms(t, st)

	n, err := st.RebuildSuggestions(ctx, 20, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	got, err := st.ListSuggestions(ctx, 20)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// With no region excluded the Constanta firm ranks first on licente.
	assert.Equal(t, "PORT OPERATOR SA", got[0].Name)
}

func TestSQLite_RebuildSuggestions_FirmWithActivityDisappears(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedFirms(t, st)

	_, err := st.RebuildSuggestions(ctx, 20, "constan%")
	require.NoError(t, err)

	require.NoError(t, st.InsertActivity(ctx, &model.Activity{CUI: "123456", Comment: "contactat"}))

	_, err = st.RebuildSuggestions(ctx, 20, "constan%")
	require.NoError(t, err)

	got, err := st.ListSuggestions(ctx, 20)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "654321", got[0].CUI)
}

func TestSQLite_RebuildSuggestions_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedFirms(t, st)

	_, err := st.RebuildSuggestions(ctx, 20, "constan%")
	require.NoError(t, err)
	first, err := st.ListSuggestions(ctx, 20)
	require.NoError(t, err)

	_, err = st.RebuildSuggestions(ctx, 20, "constan%")
	require.NoError(t, err)
	second, err := st.ListSuggestions(ctx, 20)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSQLite_MarkSuggestionsUsed_HidesFromList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedFirms(t, st)

	_, err := st.RebuildSuggestions(ctx, 20, "constan%")
	require.NoError(t, err)

	n, err := st.MarkSuggestionsUsed(ctx, []string{"123456"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := st.ListSuggestions(ctx, 20)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "654321", got[0].CUI)
}

func TestSQLite_RebuildSuggestions_UsedRowsSurvive(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedFirms(t, st)

	_, err := st.RebuildSuggestions(ctx, 20, "constan%")
	require.NoError(t, err)
	_, err = st.MarkSuggestionsUsed(ctx, []string{"123456"})
	require.NoError(t, err)

	// The used firm has no activity yet, but must not reappear.
	_, err = st.RebuildSuggestions(ctx, 20, "constan%")
	require.NoError(t, err)

	got, err := st.ListSuggestions(ctx, 20)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "654321", got[0].CUI)
}

func TestSQLite_ListSuggestions_RespectsLimit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedFirms(t, st)

	_, err := st.RebuildSuggestions(ctx, 20, "constan%")
	require.NoError(t, err)

	got, err := st.ListSuggestions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

// --- CAEN ---

func TestSQLite_CAENUpsertAndLookup(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.UpsertCAENCodes(ctx, []model.CAENCode{
		{Grupa: "4673", Name: "Comert cu ridicata al materialului lemnos", NACE: "46.73", Diviziune: "46"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	c, err := st.LookupCAEN(ctx, "4673")
	require.NoError(t, err)
	assert.Equal(t, "46.73", c.NACE)

	// Re-import replaces the denumire.
	_, err = st.UpsertCAENCodes(ctx, []model.CAENCode{
		{Grupa: "4673", Name: "Comert cu ridicata lemn si materiale", NACE: "46.73", Diviziune: "46"},
	})
	require.NoError(t, err)
	c, err = st.LookupCAEN(ctx, "4673")
	require.NoError(t, err)
	assert.Equal(t, "Comert cu ridicata lemn si materiale", c.Name)

	_, err = st.LookupCAEN(ctx, "0000")
	require.ErrorIs(t, err, ErrNotFound)
}
