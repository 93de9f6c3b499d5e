package activity

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OancaAdrian/CRM/internal/model"
	"github.com/OancaAdrian/CRM/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "crm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return NewService(st)
}

func intPtr(v int) *int { return &v }

func TestCreateOrUpdate_RequiresCUIAndComment(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreateOrUpdate(context.Background(), Input{CUI: "", Comment: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "firm_id and comment required")

	_, err = svc.CreateOrUpdate(context.Background(), Input{CUI: "123", Comment: "  "})
	require.Error(t, err)
}

func TestCreateOrUpdate_SchedulesFromScore(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.CreateOrUpdate(context.Background(), Input{
		CUI: "RO123456", Comment: "prima discutie", Score: intPtr(2),
	})
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.Equal(t, "123456", res.Activity.CUI, "RO prefix stripped")
	require.NotNil(t, res.Activity.ScheduledDate)
	assert.Equal(t, model.Today().AddDays(3), *res.Activity.ScheduledDate)
}

func TestCreateOrUpdate_ScoreTwentyNeverReschedules(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.CreateOrUpdate(context.Background(), Input{
		CUI: "123456", Comment: "client pierdut", Score: intPtr(20),
	})
	require.NoError(t, err)
	assert.Nil(t, res.Activity.ScheduledDate)
}

func TestCreateOrUpdate_ExplicitDateWins(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.CreateOrUpdate(context.Background(), Input{
		CUI: "123456", Comment: "revin cu oferta", Score: intPtr(5), ScheduledDate: "2026-02-01",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Activity.ScheduledDate)
	assert.Equal(t, "2026-02-01", res.Activity.ScheduledDate.String())
}

func TestCreateOrUpdate_BadDateRejected(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreateOrUpdate(context.Background(), Input{
		CUI: "123456", Comment: "x", ScheduledDate: "mâine",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YYYY-MM-DD")
}

func TestCreateOrUpdate_DuplicateUpdatesInstead(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateOrUpdate(ctx, Input{
		CUI: "123456", Comment: "oferta trimisa", ScheduledDate: "2026-02-01", Score: intPtr(4),
	})
	require.NoError(t, err)

	second, err := svc.CreateOrUpdate(ctx, Input{
		CUI: "123456", Comment: "oferta trimisa", ScheduledDate: "2026-02-01", Score: intPtr(6),
	})
	require.NoError(t, err)
	assert.True(t, second.Updated)
	assert.Equal(t, first.Activity.ID, second.Activity.ID)
	assert.Equal(t, 6, *second.Activity.Score)

	list, err := svc.ListForFirm(ctx, "123456", 0)
	require.NoError(t, err)
	assert.Len(t, list, 1, "no duplicate row")
}

func TestCreateOrUpdate_TypeCreatedOnFirstUse(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.CreateOrUpdate(context.Background(), Input{
		CUI: "123456", Comment: "vizita", TypeName: "contact",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Activity.TypeID)
}

func TestComplete(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateOrUpdate(ctx, Input{CUI: "123456", Comment: "de inchis"})
	require.NoError(t, err)

	require.NoError(t, svc.Complete(ctx, res.Activity.ID))
	require.ErrorIs(t, svc.Complete(ctx, 9999), store.ErrNotFound)

	list, err := svc.ListForFirm(ctx, "123456", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Completed)
}
