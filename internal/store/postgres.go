package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/OancaAdrian/CRM/internal/db"
	"github.com/OancaAdrian/CRM/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"find_activity_key": `SELECT id, cui, activity_type_id, comment, score, scheduled_date, completed, created_at FROM activities WHERE cui = $1 AND comment = $2 AND scheduled_date IS NOT DISTINCT FROM $3 LIMIT 1`,
	"insert_activity":   `INSERT INTO activities (cui, activity_type_id, comment, score, scheduled_date, completed, created_at) VALUES ($1, $2, $3, $4, $5, false, coalesce($6, now())) RETURNING id, created_at`,
	"complete_activity": `UPDATE activities SET completed = true WHERE id = $1`,
	"get_firm":          `SELECT cui, denumire, judet, localitate, telefon, caen, cifra_afaceri, profit_net, angajati, licente, actualizat_la FROM firms WHERE cui = $1`,
	"list_suggestions":  `SELECT rank, cui, denumire, licente, cifra_afaceri, used FROM suggestions WHERE used = false ORDER BY rank LIMIT $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access (the bulk importers).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS firms (
	cui           TEXT PRIMARY KEY,
	denumire      TEXT NOT NULL,
	judet         TEXT,
	localitate    TEXT,
	telefon       TEXT,
	caen          TEXT,
	cifra_afaceri BIGINT,
	profit_net    BIGINT,
	angajati      INTEGER,
	licente       INTEGER,
	actualizat_la TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS financials_annual (
	id            BIGSERIAL PRIMARY KEY,
	cui           TEXT NOT NULL,
	an            INTEGER NOT NULL,
	cifra_afaceri BIGINT,
	profit_net    BIGINT,
	UNIQUE (cui, an)
);

CREATE TABLE IF NOT EXISTS activity_types (
	id   BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS activities (
	id               BIGSERIAL PRIMARY KEY,
	cui              TEXT NOT NULL,
	activity_type_id BIGINT REFERENCES activity_types(id),
	comment          TEXT NOT NULL,
	score            INTEGER,
	scheduled_date   DATE,
	completed        BOOLEAN NOT NULL DEFAULT false,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS suggestions (
	rank          INTEGER NOT NULL,
	cui           TEXT PRIMARY KEY,
	denumire      TEXT NOT NULL,
	licente       INTEGER,
	cifra_afaceri BIGINT,
	used          BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS caen_codes (
	grupa     TEXT PRIMARY KEY,
	denumire  TEXT NOT NULL,
	nace      TEXT,
	diviziune TEXT
);

CREATE INDEX IF NOT EXISTS idx_firms_denumire ON firms(upper(denumire));
CREATE INDEX IF NOT EXISTS idx_financials_cui_an ON financials_annual(cui, an DESC);
CREATE INDEX IF NOT EXISTS idx_activities_cui ON activities(cui);
CREATE INDEX IF NOT EXISTS idx_activities_sched ON activities(scheduled_date) WHERE completed = false;
CREATE INDEX IF NOT EXISTS idx_suggestions_rank ON suggestions(rank) WHERE used = false;
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Firms ---

const firmSearchSQL = `
SELECT f.cui, f.denumire, f.judet, f.localitate, f.telefon,
       fa.an, fa.cifra_afaceri, fa.profit_net
FROM firms f
LEFT JOIN (
	SELECT DISTINCT ON (cui) cui, an, cifra_afaceri, profit_net
	FROM financials_annual
	ORDER BY cui, an DESC
) fa ON fa.cui = f.cui
`

// SearchFirms looks firms up by CUI (digits, with or without the RO
// prefix already stripped by the caller) or by name fragment.
func (s *PostgresStore) SearchFirms(ctx context.Context, q string, limit int) ([]model.FirmSearchRow, error) {
	query := firmSearchSQL + `WHERE trim(upper(replace(f.cui, ' ', ''))) IN ($1, $2)
   OR upper(f.denumire) LIKE $3
ORDER BY f.denumire
LIMIT $4`

	rows, err := s.pool.Query(ctx, query, q, "RO"+q, "%"+q+"%", limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search firms")
	}
	defer rows.Close()

	var out []model.FirmSearchRow
	for rows.Next() {
		var r model.FirmSearchRow
		var judet, localitate, telefon sql.NullString
		if err := rows.Scan(&r.CUI, &r.Name, &judet, &localitate, &telefon,
			&r.FinancialYear, &r.Revenue, &r.NetProfit); err != nil {
			return nil, eris.Wrap(err, "postgres: scan firm row")
		}
		r.County = judet.String
		r.City = localitate.String
		r.Phone = telefon.String
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: search firms rows")
}

func (s *PostgresStore) GetFirm(ctx context.Context, cui string) (*model.Firm, error) {
	var f model.Firm
	var judet, localitate, telefon, caen sql.NullString
	var updated sql.NullTime

	err := s.pool.QueryRow(ctx,
		`SELECT cui, denumire, judet, localitate, telefon, caen, cifra_afaceri, profit_net, angajati, licente, actualizat_la FROM firms WHERE cui = $1`,
		cui,
	).Scan(&f.CUI, &f.Name, &judet, &localitate, &telefon, &caen,
		&f.Revenue, &f.NetProfit, &f.Employees, &f.Licenses, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get firm %s", cui)
	}
	f.County = judet.String
	f.City = localitate.String
	f.Phone = telefon.String
	f.CAEN = caen.String
	if updated.Valid {
		t := updated.Time
		f.UpdatedAt = &t
	}
	return &f, nil
}

func (s *PostgresStore) LatestFinancial(ctx context.Context, cui string) (*model.Financial, error) {
	var fin model.Financial
	err := s.pool.QueryRow(ctx,
		`SELECT id, cui, an, cifra_afaceri, profit_net FROM financials_annual WHERE cui = $1 ORDER BY an DESC LIMIT 1`,
		cui,
	).Scan(&fin.ID, &fin.CUI, &fin.Year, &fin.Revenue, &fin.NetProfit)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest financial %s", cui)
	}
	return &fin, nil
}

// UpsertFirms bulk-merges registry rows on cui via the temp-table path.
func (s *PostgresStore) UpsertFirms(ctx context.Context, firms []model.Firm) (int64, error) {
	rows := make([][]any, 0, len(firms))
	for _, f := range firms {
		rows = append(rows, []any{
			f.CUI, f.Name, f.County, f.City, f.Phone, f.CAEN,
			f.Revenue, f.NetProfit, f.Employees, f.Licenses, time.Now().UTC(),
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.Upsert{
		Table: "firms",
		Columns: []string{
			"cui", "denumire", "judet", "localitate", "telefon", "caen",
			"cifra_afaceri", "profit_net", "angajati", "licente", "actualizat_la",
		},
		Keys: []string{"cui"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert firms")
}

func (s *PostgresStore) InsertFinancial(ctx context.Context, f model.Financial) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO financials_annual (cui, an, cifra_afaceri, profit_net) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (cui, an) DO UPDATE SET cifra_afaceri = EXCLUDED.cifra_afaceri, profit_net = EXCLUDED.profit_net`,
		f.CUI, f.Year, f.Revenue, f.NetProfit,
	)
	return eris.Wrapf(err, "postgres: insert financial %s/%d", f.CUI, f.Year)
}

// --- Activity types ---

func (s *PostgresStore) GetOrCreateActivityType(ctx context.Context, name string) (*model.ActivityType, error) {
	var at model.ActivityType
	err := s.pool.QueryRow(ctx,
		`INSERT INTO activity_types (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, name`,
		name,
	).Scan(&at.ID, &at.Name)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: activity type %s", name)
	}
	return &at, nil
}

// --- Activities ---

func scheduledArg(day *model.Date) any {
	if day == nil {
		return nil
	}
	return day.Time
}

// createdArg lets importers backdate rows; the zero value defers to the
// database clock.
func createdArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func (s *PostgresStore) FindActivityByKey(ctx context.Context, cui, comment string, day *model.Date) (*model.Activity, error) {
	var a model.Activity
	var sched sql.NullTime
	err := s.pool.QueryRow(ctx,
		`SELECT id, cui, activity_type_id, comment, score, scheduled_date, completed, created_at FROM activities WHERE cui = $1 AND comment = $2 AND scheduled_date IS NOT DISTINCT FROM $3 LIMIT 1`,
		cui, comment, scheduledArg(day),
	).Scan(&a.ID, &a.CUI, &a.TypeID, &a.Comment, &a.Score, &sched, &a.Completed, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find activity for %s", cui)
	}
	if sched.Valid {
		d := model.DateOf(sched.Time)
		a.ScheduledDate = &d
	}
	return &a, nil
}

func (s *PostgresStore) InsertActivity(ctx context.Context, a *model.Activity) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO activities (cui, activity_type_id, comment, score, scheduled_date, completed, created_at) VALUES ($1, $2, $3, $4, $5, false, coalesce($6, now())) RETURNING id, created_at`,
		a.CUI, a.TypeID, a.Comment, a.Score, scheduledArg(a.ScheduledDate), createdArg(a.CreatedAt),
	).Scan(&a.ID, &a.CreatedAt)
	return eris.Wrapf(err, "postgres: insert activity for %s", a.CUI)
}

func (s *PostgresStore) UpdateActivity(ctx context.Context, id int64, patch ActivityPatch) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE activities SET activity_type_id = $1, score = $2, scheduled_date = $3 WHERE id = $4`,
		patch.TypeID, patch.Score, scheduledArg(patch.ScheduledDate), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update activity %d", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CompleteActivity(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE activities SET completed = true WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete activity %d", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const activitySelectSQL = `
SELECT a.id, a.cui, a.activity_type_id, t.name, a.comment, a.score,
       a.scheduled_date, a.completed, a.created_at
FROM activities a
LEFT JOIN activity_types t ON t.id = a.activity_type_id
`

func (s *PostgresStore) ListActivities(ctx context.Context, cui string, limit int) ([]model.Activity, error) {
	rows, err := s.pool.Query(ctx,
		activitySelectSQL+`WHERE a.cui = $1 ORDER BY a.created_at DESC LIMIT $2`,
		cui, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list activities %s", cui)
	}
	defer rows.Close()

	var out []model.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list activities rows")
}

func scanActivity(rows pgx.Rows) (model.Activity, error) {
	var a model.Activity
	var typeName sql.NullString
	var sched sql.NullTime
	if err := rows.Scan(&a.ID, &a.CUI, &a.TypeID, &typeName, &a.Comment, &a.Score,
		&sched, &a.Completed, &a.CreatedAt); err != nil {
		return a, eris.Wrap(err, "postgres: scan activity")
	}
	a.TypeName = typeName.String
	if sched.Valid {
		d := model.DateOf(sched.Time)
		a.ScheduledDate = &d
	}
	return a, nil
}

// --- Agenda ---

const agendaSelectSQL = `
SELECT a.id, a.cui, a.activity_type_id, t.name, a.comment, a.score,
       a.scheduled_date, a.completed, a.created_at, coalesce(f.denumire, '')
FROM activities a
LEFT JOIN activity_types t ON t.id = a.activity_type_id
LEFT JOIN firms f ON f.cui = a.cui
WHERE a.completed = false AND a.scheduled_date IS NOT NULL
`

func (s *PostgresStore) agendaQuery(ctx context.Context, cond, order string, args ...any) ([]model.AgendaItem, error) {
	rows, err := s.pool.Query(ctx, agendaSelectSQL+cond+order, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: agenda query")
	}
	defer rows.Close()

	var out []model.AgendaItem
	for rows.Next() {
		var it model.AgendaItem
		var typeName sql.NullString
		var sched sql.NullTime
		if err := rows.Scan(&it.ID, &it.CUI, &it.TypeID, &typeName, &it.Comment, &it.Score,
			&sched, &it.Completed, &it.CreatedAt, &it.FirmName); err != nil {
			return nil, eris.Wrap(err, "postgres: scan agenda item")
		}
		it.TypeName = typeName.String
		if sched.Valid {
			d := model.DateOf(sched.Time)
			it.ScheduledDate = &d
		}
		out = append(out, it)
	}
	return out, eris.Wrap(rows.Err(), "postgres: agenda rows")
}

func (s *PostgresStore) AgendaDue(ctx context.Context, day model.Date) ([]model.AgendaItem, error) {
	return s.agendaQuery(ctx, ` AND a.scheduled_date = $1`, ` ORDER BY a.created_at`, day.Time)
}

func (s *PostgresStore) AgendaOverdue(ctx context.Context, day model.Date) ([]model.AgendaItem, error) {
	return s.agendaQuery(ctx, ` AND a.scheduled_date < $1`, ` ORDER BY a.scheduled_date, a.created_at`, day.Time)
}

func (s *PostgresStore) AgendaUpcoming(ctx context.Context, day model.Date, horizonDays int) ([]model.AgendaItem, error) {
	return s.agendaQuery(ctx,
		` AND a.scheduled_date > $1 AND a.scheduled_date <= $2`,
		` ORDER BY a.scheduled_date, a.created_at`,
		day.Time, day.AddDays(horizonDays).Time,
	)
}

// --- Suggestions ---

const rebuildSuggestionsSQL = `
INSERT INTO suggestions (rank, cui, denumire, licente, cifra_afaceri, used)
SELECT row_number() OVER (ORDER BY e.licente DESC NULLS LAST, e.cifra_afaceri DESC NULLS LAST, e.cui),
       e.cui, e.denumire, e.licente, e.cifra_afaceri, false
FROM (
	SELECT f.cui, f.denumire, f.licente, f.cifra_afaceri
	FROM firms f
	WHERE NOT EXISTS (SELECT 1 FROM activities a WHERE a.cui = f.cui)
	  AND NOT EXISTS (SELECT 1 FROM suggestions sg WHERE sg.cui = f.cui)
	  AND ($1 = '' OR (coalesce(f.judet, '') NOT ILIKE $1 AND coalesce(f.localitate, '') NOT ILIKE $1))
	ORDER BY f.licente DESC NULLS LAST, f.cifra_afaceri DESC NULLS LAST, f.cui
	LIMIT $2
) e`

// RebuildSuggestions recomputes the unused candidate list inside one
// transaction. Rows already marked used survive the rebuild, so a firm
// taken off the list stays off even before its activity lands.
// Eligibility: no activity row ever, not previously used, and region
// outside the excluded pattern (an empty pattern disables the region
// filter). Ties beyond (licente, cifra_afaceri) break on cui, which
// keeps consecutive rebuilds deterministic.
func (s *PostgresStore) RebuildSuggestions(ctx context.Context, limit int, excludePattern string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: rebuild suggestions begin")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM suggestions WHERE used = false`); err != nil {
		return 0, eris.Wrap(err, "postgres: clear suggestions")
	}
	tag, err := tx.Exec(ctx, rebuildSuggestionsSQL, excludePattern, limit)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: fill suggestions")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: rebuild suggestions commit")
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ListSuggestions(ctx context.Context, n int) ([]model.Suggestion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT rank, cui, denumire, licente, cifra_afaceri, used FROM suggestions WHERE used = false ORDER BY rank LIMIT $1`,
		n,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list suggestions")
	}
	defer rows.Close()

	var out []model.Suggestion
	for rows.Next() {
		var sg model.Suggestion
		if err := rows.Scan(&sg.Rank, &sg.CUI, &sg.Name, &sg.Licenses, &sg.Revenue, &sg.Used); err != nil {
			return nil, eris.Wrap(err, "postgres: scan suggestion")
		}
		out = append(out, sg)
	}
	return out, eris.Wrap(rows.Err(), "postgres: suggestions rows")
}

func (s *PostgresStore) MarkSuggestionsUsed(ctx context.Context, cuis []string) (int64, error) {
	if len(cuis) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `UPDATE suggestions SET used = true WHERE cui = ANY($1)`, cuis)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: mark suggestions used")
	}
	return tag.RowsAffected(), nil
}

// --- CAEN ---

func (s *PostgresStore) UpsertCAENCodes(ctx context.Context, codes []model.CAENCode) (int64, error) {
	rows := make([][]any, 0, len(codes))
	for _, c := range codes {
		rows = append(rows, []any{c.Grupa, c.Name, c.NACE, c.Diviziune})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.Upsert{
		Table:   "caen_codes",
		Columns: []string{"grupa", "denumire", "nace", "diviziune"},
		Keys:    []string{"grupa"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert caen codes")
}

func (s *PostgresStore) LookupCAEN(ctx context.Context, grupa string) (*model.CAENCode, error) {
	var c model.CAENCode
	var nace, div sql.NullString
	err := s.pool.QueryRow(ctx,
		`SELECT grupa, denumire, nace, diviziune FROM caen_codes WHERE grupa = $1`,
		grupa,
	).Scan(&c.Grupa, &c.Name, &nace, &div)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: lookup caen %s", grupa)
	}
	c.NACE = nace.String
	c.Diviziune = div.String
	return &c, nil
}
