package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/OancaAdrian/CRM/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Dates are kept
// as ISO text; timestamps as RFC 3339 text.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqldb.Exec(pragma); err != nil {
			sqldb.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqldb}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS firms (
	cui           TEXT PRIMARY KEY,
	denumire      TEXT NOT NULL,
	judet         TEXT,
	localitate    TEXT,
	telefon       TEXT,
	caen          TEXT,
	cifra_afaceri INTEGER,
	profit_net    INTEGER,
	angajati      INTEGER,
	licente       INTEGER,
	actualizat_la TEXT
);

CREATE TABLE IF NOT EXISTS financials_annual (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	cui           TEXT NOT NULL,
	an            INTEGER NOT NULL,
	cifra_afaceri INTEGER,
	profit_net    INTEGER,
	UNIQUE (cui, an)
);

CREATE TABLE IF NOT EXISTS activity_types (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS activities (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	cui              TEXT NOT NULL,
	activity_type_id INTEGER REFERENCES activity_types(id),
	comment          TEXT NOT NULL,
	score            INTEGER,
	scheduled_date   TEXT,
	completed        INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);

CREATE TABLE IF NOT EXISTS suggestions (
	rank          INTEGER NOT NULL,
	cui           TEXT PRIMARY KEY,
	denumire      TEXT NOT NULL,
	licente       INTEGER,
	cifra_afaceri INTEGER,
	used          INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS caen_codes (
	grupa     TEXT PRIMARY KEY,
	denumire  TEXT NOT NULL,
	nace      TEXT,
	diviziune TEXT
);

CREATE INDEX IF NOT EXISTS idx_firms_denumire ON firms(denumire);
CREATE INDEX IF NOT EXISTS idx_financials_cui_an ON financials_annual(cui, an DESC);
CREATE INDEX IF NOT EXISTS idx_activities_cui ON activities(cui);
CREATE INDEX IF NOT EXISTS idx_activities_sched ON activities(scheduled_date) WHERE completed = 0;
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return eris.Wrap(s.db.Close(), "sqlite: close")
}

// sqliteDate renders a nullable date for storage.
func sqliteDate(day *model.Date) any {
	if day == nil {
		return nil
	}
	return day.String()
}

// timestampLayouts covers the formats sqlite emits for stored stamps.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseDatePtr(s sql.NullString) *model.Date {
	if !s.Valid || s.String == "" {
		return nil
	}
	d, err := model.ParseDate(s.String)
	if err != nil {
		return nil
	}
	return &d
}

// --- Firms ---

const sqliteFirmSearchSQL = `
SELECT f.cui, f.denumire, f.judet, f.localitate, f.telefon,
       fa.an, fa.cifra_afaceri, fa.profit_net
FROM firms f
LEFT JOIN (
	SELECT cui, an, cifra_afaceri, profit_net,
	       row_number() OVER (PARTITION BY cui ORDER BY an DESC) AS rn
	FROM financials_annual
) fa ON fa.cui = f.cui AND fa.rn = 1
`

func (s *SQLiteStore) SearchFirms(ctx context.Context, q string, limit int) ([]model.FirmSearchRow, error) {
	rows, err := s.db.QueryContext(ctx,
		sqliteFirmSearchSQL+`WHERE trim(upper(replace(f.cui, ' ', ''))) IN (?, ?)
   OR upper(f.denumire) LIKE ?
ORDER BY f.denumire
LIMIT ?`,
		q, "RO"+q, "%"+q+"%", limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search firms")
	}
	defer rows.Close()

	var out []model.FirmSearchRow
	for rows.Next() {
		var r model.FirmSearchRow
		var judet, localitate, telefon sql.NullString
		if err := rows.Scan(&r.CUI, &r.Name, &judet, &localitate, &telefon,
			&r.FinancialYear, &r.Revenue, &r.NetProfit); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan firm row")
		}
		r.County = judet.String
		r.City = localitate.String
		r.Phone = telefon.String
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: search firms rows")
}

func (s *SQLiteStore) GetFirm(ctx context.Context, cui string) (*model.Firm, error) {
	var f model.Firm
	var judet, localitate, telefon, caen, updated sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT cui, denumire, judet, localitate, telefon, caen, cifra_afaceri, profit_net, angajati, licente, actualizat_la FROM firms WHERE cui = ?`,
		cui,
	).Scan(&f.CUI, &f.Name, &judet, &localitate, &telefon, &caen,
		&f.Revenue, &f.NetProfit, &f.Employees, &f.Licenses, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get firm %s", cui)
	}
	f.County = judet.String
	f.City = localitate.String
	f.Phone = telefon.String
	f.CAEN = caen.String
	if updated.Valid {
		t := parseTimestamp(updated.String)
		f.UpdatedAt = &t
	}
	return &f, nil
}

func (s *SQLiteStore) LatestFinancial(ctx context.Context, cui string) (*model.Financial, error) {
	var fin model.Financial
	err := s.db.QueryRowContext(ctx,
		`SELECT id, cui, an, cifra_afaceri, profit_net FROM financials_annual WHERE cui = ? ORDER BY an DESC LIMIT 1`,
		cui,
	).Scan(&fin.ID, &fin.CUI, &fin.Year, &fin.Revenue, &fin.NetProfit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest financial %s", cui)
	}
	return &fin, nil
}

func (s *SQLiteStore) UpsertFirms(ctx context.Context, firms []model.Firm) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert firms begin")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO firms (cui, denumire, judet, localitate, telefon, caen, cifra_afaceri, profit_net, angajati, licente, actualizat_la)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cui) DO UPDATE SET
			denumire = excluded.denumire, judet = excluded.judet,
			localitate = excluded.localitate, telefon = excluded.telefon,
			caen = excluded.caen, cifra_afaceri = excluded.cifra_afaceri,
			profit_net = excluded.profit_net, angajati = excluded.angajati,
			licente = excluded.licente, actualizat_la = excluded.actualizat_la`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert firms prepare")
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	var n int64
	for _, f := range firms {
		if _, err := stmt.ExecContext(ctx,
			f.CUI, f.Name, f.County, f.City, f.Phone, f.CAEN,
			f.Revenue, f.NetProfit, f.Employees, f.Licenses, now,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert firm %s", f.CUI)
		}
		n++
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: upsert firms commit")
}

func (s *SQLiteStore) InsertFinancial(ctx context.Context, f model.Financial) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO financials_annual (cui, an, cifra_afaceri, profit_net) VALUES (?, ?, ?, ?)
		 ON CONFLICT (cui, an) DO UPDATE SET cifra_afaceri = excluded.cifra_afaceri, profit_net = excluded.profit_net`,
		f.CUI, f.Year, f.Revenue, f.NetProfit,
	)
	return eris.Wrapf(err, "sqlite: insert financial %s/%d", f.CUI, f.Year)
}

// --- Activity types ---

func (s *SQLiteStore) GetOrCreateActivityType(ctx context.Context, name string) (*model.ActivityType, error) {
	var at model.ActivityType
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO activity_types (name) VALUES (?)
		 ON CONFLICT (name) DO UPDATE SET name = excluded.name
		 RETURNING id, name`,
		name,
	).Scan(&at.ID, &at.Name)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: activity type %s", name)
	}
	return &at, nil
}

// --- Activities ---

func (s *SQLiteStore) FindActivityByKey(ctx context.Context, cui, comment string, day *model.Date) (*model.Activity, error) {
	var a model.Activity
	var sched sql.NullString
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, cui, activity_type_id, comment, score, scheduled_date, completed, created_at FROM activities WHERE cui = ? AND comment = ? AND scheduled_date IS ? LIMIT 1`,
		cui, comment, sqliteDate(day),
	).Scan(&a.ID, &a.CUI, &a.TypeID, &a.Comment, &a.Score, &sched, &a.Completed, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find activity for %s", cui)
	}
	a.ScheduledDate = parseDatePtr(sched)
	a.CreatedAt = parseTimestamp(created)
	return &a, nil
}

func (s *SQLiteStore) InsertActivity(ctx context.Context, a *model.Activity) error {
	var createdIn any
	if !a.CreatedAt.IsZero() {
		createdIn = a.CreatedAt.UTC().Format(time.RFC3339)
	}
	var created string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO activities (cui, activity_type_id, comment, score, scheduled_date, completed, created_at) VALUES (?, ?, ?, ?, ?, 0, coalesce(?, strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))) RETURNING id, created_at`,
		a.CUI, a.TypeID, a.Comment, a.Score, sqliteDate(a.ScheduledDate), createdIn,
	).Scan(&a.ID, &created)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert activity for %s", a.CUI)
	}
	a.CreatedAt = parseTimestamp(created)
	return nil
}

func (s *SQLiteStore) UpdateActivity(ctx context.Context, id int64, patch ActivityPatch) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE activities SET activity_type_id = ?, score = ?, scheduled_date = ? WHERE id = ?`,
		patch.TypeID, patch.Score, sqliteDate(patch.ScheduledDate), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update activity %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) CompleteActivity(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE activities SET completed = 1 WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete activity %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const sqliteActivitySQL = `
SELECT a.id, a.cui, a.activity_type_id, t.name, a.comment, a.score,
       a.scheduled_date, a.completed, a.created_at
FROM activities a
LEFT JOIN activity_types t ON t.id = a.activity_type_id
`

func (s *SQLiteStore) ListActivities(ctx context.Context, cui string, limit int) ([]model.Activity, error) {
	rows, err := s.db.QueryContext(ctx,
		sqliteActivitySQL+`WHERE a.cui = ? ORDER BY a.created_at DESC LIMIT ?`,
		cui, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list activities %s", cui)
	}
	defer rows.Close()

	var out []model.Activity
	for rows.Next() {
		var a model.Activity
		var typeName, sched sql.NullString
		var created string
		if err := rows.Scan(&a.ID, &a.CUI, &a.TypeID, &typeName, &a.Comment, &a.Score,
			&sched, &a.Completed, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan activity")
		}
		a.TypeName = typeName.String
		a.ScheduledDate = parseDatePtr(sched)
		a.CreatedAt = parseTimestamp(created)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list activities rows")
}

// --- Agenda ---

const sqliteAgendaSQL = `
SELECT a.id, a.cui, a.activity_type_id, t.name, a.comment, a.score,
       a.scheduled_date, a.completed, a.created_at, coalesce(f.denumire, '')
FROM activities a
LEFT JOIN activity_types t ON t.id = a.activity_type_id
LEFT JOIN firms f ON f.cui = a.cui
WHERE a.completed = 0 AND a.scheduled_date IS NOT NULL
`

func (s *SQLiteStore) agendaQuery(ctx context.Context, cond, order string, args ...any) ([]model.AgendaItem, error) {
	rows, err := s.db.QueryContext(ctx, sqliteAgendaSQL+cond+order, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: agenda query")
	}
	defer rows.Close()

	var out []model.AgendaItem
	for rows.Next() {
		var it model.AgendaItem
		var typeName, sched sql.NullString
		var created string
		if err := rows.Scan(&it.ID, &it.CUI, &it.TypeID, &typeName, &it.Comment, &it.Score,
			&sched, &it.Completed, &created, &it.FirmName); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan agenda item")
		}
		it.TypeName = typeName.String
		it.ScheduledDate = parseDatePtr(sched)
		it.CreatedAt = parseTimestamp(created)
		out = append(out, it)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: agenda rows")
}

func (s *SQLiteStore) AgendaDue(ctx context.Context, day model.Date) ([]model.AgendaItem, error) {
	return s.agendaQuery(ctx, ` AND a.scheduled_date = ?`, ` ORDER BY a.created_at`, day.String())
}

func (s *SQLiteStore) AgendaOverdue(ctx context.Context, day model.Date) ([]model.AgendaItem, error) {
	return s.agendaQuery(ctx, ` AND a.scheduled_date < ?`, ` ORDER BY a.scheduled_date, a.created_at`, day.String())
}

func (s *SQLiteStore) AgendaUpcoming(ctx context.Context, day model.Date, horizonDays int) ([]model.AgendaItem, error) {
	return s.agendaQuery(ctx,
		` AND a.scheduled_date > ? AND a.scheduled_date <= ?`,
		` ORDER BY a.scheduled_date, a.created_at`,
		day.String(), day.AddDays(horizonDays).String(),
	)
}

// --- Suggestions ---

const sqliteRebuildSQL = `
INSERT INTO suggestions (rank, cui, denumire, licente, cifra_afaceri, used)
SELECT row_number() OVER (ORDER BY e.licente DESC NULLS LAST, e.cifra_afaceri DESC NULLS LAST, e.cui),
       e.cui, e.denumire, e.licente, e.cifra_afaceri, 0
FROM (
	SELECT f.cui, f.denumire, f.licente, f.cifra_afaceri
	FROM firms f
	WHERE NOT EXISTS (SELECT 1 FROM activities a WHERE a.cui = f.cui)
	  AND NOT EXISTS (SELECT 1 FROM suggestions sg WHERE sg.cui = f.cui)
	  AND (? = '' OR (lower(coalesce(f.judet, '')) NOT LIKE lower(?) AND lower(coalesce(f.localitate, '')) NOT LIKE lower(?)))
	ORDER BY f.licente DESC NULLS LAST, f.cifra_afaceri DESC NULLS LAST, f.cui
	LIMIT ?
) e`

func (s *SQLiteStore) RebuildSuggestions(ctx context.Context, limit int, excludePattern string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rebuild suggestions begin")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM suggestions WHERE used = 0`); err != nil {
		return 0, eris.Wrap(err, "sqlite: clear suggestions")
	}
	res, err := tx.ExecContext(ctx, sqliteRebuildSQL, excludePattern, excludePattern, excludePattern, limit)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: fill suggestions")
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: rebuild suggestions commit")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQLiteStore) ListSuggestions(ctx context.Context, n int) ([]model.Suggestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rank, cui, denumire, licente, cifra_afaceri, used FROM suggestions WHERE used = 0 ORDER BY rank LIMIT ?`,
		n,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list suggestions")
	}
	defer rows.Close()

	var out []model.Suggestion
	for rows.Next() {
		var sg model.Suggestion
		if err := rows.Scan(&sg.Rank, &sg.CUI, &sg.Name, &sg.Licenses, &sg.Revenue, &sg.Used); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan suggestion")
		}
		out = append(out, sg)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: suggestions rows")
}

func (s *SQLiteStore) MarkSuggestionsUsed(ctx context.Context, cuis []string) (int64, error) {
	if len(cuis) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cuis)), ",")
	args := make([]any, len(cuis))
	for i, c := range cuis {
		args[i] = c
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE suggestions SET used = 1 WHERE cui IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: mark suggestions used")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// --- CAEN ---

func (s *SQLiteStore) UpsertCAENCodes(ctx context.Context, codes []model.CAENCode) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert caen begin")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO caen_codes (grupa, denumire, nace, diviziune) VALUES (?, ?, ?, ?)
		ON CONFLICT (grupa) DO UPDATE SET
			denumire = excluded.denumire, nace = excluded.nace, diviziune = excluded.diviziune`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert caen prepare")
	}
	defer stmt.Close()

	var n int64
	for _, c := range codes {
		if _, err := stmt.ExecContext(ctx, c.Grupa, c.Name, c.NACE, c.Diviziune); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert caen %s", c.Grupa)
		}
		n++
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: upsert caen commit")
}

func (s *SQLiteStore) LookupCAEN(ctx context.Context, grupa string) (*model.CAENCode, error) {
	var c model.CAENCode
	var nace, div sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT grupa, denumire, nace, diviziune FROM caen_codes WHERE grupa = ?`,
		grupa,
	).Scan(&c.Grupa, &c.Name, &nace, &div)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: lookup caen %s", grupa)
	}
	c.NACE = nace.String
	c.Diviziune = div.String
	return &c, nil
}
