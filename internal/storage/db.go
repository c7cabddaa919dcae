package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"sponsorcheck/internal"
)

const (
	KeySponsors    = "sponsors"
	KeyLastUpdated = "lastUpdated"
	KeyTotalCount  = "totalCount"
	KeyEnabled     = "isEnabled"
)

type DB struct {
	conn *sql.DB
	hub  *notifier
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrap(err, "storage: create data dir")
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "storage: open")
	}
	// Single connection: writers serialize and :memory: stays one database.
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, eris.Wrapf(err, "storage: exec %s", pragma)
		}
	}

	db := &DB{conn: conn, hub: newNotifier()}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	d.hub.closeAll()
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS sponsors (
  key TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  town TEXT,
  county TEXT,
  route TEXT
);

CREATE TABLE IF NOT EXISTS refresh_runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  success INTEGER NOT NULL,
  count INTEGER NOT NULL DEFAULT 0,
  error TEXT,
  startedAt TEXT NOT NULL,
  finishedAt TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_refresh_runs_startedAt ON refresh_runs(startedAt);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return eris.Wrap(err, "storage: migrate")
}

// ReplaceSponsors swaps the whole register in one transaction and records
// lastUpdated and totalCount alongside it.
func (d *DB) ReplaceSponsors(ctx context.Context, records []internal.SponsorRecord, at time.Time) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "storage: begin")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sponsors`); err != nil {
		return eris.Wrap(err, "storage: clear sponsors")
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO sponsors (key, name, town, county, route) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(key) DO NOTHING
`)
	if err != nil {
		return eris.Wrap(err, "storage: prepare insert")
	}
	defer stmt.Close()

	count := 0
	for _, r := range records {
		if r.Key == "" {
			continue
		}
		res, err := stmt.ExecContext(ctx, r.Key, r.Name, nullable(r.Town), nullable(r.County), nullable(r.Route))
		if err != nil {
			return eris.Wrapf(err, "storage: insert sponsor %q", r.Key)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			count++
		}
	}

	if err := setMetadata(ctx, tx, KeyLastUpdated, at.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if err := setMetadata(ctx, tx, KeyTotalCount, strconv.Itoa(count)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "storage: commit sponsors")
	}
	d.hub.publish(KeySponsors)
	return nil
}

func (d *DB) ListSponsorKeys(ctx context.Context) ([]string, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT key FROM sponsors ORDER BY key`)
	if err != nil {
		return nil, eris.Wrap(err, "storage: list sponsor keys")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, eris.Wrap(err, "storage: scan sponsor key")
		}
		out = append(out, key)
	}
	return out, eris.Wrap(rows.Err(), "storage: list sponsor keys")
}

func (d *DB) ListSponsors(ctx context.Context) ([]internal.SponsorRecord, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT key, name, town, county, route FROM sponsors ORDER BY key`)
	if err != nil {
		return nil, eris.Wrap(err, "storage: list sponsors")
	}
	defer rows.Close()

	var out []internal.SponsorRecord
	for rows.Next() {
		r, err := scanSponsor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "storage: list sponsors")
}

func (d *DB) GetSponsor(ctx context.Context, key string) (*internal.SponsorRecord, error) {
	row := d.conn.QueryRowContext(ctx, `SELECT key, name, town, county, route FROM sponsors WHERE key = ?`, key)
	r, err := scanSponsor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSponsor(row rowScanner) (internal.SponsorRecord, error) {
	var r internal.SponsorRecord
	var town, county, route sql.NullString
	if err := row.Scan(&r.Key, &r.Name, &town, &county, &route); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, eris.Wrap(err, "storage: scan sponsor")
	}
	r.Town = town.String
	r.County = county.String
	r.Route = route.String
	return r, nil
}

// Enabled reports the isEnabled flag; an unset flag means enabled.
func (d *DB) Enabled(ctx context.Context) (bool, error) {
	v, err := d.GetMetadata(ctx, KeyEnabled)
	if err != nil {
		return true, err
	}
	if v == nil {
		return true, nil
	}
	enabled, err := strconv.ParseBool(*v)
	if err != nil {
		return true, nil
	}
	return enabled, nil
}

func (d *DB) SetEnabled(ctx context.Context, enabled bool) error {
	if err := setMetadata(ctx, d.conn, KeyEnabled, strconv.FormatBool(enabled)); err != nil {
		return err
	}
	d.hub.publish(KeyEnabled)
	return nil
}

func (d *DB) LastUpdated(ctx context.Context) (*time.Time, error) {
	v, err := d.GetMetadata(ctx, KeyLastUpdated)
	if err != nil || v == nil {
		return nil, err
	}
	parsed, err := time.Parse(time.RFC3339, *v)
	if err != nil {
		return nil, nil
	}
	return &parsed, nil
}

func (d *DB) Status(ctx context.Context) (internal.StoreStatus, error) {
	var st internal.StoreStatus
	var err error

	if st.LastUpdated, err = d.LastUpdated(ctx); err != nil {
		return st, err
	}
	if st.Enabled, err = d.Enabled(ctx); err != nil {
		return st, err
	}
	count, err := d.GetMetadata(ctx, KeyTotalCount)
	if err != nil {
		return st, err
	}
	if count != nil {
		st.TotalCount, _ = strconv.Atoi(*count)
	}
	return st, nil
}

func (d *DB) InsertRefreshRun(ctx context.Context, res internal.RefreshResult) error {
	var errText *string
	if res.Err != nil {
		msg := res.Err.Error()
		errText = &msg
	}
	success := 0
	if res.Success {
		success = 1
	}
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO refresh_runs (traceId, success, count, error, startedAt, finishedAt)
VALUES (?, ?, ?, ?, ?, ?)
`, res.TraceID, success, res.Count, errText,
		res.StartedAt.UTC().Format(time.RFC3339Nano), res.FinishedAt.UTC().Format(time.RFC3339Nano))
	return eris.Wrap(err, "storage: insert refresh run")
}

func (d *DB) ListRefreshRuns(ctx context.Context, limit int) ([]internal.RefreshRun, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT id, traceId, success, count, COALESCE(error, ''), startedAt, finishedAt
FROM refresh_runs ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "storage: list refresh runs")
	}
	defer rows.Close()

	var out []internal.RefreshRun
	for rows.Next() {
		var run internal.RefreshRun
		var success int
		if err := rows.Scan(&run.ID, &run.TraceID, &success, &run.Count, &run.Error, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "storage: scan refresh run")
		}
		run.Success = success == 1
		out = append(out, run)
	}
	return out, eris.Wrap(rows.Err(), "storage: list refresh runs")
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func setMetadata(ctx context.Context, ex execer, key, value string) error {
	_, err := ex.ExecContext(ctx, `
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return eris.Wrapf(err, "storage: set metadata %s", key)
}

func (d *DB) GetMetadata(ctx context.Context, key string) (*string, error) {
	var value string
	err := d.conn.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "storage: get metadata %s", key)
	}
	return &value, nil
}

// Subscribe registers for change notifications on sponsors and isEnabled.
func (d *DB) Subscribe() *Subscription {
	return d.hub.subscribe()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
