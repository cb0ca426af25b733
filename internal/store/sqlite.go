package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/bluewater-supply/partsync/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	id              TEXT PRIMARY KEY,
	catalog_version TEXT NOT NULL,
	created_at      DATETIME NOT NULL,
	entry_count     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_entries (
	snapshot_id    TEXT NOT NULL REFERENCES snapshots(id),
	part_number    TEXT NOT NULL,
	sku            TEXT NOT NULL,
	description    TEXT NOT NULL,
	category       TEXT NOT NULL DEFAULT '',
	unit_price     REAL,
	last_updated   DATETIME,
	source_catalog TEXT NOT NULL,
	vendor         TEXT NOT NULL,
	status         TEXT NOT NULL,
	PRIMARY KEY (snapshot_id, part_number)
);

CREATE TABLE IF NOT EXISTS fetch_runs (
	id               TEXT PRIMARY KEY,
	catalog_version  TEXT NOT NULL,
	catalog_checksum TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'running',
	started_at       DATETIME NOT NULL,
	completed_at     DATETIME,
	total_items      INTEGER NOT NULL DEFAULT 0,
	found            INTEGER NOT NULL DEFAULT 0,
	not_found        INTEGER NOT NULL DEFAULT 0,
	failed           INTEGER NOT NULL DEFAULT 0,
	skipped          INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS checkpoints (
	run_id         TEXT NOT NULL REFERENCES fetch_runs(id),
	part_number    TEXT NOT NULL,
	source_status  TEXT NOT NULL,
	unit_price     REAL,
	fetched_at     DATETIME NOT NULL,
	attempts       INTEGER NOT NULL,
	error_type     TEXT NOT NULL DEFAULT '',
	error_message  TEXT NOT NULL DEFAULT '',
	page_reference TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, part_number)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON snapshots(created_at);
CREATE INDEX IF NOT EXISTS idx_fetch_runs_started_at ON fetch_runs(started_at);
CREATE INDEX IF NOT EXISTS idx_fetch_runs_status ON fetch_runs(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *model.Snapshot) (*model.Snapshot, error) {
	stored := *snap
	stored.ID = uuid.New().String()
	stored.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin snapshot tx")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, catalog_version, created_at, entry_count) VALUES (?, ?, ?, ?)`,
		stored.ID, stored.CatalogVersion, stored.CreatedAt, len(stored.Entries),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert snapshot")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshot_entries
		 (snapshot_id, part_number, sku, description, category, unit_price, last_updated, source_catalog, vendor, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare entry insert")
	}
	defer stmt.Close()

	for i := range stored.Entries {
		e := &stored.Entries[i]
		_, err := stmt.ExecContext(ctx,
			stored.ID, e.PartNumber, e.SKU, e.Description, e.Category,
			nullFloat(e.UnitPrice), nullTime(e.LastUpdated), e.SourceCatalog, e.Vendor, string(e.Status),
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert entry %s", e.PartNumber)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit snapshot")
	}
	return &stored, nil
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error) {
	var snap model.Snapshot
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, catalog_version, created_at, entry_count FROM snapshots WHERE id = ?`,
		id,
	).Scan(&snap.ID, &snap.CatalogVersion, &snap.CreatedAt, &count)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "snapshot %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get snapshot %s", id)
	}

	snap.Entries, err = s.snapshotEntries(ctx, snap.ID)
	if err != nil {
		return nil, err
	}
	if len(snap.Entries) != count {
		return nil, eris.Errorf("sqlite: snapshot %s corrupt: header says %d entries, found %d", id, count, len(snap.Entries))
	}
	return &snap, nil
}

func (s *SQLiteStore) snapshotEntries(ctx context.Context, id string) ([]model.ReconciledEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT part_number, sku, description, category, unit_price, last_updated, source_catalog, vendor, status
		 FROM snapshot_entries WHERE snapshot_id = ? ORDER BY part_number`,
		id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query entries for snapshot %s", id)
	}
	defer rows.Close()

	var entries []model.ReconciledEntry
	for rows.Next() {
		var e model.ReconciledEntry
		var price sql.NullFloat64
		var updated sql.NullTime
		err := rows.Scan(&e.PartNumber, &e.SKU, &e.Description, &e.Category,
			&price, &updated, &e.SourceCatalog, &e.Vendor, &e.Status)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan entry for snapshot %s", id)
		}
		e.UnitPrice = floatPtr(price)
		e.LastUpdated = timePtr(updated)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: iterate entries")
}

func (s *SQLiteStore) LatestSnapshot(ctx context.Context) (*model.Snapshot, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM snapshots ORDER BY created_at DESC, id DESC LIMIT 1`,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "no snapshots stored")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest snapshot")
	}
	return s.GetSnapshot(ctx, id)
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, limit int) ([]model.SnapshotMeta, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, catalog_version, created_at, entry_count FROM snapshots
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshots")
	}
	defer rows.Close()

	var metas []model.SnapshotMeta
	for rows.Next() {
		var m model.SnapshotMeta
		if err := rows.Scan(&m.ID, &m.CatalogVersion, &m.CreatedAt, &m.EntryCount); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot meta")
		}
		metas = append(metas, m)
	}
	return metas, eris.Wrap(rows.Err(), "sqlite: list snapshots iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, catalogVersion, catalogChecksum string, totalItems int) (*model.FetchRun, error) {
	run := &model.FetchRun{
		ID:              uuid.New().String(),
		CatalogVersion:  catalogVersion,
		CatalogChecksum: catalogChecksum,
		Status:          model.RunStatusRunning,
		StartedAt:       time.Now().UTC(),
		TotalItems:      totalItems,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fetch_runs (id, catalog_version, catalog_checksum, status, started_at, total_items)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.CatalogVersion, run.CatalogChecksum, string(run.Status), run.StartedAt, run.TotalItems,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *model.FetchRun) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE fetch_runs SET status = ?, completed_at = ?, total_items = ?, found = ?, not_found = ?, failed = ?, skipped = ?
		 WHERE id = ?`,
		string(run.Status), nullTime(run.CompletedAt), run.TotalItems,
		run.Found, run.NotFound, run.Failed, run.Skipped, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run %s", run.ID)
	}
	return checkRowsAffected(res, "run", run.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.FetchRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, catalog_version, catalog_checksum, status, started_at, completed_at, total_items, found, not_found, failed, skipped
		 FROM fetch_runs WHERE id = ?`,
		runID,
	)
	return scanRun(row, runID)
}

func (s *SQLiteStore) LatestRun(ctx context.Context) (*model.FetchRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, catalog_version, catalog_checksum, status, started_at, completed_at, total_items, found, not_found, failed, skipped
		 FROM fetch_runs ORDER BY started_at DESC, id DESC LIMIT 1`,
	)
	return scanRun(row, "latest")
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.FetchRun, error) {
	query := `SELECT id, catalog_version, catalog_checksum, status, started_at, completed_at, total_items, found, not_found, failed, skipped
	          FROM fetch_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC, id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.FetchRun
	for rows.Next() {
		r, err := scanRun(rows, "")
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveOutcome(ctx context.Context, runID string, outcome model.FetchOutcome) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints
		 (run_id, part_number, source_status, unit_price, fetched_at, attempts, error_type, error_message, page_reference)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, part_number) DO UPDATE SET
		   source_status = excluded.source_status, unit_price = excluded.unit_price,
		   fetched_at = excluded.fetched_at, attempts = excluded.attempts,
		   error_type = excluded.error_type, error_message = excluded.error_message,
		   page_reference = excluded.page_reference`,
		runID, outcome.PartNumber, string(outcome.SourceStatus), nullFloat(outcome.UnitPrice),
		outcome.FetchedAt.UTC(), outcome.Attempts, string(outcome.ErrorType), outcome.ErrorMessage, outcome.PageReference,
	)
	return eris.Wrapf(err, "sqlite: save outcome %s", outcome.PartNumber)
}

func (s *SQLiteStore) ListOutcomes(ctx context.Context, runID string) ([]model.FetchOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT part_number, source_status, unit_price, fetched_at, attempts, error_type, error_message, page_reference
		 FROM checkpoints WHERE run_id = ? ORDER BY part_number`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list outcomes for run %s", runID)
	}
	defer rows.Close()

	var outcomes []model.FetchOutcome
	for rows.Next() {
		var o model.FetchOutcome
		var price sql.NullFloat64
		err := rows.Scan(&o.PartNumber, &o.SourceStatus, &price, &o.FetchedAt,
			&o.Attempts, &o.ErrorType, &o.ErrorMessage, &o.PageReference)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outcome")
		}
		o.UnitPrice = floatPtr(price)
		outcomes = append(outcomes, o)
	}
	return outcomes, eris.Wrap(rows.Err(), "sqlite: list outcomes iterate")
}

func (s *SQLiteStore) ClearOutcomes(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE run_id = ?`, runID)
	return eris.Wrapf(err, "sqlite: clear outcomes for run %s", runID)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable, id string) (*model.FetchRun, error) {
	var r model.FetchRun
	var completed sql.NullTime

	err := row.Scan(&r.ID, &r.CatalogVersion, &r.CatalogChecksum, &r.Status, &r.StartedAt,
		&completed, &r.TotalItems, &r.Found, &r.NotFound, &r.Failed, &r.Skipped)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "run %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.CompletedAt = timePtr(completed)
	return &r, nil
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: p.UTC(), Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
