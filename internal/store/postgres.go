package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/bluewater-supply/partsync/internal/db"
	"github.com/bluewater-supply/partsync/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// preparedStatements lists queries to prepare on each new connection.
// The checkpoint upsert runs once per part, so it dominates traffic.
var preparedStatements = map[string]string{
	"save_outcome": `INSERT INTO checkpoints
	 (run_id, part_number, source_status, unit_price, fetched_at, attempts, error_type, error_message, page_reference)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	 ON CONFLICT (run_id, part_number) DO UPDATE SET
	   source_status = excluded.source_status, unit_price = excluded.unit_price,
	   fetched_at = excluded.fetched_at, attempts = excluded.attempts,
	   error_type = excluded.error_type, error_message = excluded.error_message,
	   page_reference = excluded.page_reference`,
	"get_run": `SELECT id, catalog_version, catalog_checksum, status, started_at, completed_at, total_items, found, not_found, failed, skipped
	 FROM fetch_runs WHERE id = $1`,
	"update_run": `UPDATE fetch_runs SET status = $1, completed_at = $2, total_items = $3, found = $4, not_found = $5, failed = $6, skipped = $7
	 WHERE id = $8`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, maxConns int) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	if maxConns <= 0 {
		maxConns = 8
	}
	pgxCfg.MaxConns = int32(maxConns)
	pgxCfg.MinConns = 1
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
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	id              TEXT PRIMARY KEY,
	catalog_version TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	entry_count     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_entries (
	snapshot_id    TEXT NOT NULL REFERENCES snapshots(id),
	part_number    TEXT NOT NULL,
	sku            TEXT NOT NULL,
	description    TEXT NOT NULL,
	category       TEXT NOT NULL DEFAULT '',
	unit_price     DOUBLE PRECISION,
	last_updated   TIMESTAMPTZ,
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
	started_at       TIMESTAMPTZ NOT NULL,
	completed_at     TIMESTAMPTZ,
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
	unit_price     DOUBLE PRECISION,
	fetched_at     TIMESTAMPTZ NOT NULL,
	attempts       INTEGER NOT NULL,
	error_type     TEXT NOT NULL DEFAULT '',
	error_message  TEXT NOT NULL DEFAULT '',
	page_reference TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, part_number)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON snapshots(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_fetch_runs_started_at ON fetch_runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_fetch_runs_status ON fetch_runs(status);
`

// snapshotEntryColumns is the COPY column order for snapshot_entries.
var snapshotEntryColumns = []string{
	"snapshot_id", "part_number", "sku", "description", "category",
	"unit_price", "last_updated", "source_catalog", "vendor", "status",
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *model.Snapshot) (*model.Snapshot, error) {
	stored := *snap
	stored.ID = uuid.New().String()
	stored.CreatedAt = time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin snapshot tx")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO snapshots (id, catalog_version, created_at, entry_count) VALUES ($1, $2, $3, $4)`,
		stored.ID, stored.CatalogVersion, stored.CreatedAt, len(stored.Entries),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert snapshot")
	}

	rows := make([][]any, 0, len(stored.Entries))
	for i := range stored.Entries {
		e := &stored.Entries[i]
		rows = append(rows, []any{
			stored.ID, e.PartNumber, e.SKU, e.Description, e.Category,
			e.UnitPrice, e.LastUpdated, e.SourceCatalog, e.Vendor, string(e.Status),
		})
	}
	if _, err := db.CopyFrom(ctx, tx, "snapshot_entries", snapshotEntryColumns, rows); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit snapshot")
	}
	return &stored, nil
}

func (s *PostgresStore) GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error) {
	var snap model.Snapshot
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT id, catalog_version, created_at, entry_count FROM snapshots WHERE id = $1`,
		id,
	).Scan(&snap.ID, &snap.CatalogVersion, &snap.CreatedAt, &count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "snapshot %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get snapshot %s", id)
	}

	snap.Entries, err = s.snapshotEntries(ctx, snap.ID)
	if err != nil {
		return nil, err
	}
	if len(snap.Entries) != count {
		return nil, eris.Errorf("postgres: snapshot %s corrupt: header says %d entries, found %d", id, count, len(snap.Entries))
	}
	return &snap, nil
}

func (s *PostgresStore) snapshotEntries(ctx context.Context, id string) ([]model.ReconciledEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT part_number, sku, description, category, unit_price, last_updated, source_catalog, vendor, status
		 FROM snapshot_entries WHERE snapshot_id = $1 ORDER BY part_number`,
		id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query entries for snapshot %s", id)
	}
	defer rows.Close()

	var entries []model.ReconciledEntry
	for rows.Next() {
		var e model.ReconciledEntry
		err := rows.Scan(&e.PartNumber, &e.SKU, &e.Description, &e.Category,
			&e.UnitPrice, &e.LastUpdated, &e.SourceCatalog, &e.Vendor, &e.Status)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: scan entry for snapshot %s", id)
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: iterate entries")
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context) (*model.Snapshot, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM snapshots ORDER BY created_at DESC, id DESC LIMIT 1`,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrap(ErrNotFound, "no snapshots stored")
		}
		return nil, eris.Wrap(err, "postgres: latest snapshot")
	}
	return s.GetSnapshot(ctx, id)
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, limit int) ([]model.SnapshotMeta, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, catalog_version, created_at, entry_count FROM snapshots
		 ORDER BY created_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list snapshots")
	}
	defer rows.Close()

	var metas []model.SnapshotMeta
	for rows.Next() {
		var m model.SnapshotMeta
		if err := rows.Scan(&m.ID, &m.CatalogVersion, &m.CreatedAt, &m.EntryCount); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot meta")
		}
		metas = append(metas, m)
	}
	return metas, eris.Wrap(rows.Err(), "postgres: list snapshots iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context, catalogVersion, catalogChecksum string, totalItems int) (*model.FetchRun, error) {
	run := &model.FetchRun{
		ID:              uuid.New().String(),
		CatalogVersion:  catalogVersion,
		CatalogChecksum: catalogChecksum,
		Status:          model.RunStatusRunning,
		StartedAt:       time.Now().UTC(),
		TotalItems:      totalItems,
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO fetch_runs (id, catalog_version, catalog_checksum, status, started_at, total_items)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.CatalogVersion, run.CatalogChecksum, string(run.Status), run.StartedAt, run.TotalItems,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) UpdateRun(ctx context.Context, run *model.FetchRun) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE fetch_runs SET status = $1, completed_at = $2, total_items = $3, found = $4, not_found = $5, failed = $6, skipped = $7
		 WHERE id = $8`,
		string(run.Status), run.CompletedAt, run.TotalItems,
		run.Found, run.NotFound, run.Failed, run.Skipped, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.FetchRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, catalog_version, catalog_checksum, status, started_at, completed_at, total_items, found, not_found, failed, skipped
		 FROM fetch_runs WHERE id = $1`,
		runID,
	)
	return scanPgRun(row, runID)
}

func (s *PostgresStore) LatestRun(ctx context.Context) (*model.FetchRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, catalog_version, catalog_checksum, status, started_at, completed_at, total_items, found, not_found, failed, skipped
		 FROM fetch_runs ORDER BY started_at DESC, id DESC LIMIT 1`,
	)
	return scanPgRun(row, "latest")
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.FetchRun, error) {
	query := `SELECT id, catalog_version, catalog_checksum, status, started_at, completed_at, total_items, found, not_found, failed, skipped
	          FROM fetch_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY started_at DESC, id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.FetchRun
	for rows.Next() {
		r, err := scanPgRun(rows, "")
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) SaveOutcome(ctx context.Context, runID string, outcome model.FetchOutcome) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO checkpoints
		 (run_id, part_number, source_status, unit_price, fetched_at, attempts, error_type, error_message, page_reference)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (run_id, part_number) DO UPDATE SET
		   source_status = excluded.source_status, unit_price = excluded.unit_price,
		   fetched_at = excluded.fetched_at, attempts = excluded.attempts,
		   error_type = excluded.error_type, error_message = excluded.error_message,
		   page_reference = excluded.page_reference`,
		runID, outcome.PartNumber, string(outcome.SourceStatus), outcome.UnitPrice,
		outcome.FetchedAt.UTC(), outcome.Attempts, string(outcome.ErrorType), outcome.ErrorMessage, outcome.PageReference,
	)
	return eris.Wrapf(err, "postgres: save outcome %s", outcome.PartNumber)
}

func (s *PostgresStore) ListOutcomes(ctx context.Context, runID string) ([]model.FetchOutcome, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT part_number, source_status, unit_price, fetched_at, attempts, error_type, error_message, page_reference
		 FROM checkpoints WHERE run_id = $1 ORDER BY part_number`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list outcomes for run %s", runID)
	}
	defer rows.Close()

	var outcomes []model.FetchOutcome
	for rows.Next() {
		var o model.FetchOutcome
		err := rows.Scan(&o.PartNumber, &o.SourceStatus, &o.UnitPrice, &o.FetchedAt,
			&o.Attempts, &o.ErrorType, &o.ErrorMessage, &o.PageReference)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome")
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, eris.Wrap(rows.Err(), "postgres: list outcomes iterate")
}

func (s *PostgresStore) ClearOutcomes(ctx context.Context, runID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM checkpoints WHERE run_id = $1`, runID)
	return eris.Wrapf(err, "postgres: clear outcomes for run %s", runID)
}

func scanPgRun(row pgx.Row, id string) (*model.FetchRun, error) {
	var r model.FetchRun
	err := row.Scan(&r.ID, &r.CatalogVersion, &r.CatalogChecksum, &r.Status, &r.StartedAt,
		&r.CompletedAt, &r.TotalItems, &r.Found, &r.NotFound, &r.Failed, &r.Skipped)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "run %s", id)
		}
		return nil, eris.Wrap(err, "postgres: scan run")
	}
	return &r, nil
}
