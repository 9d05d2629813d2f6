package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/fuelsync/internal/config"
	"github.com/JonMunkholm/fuelsync/internal/logging"
)

// ErrRunNotFound is returned by Finish for a run that was never started.
var ErrRunNotFound = errors.New("run not found")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sync_runs (
	id           UUID PRIMARY KEY,
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ,
	status       TEXT NOT NULL,
	csv_path     TEXT NOT NULL,
	xlsx_path    TEXT NOT NULL,
	input_rows   INTEGER NOT NULL DEFAULT 0,
	output_rows  INTEGER NOT NULL DEFAULT 0,
	dropped_rows INTEGER NOT NULL DEFAULT 0,
	uploaded     BOOLEAN NOT NULL DEFAULT FALSE,
	http_status  INTEGER,
	attempts     INTEGER NOT NULL DEFAULT 0,
	upload_id    TEXT,
	error        TEXT
);
CREATE INDEX IF NOT EXISTS sync_runs_started_at_idx ON sync_runs (started_at DESC);
`

// PgStore records runs in PostgreSQL.
type PgStore struct {
	pool *pgxpool.Pool
}

// Open connects to the database and ensures the sync_runs table exists.
// An empty DatabaseURL yields a NopStore.
func Open(ctx context.Context, cfg config.HistoryConfig, log logging.Logger) (Store, error) {
	log = logging.OrNop(log)
	if cfg.DatabaseURL == "" {
		log.Debug("run history disabled")
		return NopStore{}, nil
	}

	poolConfig, err := parsePoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := NewPgStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("run history enabled", "database", poolConfig.ConnConfig.Database)
	return store, nil
}

// NewPgStore wraps an existing pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Migrate creates the sync_runs table if needed.
func (s *PgStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create sync_runs: %w", err)
	}
	return nil
}

func (s *PgStore) Start(ctx context.Context, run *Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_runs (id, started_at, status, csv_path, xlsx_path)
		VALUES ($1, $2, $3, $4, $5)`,
		toPgUUID(run.ID), toPgTimestamptz(run.StartedAt), string(run.Status), run.CSVPath, run.XLSXPath,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *PgStore) Finish(ctx context.Context, run *Run) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sync_runs SET
			finished_at = $2,
			status = $3,
			input_rows = $4,
			output_rows = $5,
			dropped_rows = $6,
			uploaded = $7,
			http_status = $8,
			attempts = $9,
			upload_id = $10,
			error = $11
		WHERE id = $1`,
		toPgUUID(run.ID),
		toPgTimestamptz(run.FinishedAt),
		string(run.Status),
		run.InputRows,
		run.OutputRows,
		run.DroppedRows,
		run.Uploaded,
		toPgInt4(run.HTTPStatus),
		run.Attempts,
		toPgText(run.UploadID),
		toPgText(run.Error),
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *PgStore) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, started_at, finished_at, status, csv_path, xlsx_path,
		       input_rows, output_rows, dropped_rows, uploaded, http_status,
		       attempts, upload_id, error
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *PgStore) Close() { s.pool.Close() }

// scanRun scans a single row from sync_runs.
func scanRun(rows pgx.Rows) (Run, error) {
	var (
		id         pgtype.UUID
		startedAt  pgtype.Timestamptz
		finishedAt pgtype.Timestamptz
		status     string
		run        Run
		httpStatus pgtype.Int4
		uploadID   pgtype.Text
		errText    pgtype.Text
	)

	err := rows.Scan(
		&id, &startedAt, &finishedAt, &status, &run.CSVPath, &run.XLSXPath,
		&run.InputRows, &run.OutputRows, &run.DroppedRows, &run.Uploaded, &httpStatus,
		&run.Attempts, &uploadID, &errText,
	)
	if err != nil {
		return Run{}, err
	}

	run.ID = uuid.UUID(id.Bytes)
	run.StartedAt = startedAt.Time
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	run.Status = Status(status)
	if httpStatus.Valid {
		run.HTTPStatus = int(httpStatus.Int32)
	}
	if uploadID.Valid {
		run.UploadID = uploadID.String
	}
	if errText.Valid {
		run.Error = errText.String
	}
	return run, nil
}

// parsePoolConfig parses the connection string, URL or key/value form, and
// applies the pool size.
func parsePoolConfig(cfg config.HistoryConfig) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	return poolConfig, nil
}
