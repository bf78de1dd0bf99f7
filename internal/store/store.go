package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresmejia3/dwell/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("store: run not found")

// Store manages the PostgreSQL connection holding the scan history.
type Store struct {
	conn *pgx.Conn
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS scan_sources (
			id TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			last_scanned_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS heatmap_runs (
			id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL REFERENCES scan_sources(id),
			mode TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			frames_read INT NOT NULL,
			frames_processed INT NOT NULL,
			frames_skipped INT NOT NULL,
			width INT NOT NULL,
			height INT NOT NULL,
			max_dwell DOUBLE PRECISION NOT NULL,
			background_path TEXT NOT NULL DEFAULT '',
			heatmap_path TEXT NOT NULL DEFAULT '',
			video_path TEXT NOT NULL DEFAULT '',
			grid_rows INT NOT NULL DEFAULT 0,
			grid_cols INT NOT NULL DEFAULT 0,
			grid DOUBLE PRECISION[]
		);
		CREATE INDEX IF NOT EXISTS heatmap_runs_source_id_idx ON heatmap_runs (source_id);
		CREATE INDEX IF NOT EXISTS heatmap_runs_started_at_idx ON heatmap_runs (started_at DESC);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// InsertRun registers the run's source and saves the run. An empty ID is
// replaced by a fresh UUID; the stored ID is returned.
func (s *Store) InsertRun(ctx context.Context, run types.RunRecord) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.GridRows*run.GridCols != len(run.Grid) {
		return "", fmt.Errorf("grid has %d values for %dx%d", len(run.Grid), run.GridRows, run.GridCols)
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	// 1. Upsert the source so repeated scans of one input group together
	_, err = tx.Exec(ctx, `
		INSERT INTO scan_sources (id, description, last_scanned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET description = EXCLUDED.description, last_scanned_at = EXCLUDED.last_scanned_at
	`, run.SourceID, run.Source, run.FinishedAt)
	if err != nil {
		return "", fmt.Errorf("failed to register source: %w", err)
	}

	// 2. Insert the run itself
	_, err = tx.Exec(ctx, `
		INSERT INTO heatmap_runs (
			id, source_id, mode, started_at, finished_at,
			frames_read, frames_processed, frames_skipped, width, height, max_dwell,
			background_path, heatmap_path, video_path, grid_rows, grid_cols, grid
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, run.ID, run.SourceID, run.Mode, run.StartedAt, run.FinishedAt,
		run.FramesRead, run.FramesProcessed, run.FramesSkipped, run.Width, run.Height, run.MaxDwell,
		run.BackgroundPath, run.HeatmapPath, run.VideoPath, run.GridRows, run.GridCols, run.Grid)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	return run.ID, tx.Commit(ctx)
}

const runColumns = `
	r.id, r.source_id, s.description, r.mode, r.started_at, r.finished_at,
	r.frames_read, r.frames_processed, r.frames_skipped, r.width, r.height, r.max_dwell,
	r.background_path, r.heatmap_path, r.video_path, r.grid_rows, r.grid_cols`

func scanRun(row pgx.Row, withGrid bool) (types.RunRecord, error) {
	var r types.RunRecord
	dest := []any{
		&r.ID, &r.SourceID, &r.Source, &r.Mode, &r.StartedAt, &r.FinishedAt,
		&r.FramesRead, &r.FramesProcessed, &r.FramesSkipped, &r.Width, &r.Height, &r.MaxDwell,
		&r.BackgroundPath, &r.HeatmapPath, &r.VideoPath, &r.GridRows, &r.GridCols,
	}
	if withGrid {
		dest = append(dest, &r.Grid)
	}
	err := row.Scan(dest...)
	return r, err
}

// ListRuns returns the most recent runs first, without their grids. A
// non-empty sourceID limits the list to one input. limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, sourceID string, limit int) ([]types.RunRecord, error) {
	query := `SELECT ` + runColumns + `
		FROM heatmap_runs r JOIN scan_sources s ON s.id = r.source_id
		WHERE ($1 = '' OR r.source_id = $1)
		ORDER BY r.started_at DESC, r.id`
	args := []any{sourceID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []types.RunRecord
	for rows.Next() {
		r, err := scanRun(rows, false)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun loads a single run including its coarse grid.
func (s *Store) GetRun(ctx context.Context, id string) (types.RunRecord, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+runColumns+`, r.grid
		FROM heatmap_runs r JOIN scan_sources s ON s.id = r.source_id
		WHERE r.id = $1`, id)
	r, err := scanRun(row, true)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// ListSources returns every scanned input with its run count.
func (s *Store) ListSources(ctx context.Context) ([]types.SourceRecord, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT s.id, s.description, s.last_scanned_at, COUNT(r.id)
		FROM scan_sources s LEFT JOIN heatmap_runs r ON r.source_id = s.id
		GROUP BY s.id, s.description, s.last_scanned_at
		ORDER BY s.last_scanned_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.SourceRecord
	for rows.Next() {
		var src types.SourceRecord
		if err := rows.Scan(&src.ID, &src.Description, &src.LastScannedAt, &src.Runs); err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS heatmap_runs CASCADE;
		DROP TABLE IF EXISTS scan_sources CASCADE;
	`)
	return err
}
