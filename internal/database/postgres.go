package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pdfchat/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRunNotFound is returned when no OCR run has the requested id
var ErrRunNotFound = errors.New("ocr run not found")

// DB archives OCR run diagnostics in PostgreSQL
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, connStr string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Initialize sets up the database tables and indices
func (db *DB) Initialize(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS ocr_runs (
            id TEXT PRIMARY KEY,
            path TEXT NOT NULL,
            started_at TIMESTAMPTZ NOT NULL,
            duration_ms BIGINT NOT NULL,
            total_pages INTEGER NOT NULL,
            failed_pages INTEGER[] NOT NULL DEFAULT '{}',
            average_confidence DOUBLE PRECISION NOT NULL,
            high_count INTEGER NOT NULL,
            medium_count INTEGER NOT NULL,
            low_count INTEGER NOT NULL,
            low_pages INTEGER[] NOT NULL DEFAULT '{}'
        )
    `)
	if err != nil {
		return fmt.Errorf("failed to create ocr_runs table: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS ocr_pages (
            run_id TEXT NOT NULL REFERENCES ocr_runs (id) ON DELETE CASCADE,
            page_index INTEGER NOT NULL,
            confidence DOUBLE PRECISION NOT NULL,
            word_count INTEGER NOT NULL,
            char_count INTEGER NOT NULL,
            PRIMARY KEY (run_id, page_index)
        )
    `)
	if err != nil {
		return fmt.Errorf("failed to create ocr_pages table: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS ocr_runs_path_idx ON ocr_runs (path, started_at DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create ocr_runs index: %w", err)
	}

	return nil
}

// SaveRun stores a run and its page reports in one transaction. Saving a run
// id again replaces the earlier record.
func (db *DB) SaveRun(ctx context.Context, run *models.OCRRun) error {
	return pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM ocr_runs WHERE id = $1`, run.ID); err != nil {
			return fmt.Errorf("failed to replace run %s: %w", run.ID, err)
		}

		_, err := tx.Exec(ctx, `
            INSERT INTO ocr_runs (
                id, path, started_at, duration_ms, total_pages, failed_pages,
                average_confidence, high_count, medium_count, low_count, low_pages
            )
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        `,
			run.ID,
			run.Path,
			run.StartedAt,
			run.Duration.Milliseconds(),
			run.TotalPages,
			nonNil(run.FailedPages),
			run.Summary.AverageConfidence,
			run.Summary.HighCount,
			run.Summary.MediumCount,
			run.Summary.LowCount,
			nonNil(run.Summary.LowPages))
		if err != nil {
			return fmt.Errorf("failed to store run %s: %w", run.ID, err)
		}

		batch := &pgx.Batch{}
		for _, p := range run.Pages {
			batch.Queue(`
                INSERT INTO ocr_pages (run_id, page_index, confidence, word_count, char_count)
                VALUES ($1, $2, $3, $4, $5)
            `, run.ID, p.PageIndex, p.Confidence, p.WordCount, p.CharCount)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to store pages of run %s: %w", run.ID, err)
		}
		return nil
	})
}

const runColumns = `id, path, started_at, duration_ms, total_pages, failed_pages,
       average_confidence, high_count, medium_count, low_count, low_pages`

// GetRun loads a run with its page reports
func (db *DB) GetRun(ctx context.Context, id string) (*models.OCRRun, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+runColumns+` FROM ocr_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.Pool.Query(ctx, `
        SELECT page_index, confidence, word_count, char_count
        FROM ocr_pages
        WHERE run_id = $1
        ORDER BY page_index
    `, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages of run %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.PageQualityReport
		if err := rows.Scan(&p.PageIndex, &p.Confidence, &p.WordCount, &p.CharCount); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		run.Pages = append(run.Pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return run, nil
}

// RecentRuns lists the latest runs, newest first, without page reports.
// An empty path lists runs of every document.
func (db *DB) RecentRuns(ctx context.Context, path string, limit int) ([]models.OCRRun, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT `+runColumns+`
        FROM ocr_runs
        WHERE $1 = '' OR path = $1
        ORDER BY started_at DESC
        LIMIT $2
    `, path, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent runs: %w", err)
	}
	defer rows.Close()

	var runs []models.OCRRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return runs, nil
}

func scanRun(row pgx.Row) (*models.OCRRun, error) {
	var (
		run        models.OCRRun
		durationMs int64
	)
	err := row.Scan(
		&run.ID,
		&run.Path,
		&run.StartedAt,
		&durationMs,
		&run.TotalPages,
		&run.FailedPages,
		&run.Summary.AverageConfidence,
		&run.Summary.HighCount,
		&run.Summary.MediumCount,
		&run.Summary.LowCount,
		&run.Summary.LowPages)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.Duration = time.Duration(durationMs) * time.Millisecond
	return &run, nil
}

func nonNil(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}

// Close closes the database connection
func (db *DB) Close() {
	db.Pool.Close()
}
