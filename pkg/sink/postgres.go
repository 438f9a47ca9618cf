package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sternrassler/ucsb-curriculum-client/pkg/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const createCoursesTable = `
CREATE TABLE IF NOT EXISTS ucsb_courses (
	quarter     TEXT        NOT NULL,
	course_id   TEXT        NOT NULL,
	title       TEXT        NOT NULL,
	dept_code   TEXT        NOT NULL,
	payload     JSONB       NOT NULL,
	run_id      TEXT        NOT NULL,
	fetched_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (quarter, course_id)
)`

const upsertCourse = `
INSERT INTO ucsb_courses (quarter, course_id, title, dept_code, payload, run_id, fetched_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (quarter, course_id) DO UPDATE SET
	title = EXCLUDED.title,
	dept_code = EXCLUDED.dept_code,
	payload = EXCLUDED.payload,
	run_id = EXCLUDED.run_id,
	fetched_at = EXCLUDED.fetched_at`

// Rows of earlier runs that the current run no longer returned.
const deleteStaleCourses = `DELETE FROM ucsb_courses WHERE quarter = $1 AND run_id <> $2`

// PostgresSink upserts one row per course into ucsb_courses.
type PostgresSink struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresSink opens a connection pool, pings it and ensures the table
// exists.
func NewPostgresSink(ctx context.Context, connString string) (*PostgresSink, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse pgxpool config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, createCoursesTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create ucsb_courses: %w", err)
	}

	return &PostgresSink{
		pool:   pool,
		logger: logging.NewLogger("sink"),
	}, nil
}

// Close releases the pool.
func (p *PostgresSink) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Name implements Sink.
func (p *PostgresSink) Name() string {
	return "postgres"
}

// Write implements Sink. Upserts and the removal of courses missing from
// this run happen in one transaction.
func (p *PostgresSink) Write(ctx context.Context, catalog Catalog) (err error) {
	size := 0
	defer func() { record(p.Name(), size, err) }()

	batch := &pgx.Batch{}
	for i := range catalog.Courses {
		course := &catalog.Courses[i]
		payload, err := json.Marshal(course)
		if err != nil {
			return fmt.Errorf("marshal course %q: %w", course.CourseID, err)
		}
		size += len(payload)
		batch.Queue(upsertCourse,
			catalog.Quarter,
			course.CourseID,
			course.Title,
			course.DeptCode,
			string(payload),
			catalog.RunID,
			catalog.FetchedAt,
		)
	}
	batch.Queue(deleteStaleCourses, catalog.Quarter, catalog.RunID)

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("batch statement %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	p.logger.Info().
		Str("quarter", catalog.Quarter).
		Int("courses", len(catalog.Courses)).
		Msg("Catalog upserted into postgres")

	return nil
}

// Count returns the number of stored courses for quarter.
func (p *PostgresSink) Count(ctx context.Context, quarter string) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM ucsb_courses WHERE quarter = $1`, quarter).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count courses: %w", err)
	}
	return n, nil
}
