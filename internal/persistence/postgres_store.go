package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/MimeLyc/sales-playbook/internal/analysis"
	"github.com/MimeLyc/sales-playbook/internal/files"
	"github.com/MimeLyc/sales-playbook/internal/jobs"
)

// PostgresStore keeps jobs, analyses and file records in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn and applies pending migrations.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.Connect(connectCtx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	migrations, err := loadMigrations("postgres")
	if err != nil {
		return err
	}
	for _, m := range migrations {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", m.name, err)
		}
		if exists {
			continue
		}
		err := s.inTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.sql); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.version)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
	}
	return nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) UpsertJob(ctx context.Context, job *jobs.Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	filesJSON, err := encodeFiles(job.Files)
	if err != nil {
		return err
	}
	const sql = `
INSERT INTO batch_jobs (` + jobColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  current_stage = EXCLUDED.current_stage,
  total_files = EXCLUDED.total_files,
  processed_files = EXCLUDED.processed_files,
  files_json = EXCLUDED.files_json,
  result_reference = EXCLUDED.result_reference,
  error_message = EXCLUDED.error_message,
  updated_at = EXCLUDED.updated_at,
  completed_at = EXCLUDED.completed_at;
`
	_, err = s.pool.Exec(ctx, sql,
		job.ID,
		string(job.Status),
		string(job.CurrentStage),
		job.TotalFiles,
		job.ProcessedFiles,
		string(filesJSON),
		job.ResultReference,
		job.ErrorMessage,
		job.CreatedAt,
		job.UpdatedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres UpsertJob: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM batch_jobs WHERE id = $1`, id)
	job, err := scanPostgresJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, jobs.ErrNotFound
		}
		return nil, fmt.Errorf("postgres GetJob: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) ListJobsByStatus(ctx context.Context, statuses ...jobs.Status) ([]*jobs.Job, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.pool.Query(ctx, `SELECT `+jobColumns+` FROM batch_jobs ORDER BY created_at ASC`)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+jobColumns+` FROM batch_jobs WHERE status = ANY($1) ORDER BY created_at ASC`,
			statusStrings(statuses))
	}
	if err != nil {
		return nil, fmt.Errorf("postgres ListJobsByStatus: %w", err)
	}
	defer rows.Close()

	ret := make([]*jobs.Job, 0)
	for rows.Next() {
		job, err := scanPostgresJob(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, job)
	}
	return ret, rows.Err()
}

func (s *PostgresStore) DeleteJob(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM batch_jobs WHERE id = $1`, id)
	return err
}

func scanPostgresJob(row pgx.Row) (*jobs.Job, error) {
	var (
		job         jobs.Job
		status      string
		stage       string
		filesJSON   []byte
		completedAt *time.Time
	)
	if err := row.Scan(
		&job.ID,
		&status,
		&stage,
		&job.TotalFiles,
		&job.ProcessedFiles,
		&filesJSON,
		&job.ResultReference,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}
	job.Status = jobs.Status(status)
	job.CurrentStage = jobs.Stage(stage)
	job.CompletedAt = completedAt
	fs, err := decodeFiles(job.ID, filesJSON)
	if err != nil {
		return nil, err
	}
	job.Files = fs
	return &job, nil
}

func (s *PostgresStore) SaveAnalysis(ctx context.Context, a *analysis.Analysis) error {
	if a == nil {
		return fmt.Errorf("analysis is nil")
	}
	payload, err := encodeAnalysis(a)
	if err != nil {
		return err
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO analyses (id, payload_json, created_at) VALUES ($1,$2,$3)
ON CONFLICT (id) DO UPDATE SET payload_json = EXCLUDED.payload_json;
`, a.ID, string(payload), createdAt)
	if err != nil {
		return fmt.Errorf("postgres SaveAnalysis: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, id string) (*analysis.Analysis, error) {
	var (
		a       analysis.Analysis
		payload []byte
	)
	row := s.pool.QueryRow(ctx, `SELECT id, payload_json, created_at FROM analyses WHERE id = $1`, id)
	if err := row.Scan(&a.ID, &payload, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, analysis.ErrNotFound
		}
		return nil, fmt.Errorf("postgres GetAnalysis: %w", err)
	}
	if err := decodeAnalysis(a.ID, payload, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, limit int) ([]*analysis.Analysis, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, payload_json, created_at FROM analyses ORDER BY created_at DESC LIMIT $1`, lim)
	if err != nil {
		return nil, fmt.Errorf("postgres ListAnalyses: %w", err)
	}
	defer rows.Close()

	ret := make([]*analysis.Analysis, 0)
	for rows.Next() {
		var (
			a       analysis.Analysis
			payload []byte
		)
		if err := rows.Scan(&a.ID, &payload, &a.CreatedAt); err != nil {
			return nil, err
		}
		if err := decodeAnalysis(a.ID, payload, &a); err != nil {
			return nil, err
		}
		ret = append(ret, &a)
	}
	return ret, rows.Err()
}

func (s *PostgresStore) DeleteAnalysis(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM analyses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres DeleteAnalysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return analysis.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SaveFile(ctx context.Context, r *files.Record) error {
	if r == nil {
		return fmt.Errorf("file record is nil")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO files (`+fileColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  storage_key = EXCLUDED.storage_key,
  original_filename = EXCLUDED.original_filename,
  mime_type = EXCLUDED.mime_type,
  size = EXCLUDED.size,
  url = EXCLUDED.url,
  status = EXCLUDED.status,
  batch_job_id = EXCLUDED.batch_job_id;
`,
		r.ID,
		r.Key,
		r.OriginalFilename,
		r.MimeType,
		r.Size,
		r.URL,
		string(r.Status),
		r.BatchJobID,
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres SaveFile: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFile(ctx context.Context, id string) (*files.Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id)
	r, err := scanFile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, files.ErrNotFound
		}
		return nil, fmt.Errorf("postgres GetFile: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListFiles(ctx context.Context) ([]*files.Record, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+fileColumns+` FROM files ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres ListFiles: %w", err)
	}
	defer rows.Close()

	ret := make([]*files.Record, 0)
	for rows.Next() {
		r, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, r)
	}
	return ret, rows.Err()
}
