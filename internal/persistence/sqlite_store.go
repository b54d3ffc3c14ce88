package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MimeLyc/sales-playbook/internal/analysis"
	"github.com/MimeLyc/sales-playbook/internal/files"
	"github.com/MimeLyc/sales-playbook/internal/jobs"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	migrations, err := loadMigrations("sqlite")
	if err != nil {
		return err
	}
	for _, m := range migrations {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", m.name, err)
		}
		if exists > 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, m.version); err != nil {
			return fmt.Errorf("record migration %s: %w", m.name, err)
		}
	}
	return nil
}

const jobColumns = `id, status, current_stage, total_files, processed_files, files_json,
	result_reference, error_message, created_at, updated_at, completed_at`

func (s *SQLiteStore) UpsertJob(ctx context.Context, job *jobs.Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	filesJSON, err := encodeFiles(job.Files)
	if err != nil {
		return err
	}
	var completedAt sql.NullTime
	if job.CompletedAt != nil {
		completedAt = sql.NullTime{Time: job.CompletedAt.UTC(), Valid: true}
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO batch_jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status,
			current_stage=excluded.current_stage,
			total_files=excluded.total_files,
			processed_files=excluded.processed_files,
			files_json=excluded.files_json,
			result_reference=excluded.result_reference,
			error_message=excluded.error_message,
			updated_at=excluded.updated_at,
			completed_at=excluded.completed_at`,
		job.ID,
		string(job.Status),
		string(job.CurrentStage),
		job.TotalFiles,
		job.ProcessedFiles,
		string(filesJSON),
		job.ResultReference,
		job.ErrorMessage,
		job.CreatedAt.UTC(),
		job.UpdatedAt.UTC(),
		completedAt,
	)
	return err
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM batch_jobs WHERE id = ?`, id)
	job, err := scanSQLiteJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobs.ErrNotFound
	}
	return job, err
}

// ListJobsByStatus returns jobs in any of statuses, oldest first. No statuses
// means every job.
func (s *SQLiteStore) ListJobsByStatus(ctx context.Context, statuses ...jobs.Status) ([]*jobs.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM batch_jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		marks := make([]string, len(statuses))
		for i, st := range statusStrings(statuses) {
			marks[i] = "?"
			args = append(args, st)
		}
		query += ` WHERE status IN (` + strings.Join(marks, ", ") + `)`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*jobs.Job, 0)
	for rows.Next() {
		job, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM batch_jobs WHERE id = ?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteJob(row rowScanner) (*jobs.Job, error) {
	var (
		job         jobs.Job
		status      string
		stage       string
		filesJSON   string
		completedAt sql.NullTime
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
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	fs, err := decodeFiles(job.ID, []byte(filesJSON))
	if err != nil {
		return nil, err
	}
	job.Files = fs
	return &job, nil
}

func (s *SQLiteStore) SaveAnalysis(ctx context.Context, a *analysis.Analysis) error {
	if a == nil {
		return fmt.Errorf("analysis is nil")
	}
	payload, err := encodeAnalysis(a)
	if err != nil {
		return err
	}
	createdAt := a.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO analyses (id, payload_json, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload_json=excluded.payload_json`,
		a.ID,
		string(payload),
		createdAt,
	)
	return err
}

func (s *SQLiteStore) GetAnalysis(ctx context.Context, id string) (*analysis.Analysis, error) {
	var (
		a       analysis.Analysis
		payload string
	)
	row := s.db.QueryRowContext(ctx, `SELECT id, payload_json, created_at FROM analyses WHERE id = ?`, id)
	if err := row.Scan(&a.ID, &payload, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, analysis.ErrNotFound
		}
		return nil, err
	}
	if err := decodeAnalysis(a.ID, []byte(payload), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAnalyses returns the newest analyses first.
func (s *SQLiteStore) ListAnalyses(ctx context.Context, limit int) ([]*analysis.Analysis, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, payload_json, created_at FROM analyses ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*analysis.Analysis, 0)
	for rows.Next() {
		var (
			a       analysis.Analysis
			payload string
		)
		if err := rows.Scan(&a.ID, &payload, &a.CreatedAt); err != nil {
			return nil, err
		}
		if err := decodeAnalysis(a.ID, []byte(payload), &a); err != nil {
			return nil, err
		}
		ret = append(ret, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) DeleteAnalysis(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return analysis.ErrNotFound
	}
	return nil
}

const fileColumns = `id, storage_key, original_filename, mime_type, size, url, status, batch_job_id, created_at`

func (s *SQLiteStore) SaveFile(ctx context.Context, r *files.Record) error {
	if r == nil {
		return fmt.Errorf("file record is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO files (`+fileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			storage_key=excluded.storage_key,
			original_filename=excluded.original_filename,
			mime_type=excluded.mime_type,
			size=excluded.size,
			url=excluded.url,
			status=excluded.status,
			batch_job_id=excluded.batch_job_id`,
		r.ID,
		r.Key,
		r.OriginalFilename,
		r.MimeType,
		r.Size,
		r.URL,
		string(r.Status),
		r.BatchJobID,
		r.CreatedAt.UTC(),
	)
	return err
}

func (s *SQLiteStore) GetFile(ctx context.Context, id string) (*files.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	r, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, files.ErrNotFound
	}
	return r, err
}

func (s *SQLiteStore) ListFiles(ctx context.Context) ([]*files.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM files ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func scanFile(row rowScanner) (*files.Record, error) {
	var (
		r      files.Record
		status string
	)
	if err := row.Scan(
		&r.ID,
		&r.Key,
		&r.OriginalFilename,
		&r.MimeType,
		&r.Size,
		&r.URL,
		&status,
		&r.BatchJobID,
		&r.CreatedAt,
	); err != nil {
		return nil, err
	}
	r.Status = files.Status(status)
	return &r, nil
}
