package persistence

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MimeLyc/article-narrator/internal/jobs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore keeps the job queue, script checkpoints and the project index.
type SQLiteStore struct {
	db *sql.DB
}

var _ jobs.Store = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
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
	// Bootstrap schema_migrations table so we can track applied versions.
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(path.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func (s *SQLiteStore) LoadJobs(ctx context.Context) ([]*jobs.NarrationJob, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, source, dedupe_key, project_id, article_file, speaker_id, status, error, failures_json, created_at, updated_at
		 FROM jobs
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*jobs.NarrationJob, 0)
	for rows.Next() {
		var item jobs.NarrationJob
		var status, failuresJSON string
		if err := rows.Scan(
			&item.ID,
			&item.Source,
			&item.DedupeKey,
			&item.Payload.ProjectID,
			&item.Payload.ArticleFile,
			&item.Payload.SpeakerID,
			&status,
			&item.Error,
			&failuresJSON,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		item.Status = jobs.Status(status)
		if err := json.Unmarshal([]byte(failuresJSON), &item.Failures); err != nil {
			return nil, fmt.Errorf("job %s failures: %w", item.ID, err)
		}
		ret = append(ret, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID)
	return err
}

func (s *SQLiteStore) SaveJob(ctx context.Context, job *jobs.NarrationJob) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	failures := job.Failures
	if failures == nil {
		failures = []string{}
	}
	failuresJSON, err := json.Marshal(failures)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
			id, source, dedupe_key, project_id, article_file, speaker_id, status, error, failures_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source=excluded.source,
			dedupe_key=excluded.dedupe_key,
			project_id=excluded.project_id,
			article_file=excluded.article_file,
			speaker_id=excluded.speaker_id,
			status=excluded.status,
			error=excluded.error,
			failures_json=excluded.failures_json,
			updated_at=excluded.updated_at`,
		job.ID,
		job.Source,
		job.DedupeKey,
		job.Payload.ProjectID,
		job.Payload.ArticleFile,
		job.Payload.SpeakerID,
		string(job.Status),
		job.Error,
		string(failuresJSON),
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

// DeleteCheckpoints drops the script checkpoints of a job.
func (s *SQLiteStore) DeleteCheckpoints(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM script_checkpoints WHERE job_id = ?`, jobID)
	return err
}

func (s *SQLiteStore) SaveScriptCheckpoint(ctx context.Context, jobID string, batchStart int, batchEnd int, scripts []string) error {
	payload, err := json.Marshal(scripts)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO script_checkpoints (job_id, batch_start, batch_end, scripts_json, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(job_id, batch_start, batch_end) DO UPDATE SET
			scripts_json=excluded.scripts_json,
			updated_at=excluded.updated_at`,
		jobID,
		batchStart,
		batchEnd,
		string(payload),
		time.Now().UTC(),
	)
	return err
}

func (s *SQLiteStore) LoadScriptCheckpoints(ctx context.Context, jobID string) ([]BatchCheckpoint, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT job_id, batch_start, batch_end, scripts_json, updated_at
		 FROM script_checkpoints
		 WHERE job_id = ?
		 ORDER BY batch_start ASC`,
		jobID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]BatchCheckpoint, 0)
	for rows.Next() {
		var item BatchCheckpoint
		var scriptsJSON string
		if err := rows.Scan(&item.JobID, &item.BatchStart, &item.BatchEnd, &scriptsJSON, &item.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(scriptsJSON), &item.Scripts); err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// UpsertProject writes the index row of a project. An empty LastJobID keeps
// the stored one.
func (s *SQLiteStore) UpsertProject(ctx context.Context, p ProjectSummary) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("project id is required")
	}
	updatedAt := p.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO projects (
			id, title, source_file, speaker_id, language, sections, voiced_sections, duration_seconds, last_job_id, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title,
			source_file=excluded.source_file,
			speaker_id=excluded.speaker_id,
			language=excluded.language,
			sections=excluded.sections,
			voiced_sections=excluded.voiced_sections,
			duration_seconds=excluded.duration_seconds,
			last_job_id=COALESCE(NULLIF(excluded.last_job_id, ''), projects.last_job_id),
			updated_at=excluded.updated_at`,
		p.ID,
		p.Title,
		p.SourceFile,
		p.SpeakerID,
		p.Language,
		p.Sections,
		p.VoicedSections,
		p.Duration,
		p.LastJobID,
		updatedAt,
	)
	return err
}

const projectColumns = `id, title, source_file, speaker_id, language, sections, voiced_sections, duration_seconds, last_job_id, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (ProjectSummary, error) {
	var p ProjectSummary
	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.SourceFile,
		&p.SpeakerID,
		&p.Language,
		&p.Sections,
		&p.VoicedSections,
		&p.Duration,
		&p.LastJobID,
		&p.UpdatedAt,
	)
	return p, err
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (ProjectSummary, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ProjectSummary{}, false, nil
		}
		return ProjectSummary{}, false, err
	}
	return p, true, nil
}

// ListProjects returns the index, most recently updated first.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]ProjectSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]ProjectSummary, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}
