// Package journal keeps a local SQLite record of submitted tasks, so the
// CLI can show what was sent from this machine (filename, checksum, time)
// even after the backend has forgotten a deleted task.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// dirPerms is used when creating the journal's parent directory.
const dirPerms = 0o700

// ErrNotFound is returned by Find for job ids never recorded here.
var ErrNotFound = errors.New("journal: job not recorded")

// SQL statements.
const (
	sqlInsert = `INSERT INTO submissions
		(id, job_id, filename, filetype, company, checksum, size, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO NOTHING`

	sqlMarkDeleted = `UPDATE submissions SET deleted_at = ?
		WHERE job_id = ? AND deleted_at IS NULL`

	sqlSelect = `SELECT id, job_id, filename, filetype, company, checksum, size,
		submitted_at, deleted_at FROM submissions`

	sqlList = sqlSelect + ` ORDER BY submitted_at DESC, id LIMIT ?`

	sqlFind = sqlSelect + ` WHERE job_id = ?`
)

// Entry is one recorded submission.
type Entry struct {
	ID          string
	JobID       string
	Filename    string
	Filetype    string
	Company     string
	Checksum    string // base64 MD5, as sent with the upload
	Size        int64
	SubmittedAt time.Time
	DeletedAt   time.Time // zero while the task exists
}

// Deleted reports whether the task was deleted from this machine.
func (e *Entry) Deleted() bool {
	return !e.DeletedAt.IsZero()
}

// Journal is the submission history database. Safe for concurrent use;
// writes are serialized through a single connection.
type Journal struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens (creating if needed) the journal database at path and applies
// pending migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return nil, fmt.Errorf("journal: creating directory: %w", err)
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=busy_timeout(5000)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: opening database %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("journal opened", slog.String("db_path", path))

	return &Journal{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close releases the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores a submission. ID and SubmittedAt are filled in when empty.
// Recording the same job id twice keeps the first entry.
func (j *Journal) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.JobID == "" {
		return Entry{}, errors.New("journal: entry has no job id")
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	if e.SubmittedAt.IsZero() {
		e.SubmittedAt = j.nowFunc()
	}

	_, err := j.db.ExecContext(ctx, sqlInsert,
		e.ID, e.JobID, e.Filename, e.Filetype, e.Company, e.Checksum, e.Size,
		e.SubmittedAt.UnixMilli(),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: recording %s: %w", e.JobID, err)
	}

	j.logger.Debug("submission recorded", slog.String("job_id", e.JobID))

	return e, nil
}

// MarkDeleted timestamps the deletion of jobID. Unknown job ids (tasks
// submitted elsewhere) are ignored.
func (j *Journal) MarkDeleted(ctx context.Context, jobID string) error {
	res, err := j.db.ExecContext(ctx, sqlMarkDeleted, j.nowFunc().UnixMilli(), jobID)
	if err != nil {
		return fmt.Errorf("journal: marking %s deleted: %w", jobID, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		j.logger.Debug("deleted job not in journal", slog.String("job_id", jobID))
	}

	return nil
}

// List returns up to limit entries, newest first. limit <= 0 means all.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := j.db.QueryContext(ctx, sqlList, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: listing: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating rows: %w", err)
	}

	return entries, nil
}

// Find returns the entry for jobID, or ErrNotFound.
func (j *Journal) Find(ctx context.Context, jobID string) (Entry, error) {
	e, err := scanEntry(j.db.QueryRowContext(ctx, sqlFind, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}

	return e, err
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e         Entry
		submitted int64
		deleted   sql.NullInt64
	)

	err := s.Scan(&e.ID, &e.JobID, &e.Filename, &e.Filetype, &e.Company, &e.Checksum, &e.Size,
		&submitted, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, err
	}

	if err != nil {
		return Entry{}, fmt.Errorf("journal: scanning row: %w", err)
	}

	e.SubmittedAt = time.UnixMilli(submitted)

	if deleted.Valid {
		e.DeletedAt = time.UnixMilli(deleted.Int64)
	}

	return e, nil
}
