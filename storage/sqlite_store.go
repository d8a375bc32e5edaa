package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const createRecordsTableSQL = `
CREATE TABLE IF NOT EXISTS records (
	id TEXT PRIMARY KEY,
	subreddit TEXT NOT NULL,
	filename TEXT NOT NULL,
	title TEXT NOT NULL,
	thread_id TEXT NOT NULL UNIQUE,
	credit TEXT NOT NULL DEFAULT '',
	youtube_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	last_error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_subreddit ON records(subreddit);
`

const recordColumns = "id, subreddit, filename, title, thread_id, credit, youtube_id, status, last_error, created_at, updated_at"

// SQLiteStore implements Store on an SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, &StorageError{Op: "open", Entity: "store", ID: path, Err: err}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StorageError{Op: "open", Entity: "store", ID: path, Err: err}
	}
	// A single connection serializes writers inside the process.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createRecordsTableSQL); err != nil {
		db.Close()
		return nil, &StorageError{Op: "open", Entity: "store", ID: path, Err: err}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRecord(ctx context.Context, rec *Record) error {
	if err := validateRecord("create", rec); err != nil {
		return err
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = RecordStatusRendered
	}
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO records ("+recordColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		rec.ID, rec.Subreddit, rec.Filename, rec.Title, rec.ThreadID, rec.Credit,
		rec.YouTubeID, rec.Status, rec.LastError, now.UnixNano(), now.UnixNano())
	if err != nil {
		if isConstraintError(err) {
			return &StorageError{Op: "create", Entity: "record", ID: rec.ThreadID, Err: ErrAlreadyExists}
		}
		return &StorageError{Op: "create", Entity: "record", ID: rec.ID, Err: err}
	}
	return nil
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM records WHERE id = ?", id)
	return scanRecord(row, id)
}

func (s *SQLiteStore) GetRecordByThreadID(ctx context.Context, threadID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM records WHERE thread_id = ?", threadID)
	return scanRecord(row, threadID)
}

func (s *SQLiteStore) HasThread(ctx context.Context, threadID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM records WHERE thread_id = ?", threadID).Scan(&n)
	if err != nil {
		return false, &StorageError{Op: "read", Entity: "record", ID: threadID, Err: err}
	}
	return n > 0, nil
}

func (s *SQLiteStore) UpdateRecord(ctx context.Context, rec *Record) error {
	if err := validateRecord("update", rec); err != nil {
		return err
	}

	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET subreddit = ?, filename = ?, title = ?, thread_id = ?, credit = ?,
		youtube_id = ?, status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		rec.Subreddit, rec.Filename, rec.Title, rec.ThreadID, rec.Credit,
		rec.YouTubeID, rec.Status, rec.LastError, now.UnixNano(), rec.ID)
	if err != nil {
		if isConstraintError(err) {
			return &StorageError{Op: "update", Entity: "record", ID: rec.ThreadID, Err: ErrAlreadyExists}
		}
		return &StorageError{Op: "update", Entity: "record", ID: rec.ID, Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &StorageError{Op: "update", Entity: "record", ID: rec.ID, Err: ErrNotFound}
	}
	rec.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) DeleteRecord(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE id = ?", id)
	if err != nil {
		return &StorageError{Op: "delete", Entity: "record", ID: id, Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &StorageError{Op: "delete", Entity: "record", ID: id, Err: ErrNotFound}
	}
	return nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, subreddit string) ([]*Record, error) {
	query := "SELECT " + recordColumns + " FROM records"
	var args []any
	if subreddit != "" {
		query += " WHERE subreddit = ?"
		args = append(args, subreddit)
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StorageError{Op: "read", Entity: "record", Err: err}
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows, "")
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "read", Entity: "record", Err: err}
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner, key string) (*Record, error) {
	var rec Record
	var created, updated int64
	err := row.Scan(&rec.ID, &rec.Subreddit, &rec.Filename, &rec.Title, &rec.ThreadID,
		&rec.Credit, &rec.YouTubeID, &rec.Status, &rec.LastError, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &StorageError{Op: "read", Entity: "record", ID: key, Err: ErrNotFound}
		}
		return nil, &StorageError{Op: "read", Entity: "record", ID: key, Err: err}
	}
	rec.CreatedAt = time.Unix(0, created)
	rec.UpdatedAt = time.Unix(0, updated)
	return &rec, nil
}

// isConstraintError reports a UNIQUE or PRIMARY KEY violation.
func isConstraintError(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
