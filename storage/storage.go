// Package storage persists the results ledger: one record per rendered short,
// keyed by an internal id and indexed by source thread id.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common storage conditions.
var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("storage: not found")
	// ErrAlreadyExists indicates the entity already exists in storage.
	ErrAlreadyExists = errors.New("storage: already exists")
	// ErrInvalidInput indicates invalid or malformed input was provided.
	ErrInvalidInput = errors.New("storage: invalid input")
	// ErrStorageCorrupt indicates data corruption was detected.
	ErrStorageCorrupt = errors.New("storage: data corruption detected")
	// ErrLockTimeout indicates a timeout acquiring a file lock.
	ErrLockTimeout = errors.New("storage: lock acquisition timeout")
)

// StorageError wraps storage errors with operation and entity context.
// Use errors.As() to extract this error type and get operation details:
//
//	var storErr *storage.StorageError
//	if errors.As(err, &storErr) {
//		fmt.Printf("Failed to %s %s %s: %v\n", storErr.Op, storErr.Entity, storErr.ID, storErr.Err)
//	}
type StorageError struct {
	// Op is the operation that failed ("create", "read", "update", "delete").
	Op string
	// Entity is the entity type ("record", "store", "file").
	Entity string
	// ID is the entity ID if applicable.
	ID string
	// Err is the underlying error that occurred.
	Err error
}

// Error returns a string representation of the storage error.
func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("storage: %s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *StorageError) Unwrap() error { return e.Err }

// Store is the results ledger. Implementations must be safe for concurrent use.
type Store interface {
	// CreateRecord saves a new record. An empty ID is filled with a UUID.
	CreateRecord(ctx context.Context, rec *Record) error
	// GetRecord retrieves a record by its internal ID.
	GetRecord(ctx context.Context, id string) (*Record, error)
	// GetRecordByThreadID retrieves the record rendered from a thread.
	GetRecordByThreadID(ctx context.Context, threadID string) (*Record, error)
	// HasThread reports whether a thread was already rendered.
	HasThread(ctx context.Context, threadID string) (bool, error)
	// UpdateRecord updates an existing record.
	UpdateRecord(ctx context.Context, rec *Record) error
	// DeleteRecord removes a record.
	DeleteRecord(ctx context.Context, id string) error
	// ListRecords returns records for a subreddit, or all records when subreddit is empty,
	// oldest first.
	ListRecords(ctx context.Context, subreddit string) ([]*Record, error)

	// Close releases any resources held by the store.
	Close() error
}

// Open returns the Store for a backend name ("json" or "sqlite").
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "json":
		return NewJSONStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, &StorageError{Op: "open", Entity: "store", ID: backend, Err: ErrInvalidInput}
	}
}

func validateRecord(op string, rec *Record) error {
	if rec == nil {
		return &StorageError{Op: op, Entity: "record", Err: ErrInvalidInput}
	}
	if rec.ThreadID == "" || rec.Filename == "" {
		return &StorageError{Op: op, Entity: "record", ID: rec.ID, Err: ErrInvalidInput}
	}
	return nil
}
