package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	schemaVersion = "1.0"
	lockTimeout   = 5 * time.Second
)

// JSONStore implements Store using a single JSON file.
// The file lock is held for the lifetime of the store.
type JSONStore struct {
	path string
	lock *FileLock
	data *storeData
	mu   sync.RWMutex
}

// storeData is the top-level JSON structure.
type storeData struct {
	Version   string             `json:"version"`
	UpdatedAt time.Time          `json:"updated_at"`
	Records   map[string]*Record `json:"records"`
	Indexes   *indexes           `json:"indexes"`
}

// indexes maintains lookup tables for efficient queries.
type indexes struct {
	ThreadID map[string]string `json:"thread_id"` // thread_id -> internal_id
}

// NewJSONStore creates a new JSON file store at the given path.
// If the file exists, it is loaded; otherwise an empty store is created.
func NewJSONStore(path string) (*JSONStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, &StorageError{Op: "open", Entity: "store", ID: path, Err: err}
	}

	s := &JSONStore{
		path: path,
		lock: NewFileLock(path),
	}

	if err := s.lock.Lock(lockTimeout); err != nil {
		return nil, err
	}

	if err := s.load(); err != nil {
		s.lock.Unlock()
		return nil, err
	}

	return s, nil
}

// load reads the ledger, or writes an empty one when none exists so a bad
// path fails at open time.
func (s *JSONStore) load() error {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newStoreData()
		return s.save()
	}
	if err != nil {
		return &StorageError{Op: "read", Entity: "ledger", ID: s.path, Err: err}
	}

	var data storeData
	if err := json.Unmarshal(raw, &data); err != nil {
		return &StorageError{Op: "read", Entity: "ledger", ID: s.path, Err: ErrStorageCorrupt}
	}
	if data.Version != "" && data.Version != schemaVersion {
		return &StorageError{Op: "read", Entity: "ledger", ID: s.path,
			Err: fmt.Errorf("%w: unsupported version %q", ErrStorageCorrupt, data.Version)}
	}
	if data.Records == nil {
		data.Records = make(map[string]*Record)
	}
	s.data = &data
	if data.Indexes == nil || len(data.Indexes.ThreadID) != len(data.Records) {
		s.rebuildIndexes()
	}
	return nil
}

// save rewrites the whole ledger atomically.
func (s *JSONStore) save() error {
	s.data.UpdatedAt = time.Now()
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return &StorageError{Op: "write", Entity: "ledger", ID: s.path, Err: err}
	}
	if err := WriteFileAtomic(s.path, append(raw, '\n'), 0644); err != nil {
		return &StorageError{Op: "write", Entity: "ledger", ID: s.path, Err: err}
	}
	return nil
}

// Close releases resources held by the store.
func (s *JSONStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lock.Unlock()
}

func newStoreData() *storeData {
	return &storeData{
		Version:   schemaVersion,
		UpdatedAt: time.Now(),
		Records:   make(map[string]*Record),
		Indexes:   newIndexes(),
	}
}

func newIndexes() *indexes {
	return &indexes{
		ThreadID: make(map[string]string),
	}
}

func (s *JSONStore) rebuildIndexes() {
	s.data.Indexes = newIndexes()
	for id, rec := range s.data.Records {
		s.data.Indexes.ThreadID[rec.ThreadID] = id
	}
}

func (s *JSONStore) CreateRecord(ctx context.Context, rec *Record) error {
	if err := validateRecord("create", rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	if _, exists := s.data.Records[rec.ID]; exists {
		return &StorageError{Op: "create", Entity: "record", ID: rec.ID, Err: ErrAlreadyExists}
	}
	if _, exists := s.data.Indexes.ThreadID[rec.ThreadID]; exists {
		return &StorageError{Op: "create", Entity: "record", ID: rec.ThreadID, Err: ErrAlreadyExists}
	}

	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = RecordStatusRendered
	}

	stored := *rec
	s.data.Records[rec.ID] = &stored
	s.data.Indexes.ThreadID[rec.ThreadID] = rec.ID

	return s.save()
}

func (s *JSONStore) GetRecord(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.data.Records[id]
	if !exists {
		return nil, &StorageError{Op: "read", Entity: "record", ID: id, Err: ErrNotFound}
	}
	out := *rec
	return &out, nil
}

func (s *JSONStore) GetRecordByThreadID(ctx context.Context, threadID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.data.Indexes.ThreadID[threadID]
	if !exists {
		return nil, &StorageError{Op: "read", Entity: "record", ID: threadID, Err: ErrNotFound}
	}

	rec, exists := s.data.Records[id]
	if !exists {
		return nil, &StorageError{Op: "read", Entity: "record", ID: id, Err: ErrStorageCorrupt}
	}
	out := *rec
	return &out, nil
}

func (s *JSONStore) HasThread(ctx context.Context, threadID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.data.Indexes.ThreadID[threadID]
	return exists, nil
}

func (s *JSONStore) UpdateRecord(ctx context.Context, rec *Record) error {
	if err := validateRecord("update", rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data.Records[rec.ID]
	if !exists {
		return &StorageError{Op: "update", Entity: "record", ID: rec.ID, Err: ErrNotFound}
	}

	// Update thread index if changed
	if existing.ThreadID != rec.ThreadID {
		if _, taken := s.data.Indexes.ThreadID[rec.ThreadID]; taken {
			return &StorageError{Op: "update", Entity: "record", ID: rec.ThreadID, Err: ErrAlreadyExists}
		}
		delete(s.data.Indexes.ThreadID, existing.ThreadID)
		s.data.Indexes.ThreadID[rec.ThreadID] = rec.ID
	}

	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = time.Now()
	stored := *rec
	s.data.Records[rec.ID] = &stored

	return s.save()
}

func (s *JSONStore) DeleteRecord(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.data.Records[id]
	if !exists {
		return &StorageError{Op: "delete", Entity: "record", ID: id, Err: ErrNotFound}
	}

	delete(s.data.Records, id)
	delete(s.data.Indexes.ThreadID, rec.ThreadID)

	return s.save()
}

func (s *JSONStore) ListRecords(ctx context.Context, subreddit string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*Record, 0, len(s.data.Records))
	for _, rec := range s.data.Records {
		if subreddit != "" && rec.Subreddit != subreddit {
			continue
		}
		out := *rec
		records = append(records, &out)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}
