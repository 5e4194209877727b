// Package localstore implements the embedded durable store used as the
// last-resort upload destination: raw bytes plus metadata in a local SQLite
// database, surviving process restarts. It is the on-disk analog of a
// browser's IndexedDB "files" object store.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/priyank/cloudvault/internal/dbx"
	"github.com/priyank/cloudvault/internal/models"
	"github.com/priyank/cloudvault/internal/vaulterr"
)

// State of the store's lazy initialization.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

const schema = `
CREATE TABLE IF NOT EXISTS files (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  name TEXT NOT NULL,
  mime_type TEXT NOT NULL,
  size_bytes INTEGER NOT NULL,
  data BLOB NOT NULL,
  created_at INTEGER NOT NULL,
  last_accessed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_owner ON files(owner_id);
CREATE INDEX IF NOT EXISTS idx_files_name ON files(name);
CREATE INDEX IF NOT EXISTS idx_files_created_at ON files(created_at);
`

// evictFraction is the share of an owner's oldest records removed when the
// store hits its quota.
const evictFraction = 0.2

// Store is a lazily initialized SQLite-backed durable file store. All
// methods trigger initialization on first use; concurrent initializers
// share the single underlying database handle.
type Store struct {
	path string

	initOnce sync.Once
	initErr  error
	db       *sql.DB

	mu      sync.Mutex
	state   State
	handles map[string]string // id -> issued session handle
}

// New creates a store for the SQLite database at path. The database is not
// opened until first use.
func New(path string) *Store {
	return &Store{
		path:    path,
		state:   StateUninitialized,
		handles: make(map[string]string),
	}
}

// State reports the initialization state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ensure lazily opens the database and applies the schema. Idempotent:
// every caller observes the same handle, or the same terminal failure.
func (s *Store) ensure(ctx context.Context) error {
	s.initOnce.Do(func() {
		s.setState(StateInitializing)

		db, err := sql.Open("sqlite", s.path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
		if err != nil {
			s.initErr = fmt.Errorf("%w: %v", vaulterr.ErrStoreUnsupported, err)
			s.setState(StateFailed)
			return
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			s.initErr = fmt.Errorf("%w: %v", vaulterr.ErrStoreUnsupported, err)
			s.setState(StateFailed)
			return
		}
		if _, err := db.ExecContext(ctx, schema); err != nil {
			_ = db.Close()
			s.initErr = fmt.Errorf("%w: schema: %v", vaulterr.ErrStoreUnsupported, err)
			s.setState(StateFailed)
			return
		}

		s.db = db
		s.setState(StateReady)
	})
	return s.initErr
}

func (s *Store) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Put stores the full byte content under a freshly generated id inside a
// single transaction. A full underlying store surfaces as ErrQuotaExceeded.
func (s *Store) Put(ctx context.Context, ownerID string, file *models.IncomingFile) (*models.FileRecord, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}

	now := time.Now()
	rec := &models.FileRecord{
		ID:             uuid.New().String(),
		OwnerID:        ownerID,
		Name:           file.Name,
		MimeType:       file.MimeType,
		SizeBytes:      file.Size,
		BackendKind:    models.BackendLocal,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	rec.Locator = rec.ID

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO files (id, owner_id, name, mime_type, size_bytes, data, created_at, last_accessed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.OwnerID, rec.Name, rec.MimeType, rec.SizeBytes, file.Bytes,
			now.UnixNano(), now.UnixNano())
		return err
	})
	if err != nil {
		if isQuotaErr(err) {
			return nil, fmt.Errorf("%w: %v", vaulterr.ErrQuotaExceeded, err)
		}
		return nil, fmt.Errorf("failed to store file locally: %w", err)
	}

	return rec, nil
}

// Get returns all records for the owner, newest first. Bytes are not
// loaded; use ReadFile for content.
func (s *Store) Get(ctx context.Context, ownerID string) ([]*models.FileRecord, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, name, mime_type, size_bytes, created_at, last_accessed_at
		 FROM files WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query local files: %w", err)
	}
	defer rows.Close()

	var records []*models.FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating local files: %w", err)
	}

	return records, nil
}

// ReadFile loads the stored bytes for id and bumps last_accessed_at in the
// same transaction.
func (s *Store) ReadFile(ctx context.Context, id string) ([]byte, *models.FileRecord, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, nil, err
	}

	var data []byte
	var rec *models.FileRecord

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		row := tx.QueryRowContext(ctx,
			`SELECT id, owner_id, name, mime_type, size_bytes, data, created_at, last_accessed_at
			 FROM files WHERE id = ?`, id)

		var createdAt, accessedAt int64
		r := &models.FileRecord{BackendKind: models.BackendLocal}
		if err := row.Scan(&r.ID, &r.OwnerID, &r.Name, &r.MimeType, &r.SizeBytes, &data, &createdAt, &accessedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return vaulterr.ErrNotFound
			}
			return fmt.Errorf("failed to read local file: %w", err)
		}
		r.Locator = r.ID
		r.CreatedAt = time.Unix(0, createdAt)

		now := time.Now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE files SET last_accessed_at = ? WHERE id = ?`, now.UnixNano(), id); err != nil {
			return fmt.Errorf("failed to update access time: %w", err)
		}
		r.LastAccessedAt = now
		rec = r
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return data, rec, nil
}

// Delete removes the record and revokes any session handle issued for it.
// Idempotent: deleting an absent id still returns true, since the desired
// postcondition holds.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if err := s.ensure(ctx); err != nil {
		return false, err
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete local file: %w", err)
	}

	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()

	return true, nil
}

// Stats derives the owner's aggregate from the authoritative record set.
// Never computed from a separately maintained counter.
func (s *Store) Stats(ctx context.Context, ownerID string) (*models.UserStorageStats, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}

	stats := &models.UserStorageStats{OwnerID: ownerID}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM files WHERE owner_id = ?`, ownerID).
		Scan(&stats.FileCount, &stats.StorageUsedBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to compute local stats: %w", err)
	}

	return stats, nil
}

// EvictOldest removes the oldest portion of the owner's records to make
// room when the store is full. Returns the number of records removed.
func (s *Store) EvictOldest(ctx context.Context, ownerID string) (int, error) {
	if err := s.ensure(ctx); err != nil {
		return 0, err
	}

	var evicted int
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM files WHERE owner_id = ?`, ownerID).Scan(&count); err != nil {
			return err
		}
		if count == 0 {
			return nil
		}

		n := int(float64(count)*evictFraction + 0.999) // ceil
		if n < 1 {
			n = 1
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM files WHERE id IN (
			   SELECT id FROM files WHERE owner_id = ? ORDER BY created_at ASC LIMIT ?
			 )`, ownerID, n)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		evicted = int(affected)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to evict local files: %w", err)
	}

	return evicted, nil
}

// ResolveURL issues a session-scoped handle for the stored file. Handles
// are valid only within the current process lifetime and are revoked when
// the record is deleted.
func (s *Store) ResolveURL(ctx context.Context, id string) (string, error) {
	if err := s.ensure(ctx); err != nil {
		return "", err
	}

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM files WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return "", vaulterr.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve local file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[id]; ok {
		return h, nil
	}
	h := fmt.Sprintf("vaultlocal://%s/%s", id, uuid.New().String())
	s.handles[id] = h
	return h, nil
}

// Close closes the underlying database if it was opened.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func scanRecord(rows *sql.Rows) (*models.FileRecord, error) {
	var createdAt, accessedAt int64
	rec := &models.FileRecord{BackendKind: models.BackendLocal}
	if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.Name, &rec.MimeType, &rec.SizeBytes, &createdAt, &accessedAt); err != nil {
		return nil, fmt.Errorf("failed to scan local file: %w", err)
	}
	rec.Locator = rec.ID
	rec.CreatedAt = time.Unix(0, createdAt)
	rec.LastAccessedAt = time.Unix(0, accessedAt)
	return rec, nil
}

func isQuotaErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database or disk is full") ||
		strings.Contains(msg, "SQLITE_FULL")
}
