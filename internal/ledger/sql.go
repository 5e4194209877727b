package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/priyank/cloudvault/internal/dbx"
	"github.com/priyank/cloudvault/internal/logging"
	"github.com/priyank/cloudvault/internal/models"
	"github.com/priyank/cloudvault/internal/vaulterr"
)

// schemaStatements are applied one by one; "already exists" failures are
// tolerated so EnsureSchema stays idempotent across engines.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS files (
	   id VARCHAR(64) PRIMARY KEY,
	   owner_id VARCHAR(128) NOT NULL,
	   name VARCHAR(512) NOT NULL,
	   mime_type VARCHAR(255) NOT NULL,
	   size_bytes BIGINT NOT NULL,
	   backend_kind VARCHAR(32) NOT NULL,
	   locator VARCHAR(1024) NOT NULL,
	   created_at BIGINT NOT NULL,
	   last_accessed_at BIGINT NOT NULL
	 )`,
	`CREATE INDEX idx_files_owner ON files(owner_id)`,
	`CREATE INDEX idx_files_name ON files(name)`,
	`CREATE INDEX idx_files_created_at ON files(created_at)`,
	`CREATE TABLE IF NOT EXISTS user_stats (
	   owner_id VARCHAR(128) PRIMARY KEY,
	   file_count BIGINT NOT NULL DEFAULT 0,
	   storage_used_bytes BIGINT NOT NULL DEFAULT 0
	 )`,
}

// SQLLedger stores records in a MySQL-compatible database. Stats updates
// are applied as atomic increments inside the same transaction as the file
// row, never as read-modify-write across a suspension point.
type SQLLedger struct {
	db    *sql.DB
	cache *StatsCache // optional
	log   logging.Logger
}

// NewSQL creates a ledger over db. cache may be nil to disable the stats
// cache.
func NewSQL(db *sql.DB, cache *StatsCache, log logging.Logger) *SQLLedger {
	return &SQLLedger{db: db, cache: cache, log: log}
}

// EnsureSchema creates the tables and indexes if missing.
func (l *SQLLedger) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			if isAlreadyExists(err) {
				continue
			}
			return fmt.Errorf("failed to apply ledger schema: %w", err)
		}
	}
	return nil
}

func (l *SQLLedger) Record(ctx context.Context, rec *models.FileRecord) error {
	ctx, span := tracer.Start(ctx, "ledger.record",
		trace.WithAttributes(
			attribute.String("file_id", rec.ID),
			attribute.String("owner_id", rec.OwnerID),
			attribute.Int64("size_bytes", rec.SizeBytes),
		),
	)
	defer span.End()

	err := dbx.WithTx(ctx, l.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO files (id, owner_id, name, mime_type, size_bytes, backend_kind, locator, created_at, last_accessed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.OwnerID, rec.Name, rec.MimeType, rec.SizeBytes,
			string(rec.BackendKind), rec.Locator,
			rec.CreatedAt.UnixNano(), rec.LastAccessedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to insert file record: %w", err)
		}
		return bumpStats(ctx, tx, rec.OwnerID, 1, rec.SizeBytes)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	l.invalidate(ctx, rec.OwnerID)
	return nil
}

func (l *SQLLedger) Get(ctx context.Context, id string) (*models.FileRecord, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, mime_type, size_bytes, backend_kind, locator, created_at, last_accessed_at
		 FROM files WHERE id = ?`, id)

	rec, err := scanFileRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vaulterr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query file record: %w", err)
	}
	return rec, nil
}

func (l *SQLLedger) List(ctx context.Context, ownerID string, sort SortKey, desc bool) ([]*models.FileRecord, error) {
	ctx, span := tracer.Start(ctx, "ledger.list",
		trace.WithAttributes(attribute.String("owner_id", ownerID)),
	)
	defer span.End()

	if !sort.Valid() {
		sort = SortCreatedAt
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}

	// sort is whitelisted above; never caller-supplied SQL
	query := fmt.Sprintf(
		`SELECT id, owner_id, name, mime_type, size_bytes, backend_kind, locator, created_at, last_accessed_at
		 FROM files WHERE owner_id = ? ORDER BY %s %s`, string(sort), dir)

	rows, err := l.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var records []*models.FileRecord
	for rows.Next() {
		rec, err := scanFileRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating file records: %w", err)
	}

	span.SetAttributes(attribute.Int("record_count", len(records)))
	return records, nil
}

func (l *SQLLedger) Delete(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "ledger.delete",
		trace.WithAttributes(attribute.String("file_id", id)),
	)
	defer span.End()

	var ownerID string
	err := dbx.WithTx(ctx, l.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var sizeBytes int64
		row := tx.QueryRowContext(ctx, `SELECT owner_id, size_bytes FROM files WHERE id = ?`, id)
		if err := row.Scan(&ownerID, &sizeBytes); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				// already gone; the desired postcondition holds
				return nil
			}
			return fmt.Errorf("failed to look up file record: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete file record: %w", err)
		}
		return bumpStats(ctx, tx, ownerID, -1, -sizeBytes)
	})
	if err != nil {
		span.RecordError(err)
		return false, err
	}

	if ownerID != "" {
		l.invalidate(ctx, ownerID)
	}
	return true, nil
}

func (l *SQLLedger) Touch(ctx context.Context, id string) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE files SET last_accessed_at = ? WHERE id = ?`, time.Now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to update access time: %w", err)
	}
	return nil
}

func (l *SQLLedger) Stats(ctx context.Context, ownerID string) (*models.UserStorageStats, error) {
	ctx, span := tracer.Start(ctx, "ledger.stats",
		trace.WithAttributes(attribute.String("owner_id", ownerID)),
	)
	defer span.End()

	if l.cache != nil {
		if cached, err := l.cache.GetStats(ctx, ownerID); err != nil {
			l.log.Warn(ctx, "stats cache read failed", "owner_id", ownerID, "error", err)
		} else if cached != nil {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return cached, nil
		}
	}

	stats := &models.UserStorageStats{OwnerID: ownerID}
	err := l.db.QueryRowContext(ctx,
		`SELECT file_count, storage_used_bytes FROM user_stats WHERE owner_id = ?`, ownerID).
		Scan(&stats.FileCount, &stats.StorageUsedBytes)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}

	if l.cache != nil {
		if err := l.cache.SetStats(ctx, stats); err != nil {
			l.log.Warn(ctx, "stats cache write failed", "owner_id", ownerID, "error", err)
		}
	}
	return stats, nil
}

func (l *SQLLedger) invalidate(ctx context.Context, ownerID string) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Invalidate(ctx, ownerID); err != nil {
		l.log.Warn(ctx, "stats cache invalidate failed", "owner_id", ownerID, "error", err)
	}
}

// bumpStats applies an atomic increment to the owner's aggregate row,
// inserting it on first use. Two concurrent transactions can both see the
// row missing for a brand-new owner; the loser's INSERT then hits the
// primary key, so a duplicate-key error falls back to the UPDATE, which
// blocks on the winner's row lock and applies after their commit.
func bumpStats(ctx context.Context, tx dbx.DBTX, ownerID string, files, bytes int64) error {
	const update = `UPDATE user_stats SET file_count = file_count + ?, storage_used_bytes = storage_used_bytes + ?
		 WHERE owner_id = ?`

	res, err := tx.ExecContext(ctx, update, files, bytes, ownerID)
	if err != nil {
		return fmt.Errorf("failed to update stats: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO user_stats (owner_id, file_count, storage_used_bytes) VALUES (?, ?, ?)`,
			ownerID, files, bytes)
		if err != nil && !isDuplicateKey(err) {
			return fmt.Errorf("failed to insert stats row: %w", err)
		}
		if err != nil {
			if _, err := tx.ExecContext(ctx, update, files, bytes, ownerID); err != nil {
				return fmt.Errorf("failed to update stats: %w", err)
			}
		}
	}
	return nil
}

func scanFileRow(scan func(dest ...any) error) (*models.FileRecord, error) {
	var rec models.FileRecord
	var kind string
	var createdAt, accessedAt int64
	if err := scan(&rec.ID, &rec.OwnerID, &rec.Name, &rec.MimeType, &rec.SizeBytes,
		&kind, &rec.Locator, &createdAt, &accessedAt); err != nil {
		return nil, err
	}
	rec.BackendKind = models.BackendKind(kind)
	rec.CreatedAt = time.Unix(0, createdAt)
	rec.LastAccessedAt = time.Unix(0, accessedAt)
	return &rec, nil
}

func isDuplicateKey(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "unique constraint")
}

func isAlreadyExists(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "duplicate key name")
}
