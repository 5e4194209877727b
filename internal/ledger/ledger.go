// Package ledger tracks which backend holds every file and keeps per-owner
// aggregate stats consistent with the record set. It is the read side for
// listings and dashboards, independent of the bytes themselves.
package ledger

import (
	"context"

	"go.opentelemetry.io/otel"

	"github.com/priyank/cloudvault/internal/models"
)

var tracer = otel.Tracer("cloudvault-ledger")

// SortKey selects the ordering column for listings.
type SortKey string

const (
	SortCreatedAt SortKey = "created_at"
	SortName      SortKey = "name"
	SortSize      SortKey = "size_bytes"
)

// Valid reports whether the key is one of the supported sort columns.
func (k SortKey) Valid() bool {
	switch k {
	case SortCreatedAt, SortName, SortSize:
		return true
	}
	return false
}

// Ledger is the metadata record set. Record and Delete update
// UserStorageStats atomically with the file row: a subsequent read never
// observes one without the other.
type Ledger interface {
	// Record persists a FileRecord and increments the owner's stats.
	Record(ctx context.Context, rec *models.FileRecord) error

	// Get fetches one record by id. Returns vaulterr.ErrNotFound if absent.
	Get(ctx context.Context, id string) (*models.FileRecord, error)

	// List returns the owner's records ordered by the given key.
	List(ctx context.Context, ownerID string, sort SortKey, desc bool) ([]*models.FileRecord, error)

	// Delete removes the record and decrements stats. Idempotent: deleting
	// an absent id returns true and leaves stats unchanged.
	Delete(ctx context.Context, id string) (bool, error)

	// Touch bumps last_accessed_at for the record.
	Touch(ctx context.Context, id string) error

	// Stats returns the owner's aggregate. Missing owners read as zeros.
	Stats(ctx context.Context, ownerID string) (*models.UserStorageStats, error)
}
