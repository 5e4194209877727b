// Package backend defines the StorageBackend contract and its variants:
// a provider-SDK remote store (MinIO), a raw-HTTP remote store, and the
// local durable fallback. The coordinator walks them through a Registry.
package backend

import (
	"context"
	"regexp"

	"go.opentelemetry.io/otel"

	"github.com/priyank/cloudvault/internal/models"
)

var tracer = otel.Tracer("cloudvault-backend")

// Class groups backends by transport for per-attempt timeout selection.
type Class string

const (
	ClassSDK   Class = "sdk"
	ClassHTTP  Class = "http"
	ClassLocal Class = "local"
)

// ProgressFunc receives progress for one attempt. Percent is 0..100 and
// non-decreasing within a single attempt; it may reset when the
// coordinator falls back to another backend.
type ProgressFunc func(percent int, message string)

// PutResult reports where a backend stored the bytes.
type PutResult struct {
	Locator   string
	SizeBytes int64
}

// StorageBackend uploads, deletes and resolves a single file's bytes.
type StorageBackend interface {
	// Kind identifies the backend in FileRecords.
	Kind() models.BackendKind

	// Class selects the per-attempt timeout for this backend.
	Class() Class

	// IsAvailable is a cheap availability check. It never returns an
	// error; any uncertainty reads as false.
	IsAvailable(ctx context.Context) bool

	// Put stores the file and reports progress. Failures are wrapped in
	// vaulterr sentinels (ErrTransfer, ErrTimeout, ErrCapacity,
	// ErrQuotaExceeded) so the coordinator can classify them.
	Put(ctx context.Context, ownerID string, file *models.IncomingFile, onProgress ProgressFunc) (*PutResult, error)

	// Remove deletes the object at locator. Idempotent: removing an
	// already-absent object returns true.
	Remove(ctx context.Context, locator string) (bool, error)

	// ResolveURL returns a dereferenceable address for the object. For the
	// local backend this is a session-scoped handle, not a network URL.
	ResolveURL(ctx context.Context, locator string) (string, error)
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9.]`)

// cleanName sanitizes a filename for use inside an object key.
func cleanName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}
