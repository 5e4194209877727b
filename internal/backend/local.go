package backend

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/priyank/cloudvault/internal/localstore"
	"github.com/priyank/cloudvault/internal/logging"
	"github.com/priyank/cloudvault/internal/models"
	"github.com/priyank/cloudvault/internal/vaulterr"
)

// LocalBackend adapts the embedded durable store to the StorageBackend
// contract. It sits last in the fallback chain: when it fails there is
// nothing below it.
type LocalBackend struct {
	store *localstore.Store
	log   logging.Logger
}

func NewLocalBackend(store *localstore.Store, log logging.Logger) *LocalBackend {
	return &LocalBackend{store: store, log: log}
}

func (l *LocalBackend) Kind() models.BackendKind { return models.BackendLocal }
func (l *LocalBackend) Class() Class             { return ClassLocal }

// IsAvailable reports false only once the store engine has terminally
// failed; an uninitialized store is available because init is lazy.
func (l *LocalBackend) IsAvailable(ctx context.Context) bool {
	return l != nil && l.store != nil && l.store.State() != localstore.StateFailed
}

// Put writes the file into the local store. On quota exhaustion it evicts
// the owner's oldest records once and retries; a second quota failure
// propagates for the coordinator to treat as fatal.
func (l *LocalBackend) Put(ctx context.Context, ownerID string, file *models.IncomingFile, onProgress ProgressFunc) (*PutResult, error) {
	ctx, span := tracer.Start(ctx, "localstore.put",
		trace.WithAttributes(
			attribute.String("owner_id", ownerID),
			attribute.Int64("size_bytes", file.Size),
		),
	)
	defer span.End()

	onProgress(0, fmt.Sprintf("storing %s locally", file.Name))

	rec, err := l.store.Put(ctx, ownerID, file)
	if errors.Is(err, vaulterr.ErrQuotaExceeded) {
		evicted, evictErr := l.store.EvictOldest(ctx, ownerID)
		if evictErr != nil {
			span.RecordError(evictErr)
			return nil, err
		}
		l.log.Warn(ctx, "local store full, evicted oldest records",
			"owner_id", ownerID, "evicted", evicted)
		rec, err = l.store.Put(ctx, ownerID, file)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	onProgress(99, fmt.Sprintf("stored %s locally", file.Name))
	span.SetAttributes(attribute.Bool("upload_success", true))
	return &PutResult{Locator: rec.Locator, SizeBytes: rec.SizeBytes}, nil
}

// Remove deletes the record from the local store and revokes its handle.
func (l *LocalBackend) Remove(ctx context.Context, locator string) (bool, error) {
	return l.store.Delete(ctx, locator)
}

// ResolveURL returns a session-scoped handle. Callers must re-resolve
// after a restart rather than cache it long-term.
func (l *LocalBackend) ResolveURL(ctx context.Context, locator string) (string, error) {
	return l.store.ResolveURL(ctx, locator)
}
