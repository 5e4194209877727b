// Package coordinator drives an upload through the backend ladder: remote
// SDK first, raw HTTP next, local durable store as the last resort. Each
// backend gets a bounded number of attempts; capacity rejections skip the
// remaining attempts and fall through to the next rung.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/priyank/cloudvault/internal/backend"
	"github.com/priyank/cloudvault/internal/compress"
	"github.com/priyank/cloudvault/internal/config"
	"github.com/priyank/cloudvault/internal/ledger"
	"github.com/priyank/cloudvault/internal/logging"
	"github.com/priyank/cloudvault/internal/models"
	"github.com/priyank/cloudvault/internal/vaulterr"
)

var tracer = otel.Tracer("cloudvault-coordinator")

// Policy bounds one upload: the size ceiling, per-backend attempt budget,
// and per-attempt timeouts by transport class.
type Policy struct {
	SizeCeilingBytes int64
	MaxRetries       int
	RetryDelay       time.Duration
	MaxRetryDelay    time.Duration

	SDKTimeout   time.Duration
	HTTPTimeout  time.Duration
	LocalTimeout time.Duration
}

// PolicyFromConfig derives the upload policy from application config.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		SizeCeilingBytes: cfg.SizeCeilingBytes(),
		MaxRetries:       cfg.MaxRetries,
		RetryDelay:       cfg.RetryDelay,
		MaxRetryDelay:    5 * time.Second,
		SDKTimeout:       cfg.SDKTimeout,
		HTTPTimeout:      cfg.HTTPTimeout,
		LocalTimeout:     cfg.LocalTimeout,
	}
}

func (p Policy) timeoutFor(class backend.Class) time.Duration {
	switch class {
	case backend.ClassSDK:
		return p.SDKTimeout
	case backend.ClassHTTP:
		return p.HTTPTimeout
	default:
		return p.LocalTimeout
	}
}

// Coordinator owns the upload pipeline: preflight, optional image
// compression, the backend walk, and the synchronous ledger write.
type Coordinator struct {
	registry   *backend.Registry
	ledger     ledger.Ledger
	compressor *compress.Compressor // nil disables compression
	policy     Policy
	log        logging.Logger
}

func New(reg *backend.Registry, led ledger.Ledger, comp *compress.Compressor, policy Policy, log logging.Logger) *Coordinator {
	return &Coordinator{
		registry:   reg,
		ledger:     led,
		compressor: comp,
		policy:     policy,
		log:        log,
	}
}

// Upload stores file for ownerID on the first backend that accepts it and
// records the result in the ledger. onProgress may be nil; when set it is
// called with non-decreasing percentages per attempt (resetting on
// fallback) and receives percent=100 exactly once, as the terminal call
// after the ledger write succeeds.
func (c *Coordinator) Upload(ctx context.Context, ownerID string, file *models.IncomingFile, onProgress backend.ProgressFunc) (*models.FileRecord, error) {
	if file == nil {
		return nil, fmt.Errorf("%w: nil file", vaulterr.ErrInvalidArgument)
	}
	if ownerID == "" {
		return nil, fmt.Errorf("%w: empty owner id", vaulterr.ErrInvalidArgument)
	}

	ctx, span := tracer.Start(ctx, "coordinator.upload",
		trace.WithAttributes(
			attribute.String("owner_id", ownerID),
			attribute.String("file_name", file.Name),
			attribute.Int64("size_bytes", file.Size),
		),
	)
	defer span.End()

	// Preflight runs before any backend is touched.
	if file.Size > c.policy.SizeCeilingBytes {
		err := fmt.Errorf("%w: %d bytes exceeds ceiling of %d",
			vaulterr.ErrOversize, file.Size, c.policy.SizeCeilingBytes)
		span.RecordError(err)
		return nil, err
	}

	if c.compressor != nil {
		file = c.compressor.Compress(ctx, file)
	}

	candidates := c.registry.Candidates(ctx)
	if len(candidates) == 0 {
		err := fmt.Errorf("%w: no backend available", vaulterr.ErrFatalStorage)
		span.RecordError(err)
		return nil, err
	}

	var lastErr error
	for _, b := range candidates {
		res, err := c.tryBackend(ctx, b, ownerID, file, onProgress)
		if err != nil {
			lastErr = err
			c.log.Warn(ctx, "backend exhausted, falling back",
				"backend", string(b.Kind()), "file_name", file.Name, "error", err)
			continue
		}

		rec, err := c.commit(ctx, b, ownerID, file, res)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}

		span.SetAttributes(attribute.String("backend_kind", string(rec.BackendKind)))
		if onProgress != nil {
			onProgress(100, "upload complete")
		}
		return rec, nil
	}

	err := fmt.Errorf("%w: last error: %v", vaulterr.ErrFatalStorage, lastErr)
	span.RecordError(err)
	return nil, err
}

// tryBackend runs up to MaxRetries attempts against one backend with
// exponential backoff between attempts. Capacity rejections are permanent
// for the backend: no point retrying a full provider.
func (c *Coordinator) tryBackend(ctx context.Context, b backend.StorageBackend, ownerID string, file *models.IncomingFile, onProgress backend.ProgressFunc) (*backend.PutResult, error) {
	ctx, span := tracer.Start(ctx, "coordinator.try_backend",
		trace.WithAttributes(attribute.String("backend_kind", string(b.Kind()))),
	)
	defer span.End()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.policy.RetryDelay
	bo.MaxInterval = c.policy.MaxRetryDelay
	policy := backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(c.policy.MaxRetries-1)), ctx)

	attempts := 0
	var res *backend.PutResult
	err := backoff.Retry(func() error {
		attempts++
		attempt := &models.UploadAttempt{
			Backend:   b.Kind(),
			Attempt:   attempts,
			StartedAt: time.Now(),
		}
		tracker := newProgressTracker(attempt, onProgress)

		attemptCtx, cancel := context.WithTimeout(ctx, c.policy.timeoutFor(b.Class()))
		defer cancel()

		r, err := b.Put(attemptCtx, ownerID, file, tracker.report)
		if err != nil {
			c.log.Warn(ctx, "upload attempt failed",
				"backend", string(attempt.Backend), "attempt", attempt.Attempt,
				"percent", attempt.Percent, "elapsed", time.Since(attempt.StartedAt),
				"error", err)
			if errors.Is(err, vaulterr.ErrCapacity) || errors.Is(err, vaulterr.ErrQuotaExceeded) {
				return backoff.Permanent(err)
			}
			return err
		}
		res = r
		return nil
	}, policy)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Int("attempts", attempts))
		return nil, err
	}

	span.SetAttributes(attribute.Int("attempts", attempts))
	return res, nil
}

// commit writes the ledger record for stored bytes. On ledger failure the
// bytes are rolled back so no orphan survives; a failed rollback is logged
// loudly for manual repair.
func (c *Coordinator) commit(ctx context.Context, b backend.StorageBackend, ownerID string, file *models.IncomingFile, res *backend.PutResult) (*models.FileRecord, error) {
	now := time.Now()
	rec := &models.FileRecord{
		ID:             uuid.New().String(),
		OwnerID:        ownerID,
		Name:           file.Name,
		MimeType:       file.MimeType,
		SizeBytes:      res.SizeBytes,
		BackendKind:    b.Kind(),
		Locator:        res.Locator,
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	if err := c.ledger.Record(ctx, rec); err != nil {
		if _, rmErr := b.Remove(ctx, res.Locator); rmErr != nil {
			c.log.Error(ctx, "ledger-inconsistent: rollback failed, orphaned bytes remain",
				"backend", string(b.Kind()), "locator", res.Locator,
				"ledger_error", err, "rollback_error", rmErr)
		}
		return nil, fmt.Errorf("failed to record upload: %w", err)
	}
	return rec, nil
}

// Delete removes a file's bytes from its owning backend, then the ledger
// record. Idempotent end to end.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "coordinator.delete",
		trace.WithAttributes(attribute.String("file_id", id)),
	)
	defer span.End()

	rec, err := c.ledger.Get(ctx, id)
	if errors.Is(err, vaulterr.ErrNotFound) {
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return err
	}

	b, ok := c.registry.ByKind(rec.BackendKind)
	if !ok {
		return fmt.Errorf("%w: no backend registered for kind %q",
			vaulterr.ErrBackendUnavailable, rec.BackendKind)
	}
	if _, err := b.Remove(ctx, rec.Locator); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to remove file bytes: %w", err)
	}

	if _, err := c.ledger.Delete(ctx, id); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// ResolveURL returns a dereferenceable address for the file and bumps its
// access time.
func (c *Coordinator) ResolveURL(ctx context.Context, id string) (string, error) {
	rec, err := c.ledger.Get(ctx, id)
	if err != nil {
		return "", err
	}
	b, ok := c.registry.ByKind(rec.BackendKind)
	if !ok {
		return "", fmt.Errorf("%w: no backend registered for kind %q",
			vaulterr.ErrBackendUnavailable, rec.BackendKind)
	}
	url, err := b.ResolveURL(ctx, rec.Locator)
	if err != nil {
		return "", err
	}
	if err := c.ledger.Touch(ctx, id); err != nil {
		c.log.Warn(ctx, "failed to bump access time", "file_id", id, "error", err)
	}
	return url, nil
}

// progressTracker enforces the per-attempt contract: percentages are
// non-decreasing and capped at 99. The terminal 100 belongs to Upload,
// which emits it once after the ledger write. Accepted reports are
// mirrored onto the attempt so failure logs carry the last known state.
type progressTracker struct {
	attempt *models.UploadAttempt
	fn      backend.ProgressFunc
}

func newProgressTracker(attempt *models.UploadAttempt, fn backend.ProgressFunc) *progressTracker {
	return &progressTracker{attempt: attempt, fn: fn}
}

func (t *progressTracker) report(percent int, message string) {
	if percent > 99 {
		percent = 99
	}
	if percent < t.attempt.Percent {
		return
	}
	t.attempt.Percent = percent
	t.attempt.Message = message
	if t.fn != nil {
		t.fn(percent, message)
	}
}
