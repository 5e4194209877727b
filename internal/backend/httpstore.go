package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/priyank/cloudvault/internal/chunker"
	"github.com/priyank/cloudvault/internal/models"
	"github.com/priyank/cloudvault/internal/vaulterr"
)

// HTTPObjectBackend is the raw-HTTP remote variant: it pushes the payload
// to an S3-compatible REST endpoint in Content-Range chunks, with no native
// progress signal from the transport. Progress is estimated from the bytes
// flushed so far and labeled as such in progress messages — an estimate,
// never a completion signal.
type HTTPObjectBackend struct {
	baseURL string
	token   string
	bucket  string
	client  *http.Client
	chunker *chunker.Chunker
}

// NewHTTPObjectBackend builds the raw-HTTP variant. baseURL may be empty,
// in which case the backend reports itself unavailable.
func NewHTTPObjectBackend(baseURL, token, bucket string, ch *chunker.Chunker) *HTTPObjectBackend {
	return &HTTPObjectBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		bucket:  bucket,
		client:  &http.Client{},
		chunker: ch,
	}
}

func (h *HTTPObjectBackend) Kind() models.BackendKind { return models.BackendHTTP }
func (h *HTTPObjectBackend) Class() Class             { return ClassHTTP }

// IsAvailable is a pure configuration check; no request is made.
func (h *HTTPObjectBackend) IsAvailable(ctx context.Context) bool {
	return h != nil && h.baseURL != ""
}

func (h *HTTPObjectBackend) objectURL(locator string) string {
	return fmt.Sprintf("%s/object/%s/%s", h.baseURL, h.bucket, locator)
}

// Put uploads the payload in sequential Content-Range chunks to a single
// object key.
func (h *HTTPObjectBackend) Put(ctx context.Context, ownerID string, file *models.IncomingFile, onProgress ProgressFunc) (*PutResult, error) {
	locator := fmt.Sprintf("%s/%d_%s", ownerID, time.Now().UnixMilli(), cleanName(file.Name))

	ctx, span := tracer.Start(ctx, "httpstore.put",
		trace.WithAttributes(
			attribute.String("object_key", locator),
			attribute.Int64("size_bytes", file.Size),
		),
	)
	defer span.End()

	chunks, total, err := h.chunker.ChunkStream(bytes.NewReader(file.Bytes))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: chunking failed: %v", vaulterr.ErrTransfer, err)
	}

	onProgress(0, fmt.Sprintf("uploading %s over http in %d chunks", file.Name, len(chunks)))

	var sent int64
	for _, ch := range chunks {
		if err := h.putChunk(ctx, locator, ch, total, file.MimeType); err != nil {
			span.RecordError(err)
			return nil, err
		}
		sent += ch.Size

		pct := 0
		if total > 0 {
			pct = int(sent * 100 / total)
		}
		onProgress(pct, fmt.Sprintf("uploading %s over http: %d%% (estimated)", file.Name, pct))
	}

	span.SetAttributes(
		attribute.Int("chunk_count", len(chunks)),
		attribute.Bool("upload_success", true),
	)
	return &PutResult{Locator: locator, SizeBytes: total}, nil
}

func (h *HTTPObjectBackend) putChunk(ctx context.Context, locator string, ch *models.ChunkData, total int64, contentType string) error {
	start := int64(ch.OrderIndex) * h.chunker.ChunkSize()
	end := start + ch.Size - 1

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, h.objectURL(locator), bytes.NewReader(ch.Data))
	if err != nil {
		return fmt.Errorf("%w: %v", vaulterr.ErrTransfer, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, total))
	req.Header.Set("X-Chunk-Hash", ch.Hash)
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: chunk %d: %v", vaulterr.ErrTimeout, ch.OrderIndex, err)
		}
		return fmt.Errorf("%w: chunk %d: %v", vaulterr.ErrTransfer, ch.OrderIndex, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusRequestEntityTooLarge || resp.StatusCode == http.StatusInsufficientStorage:
		return fmt.Errorf("%w: chunk %d rejected with status %d", vaulterr.ErrCapacity, ch.OrderIndex, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: chunk %d rejected with status %d", vaulterr.ErrTransfer, ch.OrderIndex, resp.StatusCode)
	}
	return nil
}

// Remove deletes the object; a 404 means the postcondition already holds.
func (h *HTTPObjectBackend) Remove(ctx context.Context, locator string) (bool, error) {
	ctx, span := tracer.Start(ctx, "httpstore.remove",
		trace.WithAttributes(attribute.String("object_key", locator)),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, h.objectURL(locator), nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", vaulterr.ErrTransfer, err)
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("%w: %v", vaulterr.ErrTransfer, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return true, nil
	}
	if resp.StatusCode >= 400 {
		return false, fmt.Errorf("%w: delete rejected with status %d", vaulterr.ErrTransfer, resp.StatusCode)
	}
	return true, nil
}

// ResolveURL returns the public address for the object.
func (h *HTTPObjectBackend) ResolveURL(ctx context.Context, locator string) (string, error) {
	return h.objectURL(locator), nil
}
