package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/priyank/cloudvault/internal/models"
	"github.com/priyank/cloudvault/internal/vaulterr"
)

// presignExpiry bounds how long a resolved remote URL stays valid.
const presignExpiry = 24 * time.Hour

// MinioBackend is the provider-SDK remote variant: it streams uploads
// through the MinIO client and reports real transfer progress from the
// stream position.
type MinioBackend struct {
	client     *minio.Client
	bucketName string
}

// NewMinioBackend initializes the client and ensures the bucket exists.
func NewMinioBackend(endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*MinioBackend, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinioBackend{
		client:     client,
		bucketName: bucketName,
	}, nil
}

func (m *MinioBackend) Kind() models.BackendKind { return models.BackendMinio }
func (m *MinioBackend) Class() Class             { return ClassSDK }

// IsAvailable reports whether the client was constructed and the bucket
// handshake succeeded. No network call is made here.
func (m *MinioBackend) IsAvailable(ctx context.Context) bool {
	return m != nil && m.client != nil
}

// Put uploads the file under an owner-scoped object key.
func (m *MinioBackend) Put(ctx context.Context, ownerID string, file *models.IncomingFile, onProgress ProgressFunc) (*PutResult, error) {
	locator := fmt.Sprintf("owners/%s/%d_%s", ownerID, time.Now().UnixMilli(), cleanName(file.Name))

	ctx, span := tracer.Start(ctx, "minio.put",
		trace.WithAttributes(
			attribute.String("object_key", locator),
			attribute.Int64("size_bytes", file.Size),
		),
	)
	defer span.End()

	onProgress(0, fmt.Sprintf("uploading %s to object store", file.Name))

	reader := &progressReader{
		r:     bytes.NewReader(file.Bytes),
		total: file.Size,
		onTick: func(pct int) {
			onProgress(pct, fmt.Sprintf("uploading %s to object store: %d%%", file.Name, pct))
		},
	}

	info, err := m.client.PutObject(ctx, m.bucketName, locator, reader, file.Size, minio.PutObjectOptions{
		ContentType: file.MimeType,
		UserMetadata: map[string]string{
			"original-name": file.Name,
			"uploaded-by":   ownerID,
		},
	})
	if err != nil {
		span.RecordError(err)
		return nil, classifyMinioErr(ctx, err)
	}

	span.SetAttributes(attribute.Bool("upload_success", true))
	return &PutResult{Locator: locator, SizeBytes: info.Size}, nil
}

// Remove deletes the object. Removing an already-absent object succeeds.
func (m *MinioBackend) Remove(ctx context.Context, locator string) (bool, error) {
	ctx, span := tracer.Start(ctx, "minio.remove",
		trace.WithAttributes(attribute.String("object_key", locator)),
	)
	defer span.End()

	err := m.client.RemoveObject(ctx, m.bucketName, locator, minio.RemoveObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return true, nil
		}
		span.RecordError(err)
		return false, fmt.Errorf("%w: failed to delete object: %v", vaulterr.ErrTransfer, err)
	}

	return true, nil
}

// ResolveURL returns a presigned GET URL for the object.
func (m *MinioBackend) ResolveURL(ctx context.Context, locator string) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucketName, locator, presignExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("%w: failed to presign object: %v", vaulterr.ErrTransfer, err)
	}
	return u.String(), nil
}

func classifyMinioErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", vaulterr.ErrTimeout, err)
	}
	switch minio.ToErrorResponse(err).Code {
	case "EntityTooLarge", "QuotaExceeded", "XMinioAdminBucketQuotaExceeded":
		return fmt.Errorf("%w: %v", vaulterr.ErrCapacity, err)
	}
	return fmt.Errorf("%w: %v", vaulterr.ErrTransfer, err)
}

// progressReader reports stream position as upload progress while the SDK
// drains it.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	last   int
	onTick func(pct int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.total > 0 {
		p.read += int64(n)
		pct := int(p.read * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		if pct > p.last {
			p.last = pct
			p.onTick(pct)
		}
	}
	return n, err
}
