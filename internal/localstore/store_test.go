package localstore

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyank/cloudvault/internal/models"
	"github.com/priyank/cloudvault/internal/vaulterr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "vault.db"))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func incoming(name string, size int) *models.IncomingFile {
	return &models.IncomingFile{
		Name:     name,
		MimeType: "application/octet-stream",
		Size:     int64(size),
		Bytes:    bytes.Repeat([]byte{0x42}, size),
	}
}

func TestPutAndReadFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Put(ctx, "owner-1", incoming("notes.txt", 512))
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, models.BackendLocal, rec.BackendKind)
	assert.Equal(t, int64(512), rec.SizeBytes)
	assert.Equal(t, rec.ID, rec.Locator)

	data, got, err := s.ReadFile(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, data, 512)
	assert.Equal(t, rec.ID, got.ID)
	assert.False(t, got.LastAccessedAt.Before(rec.LastAccessedAt))
}

func TestReadFile_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.ReadFile(context.Background(), "missing")
	assert.ErrorIs(t, err, vaulterr.ErrNotFound)
}

func TestDelete_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Put(ctx, "owner-1", incoming("a.bin", 100))
	require.NoError(t, err)

	ok, err := s.Delete(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// second delete still succeeds: the postcondition already holds
	ok, err = s.Delete(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	stats, err := s.Stats(ctx, "owner-1")
	require.NoError(t, err)
	assert.Zero(t, stats.FileCount)
	assert.Zero(t, stats.StorageUsedBytes)
}

func TestStats_DerivedFromRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := s.Put(ctx, "owner-1", incoming("f.bin", 256))
		require.NoError(t, err)
	}
	_, err := s.Put(ctx, "owner-2", incoming("g.bin", 100))
	require.NoError(t, err)

	stats, err := s.Stats(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.FileCount)
	assert.Equal(t, int64(4*256), stats.StorageUsedBytes)
}

func TestEvictOldest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := s.Put(ctx, "owner-1", incoming("f.bin", 10))
		require.NoError(t, err)
	}

	evicted, err := s.EvictOldest(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 2, evicted) // 20% of 10

	stats, err := s.Stats(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(8), stats.FileCount)
}

func TestEvictOldest_EmptyOwner(t *testing.T) {
	s := newTestStore(t)
	evicted, err := s.EvictOldest(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, evicted)
}

func TestResolveURL_SessionHandle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Put(ctx, "owner-1", incoming("a.bin", 10))
	require.NoError(t, err)

	h1, err := s.ResolveURL(ctx, rec.ID)
	require.NoError(t, err)
	assert.Contains(t, h1, "vaultlocal://")

	// stable within the session
	h2, err := s.ResolveURL(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	// revoked on delete
	_, err = s.Delete(ctx, rec.ID)
	require.NoError(t, err)
	_, err = s.ResolveURL(ctx, rec.ID)
	assert.ErrorIs(t, err, vaulterr.ErrNotFound)
}

func TestLazyInit_ConcurrentCallersShareOneStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Put(ctx, "owner-1", incoming("f.bin", 64))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, StateReady, s.State())

	stats, err := s.Stats(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(8), stats.FileCount)
	assert.Equal(t, int64(8*64), stats.StorageUsedBytes)
}
