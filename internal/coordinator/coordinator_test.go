package coordinator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyank/cloudvault/internal/backend"
	"github.com/priyank/cloudvault/internal/ledger"
	"github.com/priyank/cloudvault/internal/logging"
	"github.com/priyank/cloudvault/internal/models"
	"github.com/priyank/cloudvault/internal/vaulterr"
)

// fakeBackend scripts one backend rung: putErrs are consumed one per Put
// call, then puts succeed.
type fakeBackend struct {
	kind      models.BackendKind
	class     backend.Class
	available bool

	mu         sync.Mutex
	putCalls   int
	removed    []string
	putErrs    []error
	onProgress []int // percentages to emit during a successful Put
}

func newFakeBackend(kind models.BackendKind, class backend.Class) *fakeBackend {
	return &fakeBackend{kind: kind, class: class, available: true}
}

func (f *fakeBackend) Kind() models.BackendKind             { return f.kind }
func (f *fakeBackend) Class() backend.Class                 { return f.class }
func (f *fakeBackend) IsAvailable(ctx context.Context) bool { return f.available }

func (f *fakeBackend) Put(ctx context.Context, ownerID string, file *models.IncomingFile, onProgress backend.ProgressFunc) (*backend.PutResult, error) {
	f.mu.Lock()
	f.putCalls++
	var err error
	if len(f.putErrs) > 0 {
		err = f.putErrs[0]
		f.putErrs = f.putErrs[1:]
	}
	pcts := f.onProgress
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	for _, p := range pcts {
		onProgress(p, "uploading")
	}
	return &backend.PutResult{
		Locator:   fmt.Sprintf("%s/%s/%s", f.kind, ownerID, file.Name),
		SizeBytes: file.Size,
	}, nil
}

func (f *fakeBackend) Remove(ctx context.Context, locator string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, locator)
	return true, nil
}

func (f *fakeBackend) ResolveURL(ctx context.Context, locator string) (string, error) {
	return "https://example.com/" + locator, nil
}

func (f *fakeBackend) puts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.putCalls
}

// failingLedger rejects Record and delegates the rest.
type failingLedger struct {
	ledger.Ledger
	recordErr error
}

func (f *failingLedger) Record(ctx context.Context, rec *models.FileRecord) error {
	return f.recordErr
}

func testPolicy() Policy {
	return Policy{
		SizeCeilingBytes: 5 * 1024 * 1024,
		MaxRetries:       3,
		RetryDelay:       time.Millisecond,
		MaxRetryDelay:    5 * time.Millisecond,
		SDKTimeout:       time.Second,
		HTTPTimeout:      time.Second,
		LocalTimeout:     time.Second,
	}
}

func testFile(name string, size int) *models.IncomingFile {
	return &models.IncomingFile{
		Name:     name,
		MimeType: "application/octet-stream",
		Size:     int64(size),
		Bytes:    bytes.Repeat([]byte{0xAB}, size),
	}
}

func TestUpload_OversizeRejectedBeforeAnyBackend(t *testing.T) {
	remote := newFakeBackend(models.BackendMinio, backend.ClassSDK)
	c := New(backend.NewRegistry(remote), ledger.NewMemory(), nil, testPolicy(), logging.Nop{})

	file := testFile("big.bin", 1)
	file.Size = 6 * 1024 * 1024 // size field is what preflight checks

	_, err := c.Upload(context.Background(), "alice", file, nil)
	assert.ErrorIs(t, err, vaulterr.ErrOversize)
	assert.Equal(t, 0, remote.puts())
}

func TestUpload_EmptyOwnerRejectedBeforeAnyBackend(t *testing.T) {
	remote := newFakeBackend(models.BackendMinio, backend.ClassSDK)
	led := ledger.NewMemory()
	c := New(backend.NewRegistry(remote), led, nil, testPolicy(), logging.Nop{})

	_, err := c.Upload(context.Background(), "", testFile("a.bin", 10), nil)
	assert.ErrorIs(t, err, vaulterr.ErrInvalidArgument)
	assert.Equal(t, 0, remote.puts())

	// nothing was recorded against the empty owner
	stats, statsErr := led.Stats(context.Background(), "")
	require.NoError(t, statsErr)
	assert.Equal(t, int64(0), stats.FileCount)
}

func TestUpload_NilFileRejected(t *testing.T) {
	remote := newFakeBackend(models.BackendMinio, backend.ClassSDK)
	c := New(backend.NewRegistry(remote), ledger.NewMemory(), nil, testPolicy(), logging.Nop{})

	_, err := c.Upload(context.Background(), "alice", nil, nil)
	assert.ErrorIs(t, err, vaulterr.ErrInvalidArgument)
	assert.Equal(t, 0, remote.puts())
}

func TestUpload_FallsBackToLocal(t *testing.T) {
	minio := newFakeBackend(models.BackendMinio, backend.ClassSDK)
	minio.putErrs = []error{vaulterr.ErrTransfer, vaulterr.ErrTransfer, vaulterr.ErrTransfer}
	httpStore := newFakeBackend(models.BackendHTTP, backend.ClassHTTP)
	httpStore.available = false
	local := newFakeBackend(models.BackendLocal, backend.ClassLocal)

	led := ledger.NewMemory()
	c := New(backend.NewRegistry(minio, httpStore, local), led, nil, testPolicy(), logging.Nop{})

	rec, err := c.Upload(context.Background(), "alice", testFile("doc.pdf", 1024), nil)
	require.NoError(t, err)
	assert.Equal(t, models.BackendLocal, rec.BackendKind)
	assert.Equal(t, 3, minio.puts())
	assert.Equal(t, 0, httpStore.puts())
	assert.Equal(t, 1, local.puts())

	got, err := led.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BackendLocal, got.BackendKind)
}

func TestUpload_RetryThenSucceedReportsTerminal100Once(t *testing.T) {
	minio := newFakeBackend(models.BackendMinio, backend.ClassSDK)
	minio.putErrs = []error{vaulterr.ErrTransfer, vaulterr.ErrTimeout}
	minio.onProgress = []int{10, 50, 100} // backend may claim 100 mid-stream

	c := New(backend.NewRegistry(minio), ledger.NewMemory(), nil, testPolicy(), logging.Nop{})

	var calls []int
	rec, err := c.Upload(context.Background(), "alice", testFile("photo.jpg", 3*1024*1024),
		func(percent int, message string) { calls = append(calls, percent) })
	require.NoError(t, err)
	assert.Equal(t, models.BackendMinio, rec.BackendKind)
	assert.Equal(t, 3, minio.puts())

	hundreds := 0
	for _, p := range calls {
		if p == 100 {
			hundreds++
		}
	}
	assert.Equal(t, 1, hundreds)
	require.NotEmpty(t, calls)
	assert.Equal(t, 100, calls[len(calls)-1])
	// the backend's own 100 was clamped to 99
	assert.Equal(t, []int{10, 50, 99, 100}, calls)
}

func TestUpload_CapacitySkipsRemainingRetries(t *testing.T) {
	minio := newFakeBackend(models.BackendMinio, backend.ClassSDK)
	minio.putErrs = []error{vaulterr.ErrCapacity}
	local := newFakeBackend(models.BackendLocal, backend.ClassLocal)

	c := New(backend.NewRegistry(minio, local), ledger.NewMemory(), nil, testPolicy(), logging.Nop{})

	rec, err := c.Upload(context.Background(), "alice", testFile("a.bin", 10), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, minio.puts())
	assert.Equal(t, models.BackendLocal, rec.BackendKind)
}

func TestUpload_AllBackendsFailIsFatal(t *testing.T) {
	minio := newFakeBackend(models.BackendMinio, backend.ClassSDK)
	minio.putErrs = []error{vaulterr.ErrTransfer, vaulterr.ErrTransfer, vaulterr.ErrTransfer}
	local := newFakeBackend(models.BackendLocal, backend.ClassLocal)
	local.putErrs = []error{vaulterr.ErrQuotaExceeded}

	c := New(backend.NewRegistry(minio, local), ledger.NewMemory(), nil, testPolicy(), logging.Nop{})

	_, err := c.Upload(context.Background(), "alice", testFile("a.bin", 10), nil)
	assert.ErrorIs(t, err, vaulterr.ErrFatalStorage)
	assert.Equal(t, 1, local.puts()) // quota is permanent for the rung
}

func TestUpload_NoAvailableBackendIsFatal(t *testing.T) {
	minio := newFakeBackend(models.BackendMinio, backend.ClassSDK)
	minio.available = false

	c := New(backend.NewRegistry(minio), ledger.NewMemory(), nil, testPolicy(), logging.Nop{})

	_, err := c.Upload(context.Background(), "alice", testFile("a.bin", 10), nil)
	assert.ErrorIs(t, err, vaulterr.ErrFatalStorage)
	assert.Equal(t, 0, minio.puts())
}

func TestUpload_LedgerFailureRollsBackBytes(t *testing.T) {
	minio := newFakeBackend(models.BackendMinio, backend.ClassSDK)
	led := &failingLedger{Ledger: ledger.NewMemory(), recordErr: errors.New("db down")}

	var sawTerminal atomic.Bool
	c := New(backend.NewRegistry(minio), led, nil, testPolicy(), logging.Nop{})

	_, err := c.Upload(context.Background(), "alice", testFile("a.bin", 10),
		func(percent int, message string) {
			if percent == 100 {
				sawTerminal.Store(true)
			}
		})
	require.Error(t, err)
	assert.False(t, sawTerminal.Load())

	minio.mu.Lock()
	defer minio.mu.Unlock()
	require.Len(t, minio.removed, 1)
	assert.Contains(t, minio.removed[0], "alice")
}

func TestUpload_ConcurrentUploadsKeepStatsConsistent(t *testing.T) {
	minio := newFakeBackend(models.BackendMinio, backend.ClassSDK)
	led := ledger.NewMemory()
	c := New(backend.NewRegistry(minio), led, nil, testPolicy(), logging.Nop{})

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.Upload(context.Background(), "alice",
				testFile(fmt.Sprintf("f%d.bin", i), 1024), nil)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stats, err := led.Stats(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(n), stats.FileCount)
	assert.Equal(t, int64(n*1024), stats.StorageUsedBytes)
}

func TestDelete_RemovesBytesThenRecord(t *testing.T) {
	minio := newFakeBackend(models.BackendMinio, backend.ClassSDK)
	led := ledger.NewMemory()
	c := New(backend.NewRegistry(minio), led, nil, testPolicy(), logging.Nop{})

	rec, err := c.Upload(context.Background(), "alice", testFile("a.bin", 10), nil)
	require.NoError(t, err)

	require.NoError(t, c.Delete(context.Background(), rec.ID))

	minio.mu.Lock()
	removed := len(minio.removed)
	minio.mu.Unlock()
	assert.Equal(t, 1, removed)

	_, err = led.Get(context.Background(), rec.ID)
	assert.ErrorIs(t, err, vaulterr.ErrNotFound)

	// deleting again is a no-op
	require.NoError(t, c.Delete(context.Background(), rec.ID))
}

func TestResolveURL_BumpsAccessTime(t *testing.T) {
	minio := newFakeBackend(models.BackendMinio, backend.ClassSDK)
	led := ledger.NewMemory()
	c := New(backend.NewRegistry(minio), led, nil, testPolicy(), logging.Nop{})

	rec, err := c.Upload(context.Background(), "alice", testFile("a.bin", 10), nil)
	require.NoError(t, err)

	before, err := led.Get(context.Background(), rec.ID)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	url, err := c.ResolveURL(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Contains(t, url, "https://example.com/")

	after, err := led.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, after.LastAccessedAt.After(before.LastAccessedAt))
}

func TestProgressTracker_MonotonicAndClamped(t *testing.T) {
	attempt := &models.UploadAttempt{Backend: models.BackendMinio, Attempt: 1}
	var calls []int
	tr := newProgressTracker(attempt, func(p int, _ string) { calls = append(calls, p) })

	tr.report(10, "starting")
	tr.report(5, "stale") // dropped: regressions never reach the caller
	tr.report(50, "halfway")
	tr.report(100, "streamed") // clamped: 100 is reserved for the terminal call
	assert.Equal(t, []int{10, 50, 99}, calls)

	// the attempt mirrors the last accepted report
	assert.Equal(t, 99, attempt.Percent)
	assert.Equal(t, "streamed", attempt.Message)
}
