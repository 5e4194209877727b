package backend

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyank/cloudvault/internal/chunker"
	"github.com/priyank/cloudvault/internal/models"
	"github.com/priyank/cloudvault/internal/vaulterr"
)

func httpBackend(baseURL string, chunkSize int64) *HTTPObjectBackend {
	return NewHTTPObjectBackend(baseURL, "test-token", "vault", chunker.NewChunker(chunkSize))
}

func TestHTTPPut_ChunksWithContentRange(t *testing.T) {
	var mu struct {
		ranges []string
		bodies [][]byte
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.True(t, strings.HasPrefix(r.URL.Path, "/object/vault/owner-1/"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.True(t, chunker.VerifyChunkHash(body, r.Header.Get("X-Chunk-Hash")))

		mu.ranges = append(mu.ranges, r.Header.Get("Content-Range"))
		mu.bodies = append(mu.bodies, body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	payload := bytes.Repeat([]byte("xy"), 1500) // 3000 bytes
	file := &models.IncomingFile{Name: "data bin.dat", MimeType: "application/octet-stream", Size: 3000, Bytes: payload}

	var percents []int
	var messages []string
	res, err := httpBackend(srv.URL, 1024).Put(context.Background(), "owner-1", file, func(p int, msg string) {
		percents = append(percents, p)
		messages = append(messages, msg)
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3000), res.SizeBytes)
	assert.Contains(t, res.Locator, "data_bin.dat")
	require.Equal(t, []string{
		"bytes 0-1023/3000",
		"bytes 1024-2047/3000",
		"bytes 2048-2999/3000",
	}, mu.ranges)
	assert.Equal(t, payload, chunker.ReassembleChunks(mu.bodies))

	// estimated progress is labeled and ends at 100
	assert.Equal(t, 100, percents[len(percents)-1])
	assert.Contains(t, messages[len(messages)-1], "(estimated)")
}

func TestHTTPPut_CapacityStatusMapsToErrCapacity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInsufficientStorage)
	}))
	defer srv.Close()

	file := &models.IncomingFile{Name: "a.bin", MimeType: "application/octet-stream", Size: 10, Bytes: make([]byte, 10)}
	_, err := httpBackend(srv.URL, 1024).Put(context.Background(), "o", file, func(int, string) {})
	assert.ErrorIs(t, err, vaulterr.ErrCapacity)
}

func TestHTTPPut_ServerErrorMapsToErrTransfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	file := &models.IncomingFile{Name: "a.bin", MimeType: "application/octet-stream", Size: 10, Bytes: make([]byte, 10)}
	_, err := httpBackend(srv.URL, 1024).Put(context.Background(), "o", file, func(int, string) {})
	assert.ErrorIs(t, err, vaulterr.ErrTransfer)
}

func TestHTTPRemove_AbsentObjectIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ok, err := httpBackend(srv.URL, 1024).Remove(context.Background(), "o/missing.bin")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHTTPIsAvailable_RequiresConfiguration(t *testing.T) {
	assert.False(t, httpBackend("", 1024).IsAvailable(context.Background()))
	assert.True(t, httpBackend("http://store.local", 1024).IsAvailable(context.Background()))
}

func TestHTTPResolveURL(t *testing.T) {
	b := httpBackend("http://store.local", 1024)
	u, err := b.ResolveURL(context.Background(), "owner-1/1_a.bin")
	require.NoError(t, err)
	assert.Equal(t, "http://store.local/object/vault/owner-1/1_a.bin", u)
}
