package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyank/cloudvault/internal/models"
)

type stubBackend struct {
	kind      models.BackendKind
	available bool
}

func (s *stubBackend) Kind() models.BackendKind        { return s.kind }
func (s *stubBackend) Class() Class                    { return ClassSDK }
func (s *stubBackend) IsAvailable(context.Context) bool { return s.available }
func (s *stubBackend) Put(context.Context, string, *models.IncomingFile, ProgressFunc) (*PutResult, error) {
	return nil, nil
}
func (s *stubBackend) Remove(context.Context, string) (bool, error)     { return true, nil }
func (s *stubBackend) ResolveURL(context.Context, string) (string, error) { return "", nil }

func TestRegistry_CandidatesPreserveOrderAndSkipUnavailable(t *testing.T) {
	a := &stubBackend{kind: models.BackendMinio, available: true}
	b := &stubBackend{kind: models.BackendHTTP, available: false}
	c := &stubBackend{kind: models.BackendLocal, available: true}

	r := NewRegistry(a, b, c)
	got := r.Candidates(context.Background())

	require.Len(t, got, 2)
	assert.Equal(t, models.BackendMinio, got[0].Kind())
	assert.Equal(t, models.BackendLocal, got[1].Kind())
}

func TestRegistry_ByKind(t *testing.T) {
	local := &stubBackend{kind: models.BackendLocal, available: true}
	r := NewRegistry(&stubBackend{kind: models.BackendMinio}, local)

	got, ok := r.ByKind(models.BackendLocal)
	require.True(t, ok)
	assert.Same(t, local, got)

	_, ok = r.ByKind(models.BackendHTTP)
	assert.False(t, ok)
}

func TestRegistry_LastResort(t *testing.T) {
	assert.Nil(t, NewRegistry().LastResort())

	local := &stubBackend{kind: models.BackendLocal}
	r := NewRegistry(&stubBackend{kind: models.BackendMinio}, local)
	assert.Equal(t, models.BackendLocal, r.LastResort().Kind())
}
