package chunker

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkStream_SplitsAndHashes(t *testing.T) {
	payload := bytes.Repeat([]byte("abcd"), 700) // 2800 bytes
	c := NewChunker(1024)

	chunks, total, err := c.ChunkStream(bytes.NewReader(payload))
	require.NoError(t, err)

	assert.Equal(t, int64(len(payload)), total)
	require.Len(t, chunks, 3)
	assert.Equal(t, int64(1024), chunks[0].Size)
	assert.Equal(t, int64(1024), chunks[1].Size)
	assert.Equal(t, int64(752), chunks[2].Size)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.OrderIndex)
		assert.True(t, VerifyChunkHash(ch.Data, ch.Hash))
	}
}

func TestChunkStream_Empty(t *testing.T) {
	c := NewChunker(1024)
	chunks, total, err := c.ChunkStream(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, chunks)
}

func TestReassembleChunks_RoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0x5a}, 3000)
	c := NewChunker(1000)

	chunks, _, err := c.ChunkStream(bytes.NewReader(payload))
	require.NoError(t, err)

	parts := make([][]byte, len(chunks))
	for i, ch := range chunks {
		parts[i] = ch.Data
	}
	assert.Equal(t, payload, ReassembleChunks(parts))
}

func TestVerifyChunkHash_Mismatch(t *testing.T) {
	assert.False(t, VerifyChunkHash([]byte("data"), ComputeHash([]byte("other"))))
}
