package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/priyank/cloudvault/internal/models"
)

// Chunker splits payloads into fixed-size chunks for transports that upload
// piecewise, and reassembles them on the way back.
type Chunker struct {
	chunkSize int64
}

// NewChunker creates a chunker with the given chunk size in bytes.
func NewChunker(chunkSize int64) *Chunker {
	return &Chunker{
		chunkSize: chunkSize,
	}
}

// ChunkSize returns the configured chunk size in bytes.
func (c *Chunker) ChunkSize() int64 {
	return c.chunkSize
}

// ChunkStream reads from a reader and yields chunks of the configured size.
// Each chunk carries a SHA256 hash for integrity verification.
func (c *Chunker) ChunkStream(reader io.Reader) ([]*models.ChunkData, int64, error) {
	var chunks []*models.ChunkData
	var totalSize int64
	orderIndex := 0

	for {
		buffer := make([]byte, c.chunkSize)
		n, err := io.ReadFull(reader, buffer)

		if n > 0 {
			chunkData := buffer[:n]
			chunk := &models.ChunkData{
				Data:       chunkData,
				OrderIndex: orderIndex,
				Hash:       ComputeHash(chunkData),
				Size:       int64(n),
			}

			chunks = append(chunks, chunk)
			totalSize += int64(n)
			orderIndex++
		}

		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		} else if err != nil {
			return nil, 0, fmt.Errorf("error reading chunk: %w", err)
		}
	}

	return chunks, totalSize, nil
}

// ComputeHash computes the SHA256 hash of data.
func ComputeHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ReassembleChunks combines chunks in order.
func ReassembleChunks(chunks [][]byte) []byte {
	totalSize := 0
	for _, chunk := range chunks {
		totalSize += len(chunk)
	}

	result := make([]byte, 0, totalSize)
	for _, chunk := range chunks {
		result = append(result, chunk...)
	}

	return result
}

// VerifyChunkHash reports whether chunk data matches the expected hash.
func VerifyChunkHash(data []byte, expectedHash string) bool {
	return ComputeHash(data) == expectedHash
}
