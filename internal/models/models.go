package models

import "time"

// BackendKind identifies which storage backend holds the authoritative
// bytes for a file.
type BackendKind string

const (
	BackendMinio BackendKind = "remote:minio"
	BackendHTTP  BackendKind = "remote:http"
	BackendLocal BackendKind = "local"
)

// FileRecord is the canonical unit of persisted state. Exactly one backend
// holds the bytes for a given ID; Locator resolves only within that backend.
type FileRecord struct {
	ID             string      `json:"id"`
	OwnerID        string      `json:"owner_id"`
	Name           string      `json:"name"`
	MimeType       string      `json:"mime_type"`
	SizeBytes      int64       `json:"size_bytes"`
	BackendKind    BackendKind `json:"backend_kind"`
	Locator        string      `json:"locator"`
	CreatedAt      time.Time   `json:"created_at"`
	LastAccessedAt time.Time   `json:"last_accessed_at"`
}

// UserStorageStats is the per-owner aggregate, kept equal to the sum over
// that owner's FileRecords.
type UserStorageStats struct {
	OwnerID          string `json:"owner_id"`
	FileCount        int64  `json:"file_count"`
	StorageUsedBytes int64  `json:"storage_used_bytes"`
}

// IncomingFile is the byte source handed to an upload. Size must equal
// len(Bytes).
type IncomingFile struct {
	Name     string
	MimeType string
	Size     int64
	Bytes    []byte
}

// UploadAttempt describes one in-flight attempt against one backend. It is
// transient: owned by the coordinator processing the upload and never
// shared across concurrent uploads.
type UploadAttempt struct {
	Backend   BackendKind
	Attempt   int
	Percent   int
	Message   string
	StartedAt time.Time
}

// ChunkData holds one chunk of a payload during a chunked transfer.
type ChunkData struct {
	Data       []byte
	OrderIndex int
	Hash       string
	Size       int64
}
