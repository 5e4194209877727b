// Package vaulterr defines the sentinel errors shared by the upload
// pipeline. Callers match them with errors.Is; backends wrap transport
// failures so the coordinator can classify them without knowing the
// provider.
package vaulterr

import "errors"

var (
	// ErrInvalidArgument rejects a malformed request before any backend or
	// ledger work happens (missing owner, nil file).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOversize is returned before any backend is attempted when the
	// payload exceeds the configured size ceiling.
	ErrOversize = errors.New("file exceeds size limit")

	// ErrTransfer marks a network or provider failure. Retryable.
	ErrTransfer = errors.New("transfer failed")

	// ErrTimeout marks a per-attempt timeout. Retryable.
	ErrTimeout = errors.New("attempt timed out")

	// ErrCapacity marks a size/quota rejection by a provider. Not retried
	// against the same backend; the coordinator moves to the next one.
	ErrCapacity = errors.New("provider rejected for capacity")

	// ErrQuotaExceeded means the local durable store is full.
	ErrQuotaExceeded = errors.New("local storage quota exceeded")

	// ErrFatalStorage is surfaced when every backend, including the local
	// fallback, has failed.
	ErrFatalStorage = errors.New("all storage backends failed")

	// ErrBackendUnavailable marks a backend that reports itself absent or
	// not initialized at selection time.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrStoreUnsupported means the local store engine cannot run in this
	// environment. Terminal; there is no retry path.
	ErrStoreUnsupported = errors.New("local store engine unsupported")

	ErrNotFound = errors.New("not found")
)
