// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"
	"errors"
)

// Sentinel errors returned by BlobStore implementations.
var (
	// ErrBlobNotFound indicates nothing is stored at the requested path.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrVersionConflict indicates the stored version no longer matches the
	// version the caller expected, so the write was rejected.
	ErrVersionConflict = errors.New("blob version conflict")

	// ErrTransport wraps failures talking to the remote store (network, auth,
	// unexpected status). These are never retried.
	ErrTransport = errors.New("blob store unavailable")
)

// BlobStore defines the driven port for a remote, versioned blob store used as
// a single-document database. Versions are opaque tokens produced by the store.
type BlobStore interface {
	// Get returns the content stored at path and its current version.
	// Returns ErrBlobNotFound if nothing is stored there.
	Get(ctx context.Context, path string) ([]byte, string, error)

	// Put writes content to path only if the stored version still equals
	// expectedVersion. An empty expectedVersion means the blob must not exist
	// yet. message describes the change for stores that keep history.
	// Returns the new version, or ErrVersionConflict when the check fails.
	Put(ctx context.Context, path string, content []byte, expectedVersion, message string) (string, error)
}
