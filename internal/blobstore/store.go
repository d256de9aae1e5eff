// Package blobstore abstracts the object storage that holds published
// artifacts and corpus snapshots.
//
// Names are slash-separated and relative to the store root.
package blobstore

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// ErrNotFound is returned when a blob does not exist.
var ErrNotFound = domain.ErrNotFound

// Store is a flat key/blob namespace.
type Store interface {
	// Get returns the full contents of a blob.
	Get(ctx context.Context, name string) ([]byte, error)
	// Put writes a blob, replacing any existing one.
	Put(ctx context.Context, name string, data []byte) error
	// Exists reports whether a blob is present.
	Exists(ctx context.Context, name string) (bool, error)
	// Delete removes a blob. Missing blobs are not an error.
	Delete(ctx context.Context, name string) error
	// List returns sorted names under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
