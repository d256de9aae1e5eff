package artifactstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kailas-cloud/ragdex/internal/blobstore"
	"github.com/kailas-cloud/ragdex/internal/domain"
)

const headRef = "refs/HEAD"

// BlobRefs keeps HEAD as a blob. The compare step and the write are separate
// requests, so it is only safe with a single writer process; use DynamoRefs
// when several builders can publish to one bucket.
type BlobRefs struct {
	mu    sync.Mutex
	store blobstore.Store
}

// NewBlobRefs creates BlobRefs over store.
func NewBlobRefs(store blobstore.Store) *BlobRefs {
	return &BlobRefs{store: store}
}

// Head returns the stored commit id.
func (b *BlobRefs) Head(ctx context.Context) (string, error) {
	data, err := b.store.Get(ctx, headRef)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("read HEAD: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Advance moves HEAD if it still equals old.
func (b *BlobRefs) Advance(ctx context.Context, old, next string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur, err := b.Head(ctx)
	if err != nil {
		return err
	}
	if cur != old {
		return fmt.Errorf("HEAD is %q, expected %q: %w", cur, old, domain.ErrConcurrentPublish)
	}
	return b.store.Put(ctx, headRef, []byte(next+"\n"))
}
