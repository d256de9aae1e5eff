// Package artifactstore is a small versioned, content-addressed file tree on
// top of a blobstore.Store.
//
// Layout inside the store:
//
//	objects/<sha256>     file contents, written once
//	commits/<id>.json    commit record; id is the sha256 of the record
//	refs/HEAD            current commit id (BlobRefs only)
//
// Objects are uploaded before the commit record, and the commit record before
// HEAD moves, so a crash at any point leaves the previous HEAD fully readable.
package artifactstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/ragdex/internal/blobstore"
	"github.com/kailas-cloud/ragdex/internal/domain"
)

const (
	objectsDir = "objects/"
	commitsDir = "commits/"
)

// FileEntry identifies one file's content within a commit.
type FileEntry struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Commit is an immutable snapshot of the tree.
type Commit struct {
	ID        string               `json:"-"`
	Parent    string               `json:"parent,omitempty"`
	Message   string               `json:"message"`
	CreatedAt time.Time            `json:"created_at"`
	Files     map[string]FileEntry `json:"files"`
}

// CommitRequest describes a new commit.
type CommitRequest struct {
	// Parent must equal the current HEAD ("" for the first commit).
	Parent  string
	Message string
	// Files maps tree paths to contents.
	Files map[string][]byte
	// Replace drops the parent's tree instead of overlaying Files onto it.
	Replace bool
}

// Refs stores the HEAD pointer.
type Refs interface {
	// Head returns the current commit id, or "" when nothing was committed.
	Head(ctx context.Context) (string, error)
	// Advance moves HEAD from old to next. It returns domain.ErrConcurrentPublish
	// when HEAD no longer equals old.
	Advance(ctx context.Context, old, next string) error
}

// Repo is a versioned artifact repository.
type Repo struct {
	store       blobstore.Store
	refs        Refs
	logger      *zap.Logger
	now         func() time.Time
	concurrency int
}

// Option configures a Repo.
type Option func(*Repo)

// WithClock overrides the commit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Repo) { r.now = now }
}

// WithConcurrency bounds parallel object transfers.
func WithConcurrency(n int) Option {
	return func(r *Repo) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// New creates a Repo.
func New(store blobstore.Store, refs Refs, logger *zap.Logger, opts ...Option) *Repo {
	r := &Repo{
		store:       store,
		refs:        refs,
		logger:      logger,
		now:         time.Now,
		concurrency: 4,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Head returns the current commit id ("" when empty).
func (r *Repo) Head(ctx context.Context) (string, error) {
	return r.refs.Head(ctx)
}

// Commit writes files and advances HEAD. Objects already present are skipped.
func (r *Repo) Commit(ctx context.Context, req CommitRequest) (Commit, error) {
	files := map[string]FileEntry{}
	if req.Parent != "" && !req.Replace {
		parent, err := r.ReadCommit(ctx, req.Parent)
		if err != nil {
			return Commit{}, fmt.Errorf("read parent commit: %w", err)
		}
		maps.Copy(files, parent.Files)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	var total int64
	for _, p := range slices.Sorted(maps.Keys(req.Files)) {
		data := req.Files[p]
		sum := digest(data)
		files[p] = FileEntry{SHA256: sum, Size: int64(len(data))}
		total += int64(len(data))
		g.Go(func() error {
			return r.putObject(gctx, sum, data)
		})
	}
	if err := g.Wait(); err != nil {
		return Commit{}, fmt.Errorf("upload objects: %w", err)
	}

	c := Commit{
		Parent:    req.Parent,
		Message:   req.Message,
		CreatedAt: r.now().UTC(),
		Files:     files,
	}
	record, err := json.Marshal(c)
	if err != nil {
		return Commit{}, fmt.Errorf("marshal commit: %w", err)
	}
	c.ID = digest(record)

	if err := r.store.Put(ctx, commitsDir+c.ID+".json", record); err != nil {
		return Commit{}, fmt.Errorf("write commit record: %w", err)
	}
	if err := r.refs.Advance(ctx, req.Parent, c.ID); err != nil {
		return Commit{}, fmt.Errorf("advance HEAD: %w", err)
	}

	r.logger.Info("commit created",
		zap.String("commit", c.ID),
		zap.String("parent", c.Parent),
		zap.Int("files", len(req.Files)),
		zap.String("uploaded", humanize.Bytes(uint64(total))),
	)
	return c, nil
}

func (r *Repo) putObject(ctx context.Context, sum string, data []byte) error {
	name := objectsDir + sum
	ok, err := r.store.Exists(ctx, name)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return r.store.Put(ctx, name, data)
}

// ReadCommit loads a commit record.
func (r *Repo) ReadCommit(ctx context.Context, id string) (Commit, error) {
	data, err := r.store.Get(ctx, commitsDir+id+".json")
	if err != nil {
		return Commit{}, fmt.Errorf("commit %s: %w", id, err)
	}
	var c Commit
	if err := json.Unmarshal(data, &c); err != nil {
		return Commit{}, fmt.Errorf("commit %s: invalid record: %w", id, err)
	}
	c.ID = id
	return c, nil
}

// ReadFile returns the contents of path at revision, verifying its digest.
func (r *Repo) ReadFile(ctx context.Context, revision, path string) ([]byte, error) {
	c, err := r.ReadCommit(ctx, revision)
	if err != nil {
		return nil, err
	}
	return r.readEntry(ctx, c, path)
}

func (r *Repo) readEntry(ctx context.Context, c Commit, path string) ([]byte, error) {
	entry, ok := c.Files[path]
	if !ok {
		return nil, fmt.Errorf("%s at %s: %w", path, c.ID, domain.ErrNotFound)
	}
	data, err := r.store.Get(ctx, objectsDir+entry.SHA256)
	if err != nil {
		return nil, fmt.Errorf("object for %s: %w", path, err)
	}
	if digest(data) != entry.SHA256 {
		return nil, fmt.Errorf("object for %s: %w", path, domain.ErrChecksumMismatch)
	}
	return data, nil
}

// Download writes paths of revision into dir, keyed by their base name.
func (r *Repo) Download(ctx context.Context, revision string, paths []string, dir string) error {
	c, err := r.ReadCommit(ctx, revision)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, p := range paths {
		g.Go(func() error {
			data, err := r.readEntry(gctx, c, p)
			if err != nil {
				return err
			}
			return os.WriteFile(filepath.Join(dir, filepath.Base(p)), data, 0o644)
		})
	}
	return g.Wait()
}

// HeadFile reads path at HEAD. It returns the HEAD id alongside the data and
// domain.ErrNotPublished when the repo is empty.
func (r *Repo) HeadFile(ctx context.Context, path string) (string, []byte, error) {
	head, err := r.Head(ctx)
	if err != nil {
		return "", nil, err
	}
	if head == "" {
		return "", nil, domain.ErrNotPublished
	}
	data, err := r.ReadFile(ctx, head, path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return head, nil, fmt.Errorf("%w: %w", domain.ErrNotPublished, err)
		}
		return head, nil, err
	}
	return head, data, nil
}

func digest(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}
