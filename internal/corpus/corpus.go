// Package corpus snapshots the source document set into a work directory and
// computes its content revision.
package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/blobstore"
)

// Source copies a document set into a local directory.
type Source interface {
	// Snapshot materializes the corpus under dest and returns its revision.
	Snapshot(ctx context.Context, dest string) (string, error)
	// Name identifies the source in manifests.
	Name() string
}

// LocalSource reads documents from a directory.
type LocalSource struct {
	Dir string
}

// Name implements Source.
func (s LocalSource) Name() string { return "file://" + filepath.ToSlash(s.Dir) }

// Snapshot copies Dir into dest.
func (s LocalSource) Snapshot(ctx context.Context, dest string) (string, error) {
	files := map[string][]byte{}
	err := filepath.WalkDir(s.Dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(s.Dir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan corpus %s: %w", s.Dir, err)
	}
	return materialize(dest, files)
}

// BlobSource reads documents stored under a prefix of a blob store.
type BlobSource struct {
	Store  blobstore.Store
	Prefix string
	Label  string
}

// Name implements Source.
func (s BlobSource) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return s.Prefix
}

// Snapshot downloads every blob under Prefix into dest.
func (s BlobSource) Snapshot(ctx context.Context, dest string) (string, error) {
	prefix := strings.Trim(s.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	names, err := s.Store.List(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("list corpus %s: %w", s.Prefix, err)
	}
	files := make(map[string][]byte, len(names))
	for _, name := range names {
		data, err := s.Store.Get(ctx, name)
		if err != nil {
			return "", fmt.Errorf("fetch %s: %w", name, err)
		}
		rel := strings.TrimPrefix(name, prefix)
		if rel == "" || strings.HasSuffix(rel, "/") {
			continue
		}
		files[path.Clean(rel)] = data
	}
	return materialize(dest, files)
}

// materialize replaces dest with files and returns their tree digest.
func materialize(dest string, files map[string][]byte) (string, error) {
	if err := os.RemoveAll(dest); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", err
	}
	for rel, data := range files {
		if strings.HasPrefix(rel, "../") {
			return "", fmt.Errorf("corpus path escapes root: %s", rel)
		}
		p := filepath.Join(dest, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return "", err
		}
	}
	return TreeDigest(files), nil
}

// TreeDigest hashes sorted (path, sha256(content)) pairs.
func TreeDigest(files map[string][]byte) string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		sum := sha256.Sum256(files[p])
		_, _ = io.WriteString(h, p)
		_, _ = h.Write([]byte{0})
		_, _ = io.WriteString(h, hex.EncodeToString(sum[:]))
		_, _ = h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Discover lists files under root whose extension satisfies keep, ordered by
// lower-cased path.
func Discover(root string, keep func(path string) bool) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && keep(p) {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out, nil
}
