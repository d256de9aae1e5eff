package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/artifactstore"
	"github.com/kailas-cloud/ragdex/internal/blobstore"
	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/usecase/publish"
)

func checksum(b []byte) string {
	s := sha256.Sum256(b)
	return hex.EncodeToString(s[:])
}

func artifactsFor(index string) (map[string][]byte, *domain.Manifest) {
	a := map[string][]byte{
		domain.IndexFile:            []byte(index),
		domain.MetaFile:             []byte(`[]`),
		domain.FailuresFile:         []byte(`[]`),
		domain.ConversionReportFile: []byte(`{}`),
	}
	m := &domain.Manifest{
		EmbedModel: "stub",
		Files:      domain.NewArtifactPaths("artifacts"),
		Checksums: domain.Checksums{
			Index:            checksum(a[domain.IndexFile]),
			Meta:             checksum(a[domain.MetaFile]),
			Failures:         checksum(a[domain.FailuresFile]),
			ConversionReport: checksum(a[domain.ConversionReportFile]),
		},
	}
	return a, m
}

func setup(t *testing.T) (*Syncer, *artifactstore.Repo, *publish.Publisher, string) {
	t.Helper()
	store := blobstore.NewMemoryStore()
	repo := artifactstore.New(store, artifactstore.NewBlobRefs(store), zap.NewNop())
	dir := filepath.Join(t.TempDir(), "artifacts")
	s := New(repo, domain.NewArtifactPaths("artifacts").Manifest, dir, zap.NewNop())
	return s, repo, publish.New(repo, zap.NewNop()), dir
}

func TestSync_EmptyStoreIsUnpublished(t *testing.T) {
	s, _, _, dir := setup(t)
	res, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Status != StatusUnpublished {
		t.Errorf("status = %s", res.Status)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("nothing must be written")
	}
}

func TestSync_DownloadsThenNoop(t *testing.T) {
	ctx := context.Background()
	s, _, pub, dir := setup(t)
	a, m := artifactsFor("v1")
	if _, err := pub.Publish(ctx, m, a); err != nil {
		t.Fatal(err)
	}

	res, err := s.Sync(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Status != StatusUpdated || res.Revision != m.Revision {
		t.Fatalf("result = %+v, want updated %s", res, m.Revision)
	}
	for name, want := range a {
		got, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil || string(got) != string(want) {
			t.Errorf("%s = %q, %v", name, got, err)
		}
	}
	local, err := os.ReadFile(filepath.Join(dir, domain.ManifestFile))
	if err != nil {
		t.Fatal(err)
	}
	lm, _ := domain.ParseManifest(local)
	if lm.Revision != m.Revision {
		t.Errorf("local manifest revision = %q", lm.Revision)
	}

	res, err = s.Sync(ctx)
	if err != nil || res.Status != StatusUnchanged {
		t.Errorf("second sync = %+v, %v", res, err)
	}

	a2, m2 := artifactsFor("v2")
	if _, err := pub.Publish(ctx, m2, a2); err != nil {
		t.Fatal(err)
	}
	res, err = s.Sync(ctx)
	if err != nil || res.Status != StatusUpdated || res.Revision != m2.Revision {
		t.Fatalf("third sync = %+v, %v", res, err)
	}
	got, _ := os.ReadFile(filepath.Join(dir, domain.IndexFile))
	if string(got) != "v2" {
		t.Errorf("index = %q", got)
	}

	matches, _ := filepath.Glob(dir + ".*")
	if len(matches) != 0 {
		t.Errorf("staging or backup dirs left behind: %v", matches)
	}
}

func commitRaw(t *testing.T, repo *artifactstore.Repo, a map[string][]byte, m *domain.Manifest) {
	t.Helper()
	ctx := context.Background()
	mj, err := m.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	head, _ := repo.Head(ctx)
	files := map[string][]byte{
		m.Files.Index:            a[domain.IndexFile],
		m.Files.Meta:             a[domain.MetaFile],
		m.Files.Failures:         a[domain.FailuresFile],
		m.Files.ConversionReport: a[domain.ConversionReportFile],
		m.Files.Manifest:         mj,
	}
	if _, err := repo.Commit(ctx, artifactstore.CommitRequest{Parent: head, Message: "raw", Files: files, Replace: true}); err != nil {
		t.Fatal(err)
	}
}

func TestSync_PendingManifestIsUnpublished(t *testing.T) {
	s, repo, _, _ := setup(t)
	a, m := artifactsFor("v1")
	m.Revision = domain.PendingRevision
	commitRaw(t, repo, a, m)

	res, err := s.Sync(context.Background())
	if err != nil || res.Status != StatusUnpublished {
		t.Errorf("sync = %+v, %v", res, err)
	}
}

func TestSync_ChecksumMismatchKeepsLocal(t *testing.T) {
	ctx := context.Background()
	s, repo, pub, dir := setup(t)
	a, m := artifactsFor("v1")
	if _, err := pub.Publish(ctx, m, a); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	bad, bm := artifactsFor("v2")
	bm.Checksums.Index = checksum([]byte("something else"))
	head, _ := repo.Head(ctx)
	bm.Revision = head
	commitRaw(t, repo, bad, bm)

	_, err := s.Sync(ctx)
	if !errors.Is(err, domain.ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
	got, _ := os.ReadFile(filepath.Join(dir, domain.IndexFile))
	if string(got) != "v1" {
		t.Errorf("local artifacts must be untouched, index = %q", got)
	}
}

func TestSync_UpdateKeepsArtifactsDir(t *testing.T) {
	ctx := context.Background()
	s, _, pub, dir := setup(t)
	a, m := artifactsFor("v1")
	if _, err := pub.Publish(ctx, m, a); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	before, err := os.Stat(dir)
	if err != nil {
		t.Fatal(err)
	}

	a2, m2 := artifactsFor("v2")
	if _, err := pub.Publish(ctx, m2, a2); err != nil {
		t.Fatal(err)
	}
	if res, err := s.Sync(ctx); err != nil || res.Status != StatusUpdated {
		t.Fatalf("sync = %+v, %v", res, err)
	}

	after, err := os.Stat(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !os.SameFile(before, after) {
		t.Error("artifacts dir must be updated in place, not replaced")
	}
	lm, err := s.localManifest()
	if err != nil || lm.Revision != m2.Revision {
		t.Errorf("local manifest = %+v, %v", lm, err)
	}
}

// stallingStore blocks every Get until the caller gives up.
type stallingStore struct {
	blobstore.Store
}

func (stallingStore) Get(ctx context.Context, _ string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSync_StalledStoreTimesOut(t *testing.T) {
	store := stallingStore{Store: blobstore.NewMemoryStore()}
	repo := artifactstore.New(store, artifactstore.NewBlobRefs(store), zap.NewNop())
	dir := filepath.Join(t.TempDir(), "artifacts")
	s := New(repo, domain.NewArtifactPaths("artifacts").Manifest, dir, zap.NewNop()).
		WithTimeout(50 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := s.Sync(context.Background())
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, domain.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got %v", err)
		}
		if !domain.IsRetriable(err) {
			t.Error("a sync timeout must be retriable")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("sync did not honor its timeout")
	}
}
