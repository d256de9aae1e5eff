package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/artifactstore"
	"github.com/kailas-cloud/ragdex/internal/blobstore"
	"github.com/kailas-cloud/ragdex/internal/domain"
)

func checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func testArtifacts() (map[string][]byte, *domain.Manifest) {
	artifacts := map[string][]byte{
		domain.IndexFile:            []byte("index-bytes"),
		domain.MetaFile:             []byte(`[{"text":"a","source_path":"docs_rag/a.pdf","chunk_id":0}]`),
		domain.FailuresFile:         []byte(`[]`),
		domain.ConversionReportFile: []byte(`{"root":"docs_rag"}`),
	}
	m := &domain.Manifest{
		Revision:       domain.PendingRevision,
		SourceRevision: "src",
		EmbedModel:     "stub",
		EmbeddingDim:   4,
		NumChunks:      1,
		NumDocsOK:      1,
		Files:          domain.NewArtifactPaths("artifacts"),
		Checksums: domain.Checksums{
			Index:            checksum(artifacts[domain.IndexFile]),
			Meta:             checksum(artifacts[domain.MetaFile]),
			Failures:         checksum(artifacts[domain.FailuresFile]),
			ConversionReport: checksum(artifacts[domain.ConversionReportFile]),
		},
	}
	return artifacts, m
}

func newPublisher() (*Publisher, *artifactstore.Repo) {
	store := blobstore.NewMemoryStore()
	repo := artifactstore.New(store, artifactstore.NewBlobRefs(store), zap.NewNop())
	return New(repo, zap.NewNop()), repo
}

func TestPublish_TwoPhase(t *testing.T) {
	ctx := context.Background()
	p, repo := newPublisher()
	artifacts, m := testArtifacts()

	res, err := p.Publish(ctx, m, artifacts)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if res.ArtifactsRevision == "" || res.ManifestRevision == "" || res.ArtifactsRevision == res.ManifestRevision {
		t.Fatalf("expected two distinct commits, got %+v", res)
	}
	if m.Revision != res.ArtifactsRevision {
		t.Errorf("manifest revision = %q, want %q", m.Revision, res.ArtifactsRevision)
	}

	// First commit carries the placeholder.
	raw, err := repo.ReadFile(ctx, res.ArtifactsRevision, m.Files.Manifest)
	if err != nil {
		t.Fatalf("read pending manifest: %v", err)
	}
	pending, err := domain.ParseManifest(raw)
	if err != nil {
		t.Fatal(err)
	}
	if pending.Finalized() {
		t.Errorf("first commit must hold a placeholder revision, got %q", pending.Revision)
	}

	// HEAD carries the finalized manifest and still has every artifact.
	head, raw, err := repo.HeadFile(ctx, m.Files.Manifest)
	if err != nil {
		t.Fatalf("read head manifest: %v", err)
	}
	if head != res.ManifestRevision {
		t.Errorf("head = %q, want %q", head, res.ManifestRevision)
	}
	final, err := domain.ParseManifest(raw)
	if err != nil {
		t.Fatal(err)
	}
	if final.Revision != res.ArtifactsRevision {
		t.Errorf("final revision = %q, want %q", final.Revision, res.ArtifactsRevision)
	}
	data, err := repo.ReadFile(ctx, head, m.Files.Index)
	if err != nil || string(data) != "index-bytes" {
		t.Errorf("index at head = %q, %v", data, err)
	}
}

func TestFinalizeManifest_Idempotent(t *testing.T) {
	ctx := context.Background()
	p, repo := newPublisher()
	artifacts, m := testArtifacts()

	res, err := p.Publish(ctx, m, artifacts)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	again, err := p.FinalizeManifest(ctx, res.ArtifactsRevision, m)
	if err != nil {
		t.Fatalf("retry finalize: %v", err)
	}
	if again != res.ManifestRevision {
		t.Errorf("retry must be a no-op, got %q want %q", again, res.ManifestRevision)
	}
	head, _ := repo.Head(ctx)
	if head != res.ManifestRevision {
		t.Errorf("head moved on retry: %q", head)
	}
}

func TestFinalizeManifest_AfterInterruptedPublish(t *testing.T) {
	ctx := context.Background()
	p, repo := newPublisher()
	artifacts, m := testArtifacts()

	pending := *m
	manifestJSON, _ := pending.Marshal()
	files := map[string][]byte{m.Files.Manifest: manifestJSON}
	files[m.Files.Index] = artifacts[domain.IndexFile]
	files[m.Files.Meta] = artifacts[domain.MetaFile]
	files[m.Files.Failures] = artifacts[domain.FailuresFile]
	files[m.Files.ConversionReport] = artifacts[domain.ConversionReportFile]
	c1, err := repo.Commit(ctx, artifactstore.CommitRequest{Message: "artifacts", Files: files, Replace: true})
	if err != nil {
		t.Fatal(err)
	}

	c2, err := p.FinalizeManifest(ctx, c1.ID, m)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if c2 == c1.ID {
		t.Error("finalize must create a new commit")
	}
	if m.Revision != c1.ID {
		t.Errorf("revision = %q, want %q", m.Revision, c1.ID)
	}
}

func TestFinalizeManifest_ChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	p, _ := newPublisher()
	artifacts, m := testArtifacts()

	res, err := p.Publish(ctx, m, artifacts)
	if err != nil {
		t.Fatal(err)
	}

	m.Checksums.Index = "deadbeef"
	_, err = p.FinalizeManifest(ctx, res.ArtifactsRevision, m)
	if !errors.Is(err, domain.ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestPublish_MissingArtifact(t *testing.T) {
	p, repo := newPublisher()
	artifacts, m := testArtifacts()
	delete(artifacts, domain.FailuresFile)

	if _, err := p.Publish(context.Background(), m, artifacts); err == nil {
		t.Fatal("expected error for missing artifact")
	}
	head, _ := repo.Head(context.Background())
	if head != "" {
		t.Errorf("nothing must be committed, head = %q", head)
	}
}
