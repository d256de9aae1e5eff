// Package publish pushes built artifacts to the versioned artifact store.
//
// The store has no multi-file transaction, so a publish is two commits. The
// first holds every artifact plus a manifest whose revision is a placeholder.
// The second rewrites only the manifest with the first commit's id. Between
// the two, readers see a placeholder revision and treat the store as not yet
// publishable. The second step is safe to repeat.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/artifactstore"
	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// Result carries both commit ids of a publish.
type Result struct {
	// ArtifactsRevision is the commit holding the artifacts. The manifest
	// revision field equals it.
	ArtifactsRevision string
	// ManifestRevision is the commit holding the finalized manifest.
	ManifestRevision string
}

// Publisher runs the two-phase publish.
type Publisher struct {
	repo   *artifactstore.Repo
	logger *zap.Logger
}

// New creates a Publisher.
func New(repo *artifactstore.Repo, logger *zap.Logger) *Publisher {
	return &Publisher{repo: repo, logger: logger}
}

// Publish commits artifacts (keyed by artifact file name) and then finalizes
// the manifest. m is updated in place with the final revision.
func (p *Publisher) Publish(ctx context.Context, m *domain.Manifest, artifacts map[string][]byte) (Result, error) {
	pending := *m
	pending.Revision = domain.PendingRevision
	manifestJSON, err := pending.Marshal()
	if err != nil {
		return Result{}, err
	}

	files := map[string][]byte{m.Files.Manifest: manifestJSON}
	for name, path := range map[string]string{
		domain.IndexFile:            m.Files.Index,
		domain.MetaFile:             m.Files.Meta,
		domain.FailuresFile:         m.Files.Failures,
		domain.ConversionReportFile: m.Files.ConversionReport,
	} {
		data, ok := artifacts[name]
		if !ok {
			return Result{}, fmt.Errorf("missing artifact %s", name)
		}
		files[path] = data
	}

	head, err := p.repo.Head(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read head: %w", err)
	}
	c1, err := p.repo.Commit(ctx, artifactstore.CommitRequest{
		Parent:  head,
		Message: fmt.Sprintf("artifacts source_revision=%s", m.SourceRevision),
		Files:   files,
		Replace: true,
	})
	observe("artifacts", err)
	if err != nil {
		return Result{}, fmt.Errorf("commit artifacts: %w", err)
	}
	p.logger.Info("artifacts committed", zap.String("revision", c1.ID))

	c2, err := p.FinalizeManifest(ctx, c1.ID, m)
	if err != nil {
		return Result{ArtifactsRevision: c1.ID}, err
	}
	return Result{ArtifactsRevision: c1.ID, ManifestRevision: c2}, nil
}

// FinalizeManifest sets m.Revision to revision and commits the manifest on
// top of it. The artifacts recorded in revision must match m's checksums and
// HEAD must still be revision. When HEAD already carries the same manifest
// nothing is written and HEAD is returned.
func (p *Publisher) FinalizeManifest(ctx context.Context, revision string, m *domain.Manifest) (string, error) {
	id, err := p.finalize(ctx, revision, m)
	observe("manifest", err)
	return id, err
}

func (p *Publisher) finalize(ctx context.Context, revision string, m *domain.Manifest) (string, error) {
	target, err := p.repo.ReadCommit(ctx, revision)
	if err != nil {
		return "", fmt.Errorf("read artifacts commit: %w", err)
	}
	for path, want := range map[string]string{
		m.Files.Index:            m.Checksums.Index,
		m.Files.Meta:             m.Checksums.Meta,
		m.Files.Failures:         m.Checksums.Failures,
		m.Files.ConversionReport: m.Checksums.ConversionReport,
	} {
		entry, ok := target.Files[path]
		if !ok || entry.SHA256 != want {
			return "", fmt.Errorf("%s at %s: %w", path, revision, domain.ErrChecksumMismatch)
		}
	}

	m.Revision = revision
	manifestJSON, err := m.Marshal()
	if err != nil {
		return "", err
	}

	head, current, err := p.repo.HeadFile(ctx, m.Files.Manifest)
	switch {
	case err == nil && bytes.Equal(current, manifestJSON):
		p.logger.Info("manifest already finalized", zap.String("revision", head))
		return head, nil
	case err != nil && !errors.Is(err, domain.ErrNotPublished):
		return "", fmt.Errorf("read head manifest: %w", err)
	}
	if head != revision {
		return "", fmt.Errorf("head %s is not %s: %w", head, revision, domain.ErrConcurrentPublish)
	}

	c2, err := p.repo.Commit(ctx, artifactstore.CommitRequest{
		Parent:  head,
		Message: fmt.Sprintf("manifest revision=%s", revision),
		Files:   map[string][]byte{m.Files.Manifest: manifestJSON},
	})
	if err != nil {
		return "", fmt.Errorf("commit manifest: %w", err)
	}
	p.logger.Info("manifest finalized", zap.String("revision", revision), zap.String("commit", c2.ID))
	return c2.ID, nil
}

func observe(step string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.PublishTotal.WithLabelValues(step, result).Inc()
}
