// Package ingest turns a corpus snapshot into index artifacts.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/chunker"
	"github.com/kailas-cloud/ragdex/internal/corpus"
	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/reader"
	"github.com/kailas-cloud/ragdex/internal/sanitize"
	"github.com/kailas-cloud/ragdex/internal/vectorindex"
)

// Options configures a build.
type Options struct {
	// WorkDir holds the corpus snapshot (docs/) and the built artifacts (out/).
	WorkDir string
	// SourceSubdir must exist inside the snapshot. Empty means the snapshot root.
	SourceSubdir    string
	ArtifactsPrefix string
	Codec           vectorindex.Codec
	Timeout         time.Duration
}

// Result is a built but unpublished artifact set.
type Result struct {
	Manifest *domain.Manifest
	// Artifacts maps artifact file names (domain.IndexFile, ...) to their bytes.
	Artifacts map[string][]byte
	Failures  []domain.Failure
	// OutDir is where the artifacts were written locally.
	OutDir string
}

// Builder runs the snapshot, sanitize, parse, chunk, embed and index steps.
type Builder struct {
	source    corpus.Source
	sanitizer *sanitize.Sanitizer
	readers   *reader.Registry
	chunker   *chunker.Chunker
	embedder  domain.Embedder
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a Builder. sanitizer may be nil to skip sanitizing.
func New(
	source corpus.Source,
	sanitizer *sanitize.Sanitizer,
	readers *reader.Registry,
	ch *chunker.Chunker,
	embedder domain.Embedder,
	opts Options,
	logger *zap.Logger,
) *Builder {
	return &Builder{
		source:    source,
		sanitizer: sanitizer,
		readers:   readers,
		chunker:   ch,
		embedder:  embedder,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the manifest timestamp source.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// DocsDir is the snapshot location inside the work dir.
func (b *Builder) DocsDir() string { return filepath.Join(b.opts.WorkDir, "docs") }

// OutDir is the local artifact location inside the work dir.
func (b *Builder) OutDir() string { return filepath.Join(b.opts.WorkDir, "out") }

// Build produces artifacts. When no document parses it still writes
// failures.json to OutDir and returns domain.ErrNoDocuments.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}

	b.logger.Info("snapshot corpus", zap.String("source", b.source.Name()))
	sourceRev, err := b.source.Snapshot(ctx, b.DocsDir())
	if err != nil {
		return nil, fmt.Errorf("snapshot corpus: %w", err)
	}

	root := b.DocsDir()
	if b.opts.SourceSubdir != "" {
		root = filepath.Join(root, filepath.FromSlash(b.opts.SourceSubdir))
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			return nil, fmt.Errorf("source subdir not found: %s", b.opts.SourceSubdir)
		}
	}

	report := sanitize.NewReport(root)
	if b.sanitizer != nil {
		b.logger.Info("sanitize corpus", zap.String("root", root))
		if report, err = b.sanitizer.Run(ctx, root); err != nil {
			return nil, fmt.Errorf("sanitize: %w", err)
		}
	}

	paths, err := corpus.Discover(root, b.readers.Supports)
	if err != nil {
		return nil, fmt.Errorf("discover documents: %w", err)
	}
	b.logger.Info("parse documents", zap.Int("found", len(paths)))

	failures := []domain.Failure{}
	var docs []domain.Document
	for _, p := range paths {
		rel, err := filepath.Rel(b.DocsDir(), p)
		if err != nil {
			return nil, err
		}
		doc, fail := b.readers.Document(p, filepath.ToSlash(rel))
		if fail != nil {
			b.logger.Warn("document failed", zap.String("path", fail.Path), zap.String("error", fail.Error))
			failures = append(failures, *fail)
			continue
		}
		docs = append(docs, doc)
	}

	reportJSON, err := report.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal conversion report: %w", err)
	}
	failuresJSON, err := json.MarshalIndent(failures, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal failures: %w", err)
	}

	if len(docs) == 0 {
		partial := map[string][]byte{
			domain.FailuresFile:         failuresJSON,
			domain.ConversionReportFile: reportJSON,
		}
		if err := writeArtifacts(b.OutDir(), partial); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %d failed", domain.ErrNoDocuments, len(failures))
	}

	var chunks []domain.Chunk
	for _, d := range docs {
		chunks = append(chunks, b.chunker.Chunks(d)...)
	}
	if len(chunks) == 0 {
		return nil, domain.ErrNoDocuments
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	b.logger.Info("embed chunks", zap.Int("chunks", len(chunks)), zap.String("model", b.embedder.Model()))
	vecs, err := b.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", domain.WrapTimeout("embed chunks", err))
	}
	if len(vecs) != len(chunks) {
		return nil, fmt.Errorf("got %d embeddings for %d chunks: %w", len(vecs), len(chunks), domain.ErrEmbeddingProviderError)
	}

	ib, err := vectorindex.NewBuilder(len(vecs[0]))
	if err != nil {
		return nil, err
	}
	if err := ib.Add(vecs...); err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	ix := ib.Build()

	indexBytes, err := vectorindex.Marshal(ix, b.opts.Codec)
	if err != nil {
		return nil, err
	}
	metaJSON, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	artifacts := map[string][]byte{
		domain.IndexFile:            indexBytes,
		domain.MetaFile:             metaJSON,
		domain.FailuresFile:         failuresJSON,
		domain.ConversionReportFile: reportJSON,
	}
	m := &domain.Manifest{
		Revision:       domain.PendingRevision,
		CreatedAt:      b.now().UTC().Format(time.RFC3339),
		SourceRepo:     b.source.Name(),
		SourceRevision: sourceRev,
		SourceSubdir:   b.opts.SourceSubdir,
		EmbedModel:     b.embedder.Model(),
		EmbeddingDim:   ix.Dim(),
		NumChunks:      len(chunks),
		NumDocsOK:      len(docs),
		NumDocsFailed:  len(failures),
		IndexCodec:     b.opts.Codec.String(),
		Chunking:       b.chunker.Params(),
		Files:          domain.NewArtifactPaths(b.opts.ArtifactsPrefix),
		Checksums: domain.Checksums{
			Index:            Checksum(indexBytes),
			Meta:             Checksum(metaJSON),
			ConversionReport: Checksum(reportJSON),
			Failures:         Checksum(failuresJSON),
		},
	}
	manifestJSON, err := m.Marshal()
	if err != nil {
		return nil, err
	}

	out := map[string][]byte{domain.ManifestFile: manifestJSON}
	for k, v := range artifacts {
		out[k] = v
	}
	if err := writeArtifacts(b.OutDir(), out); err != nil {
		return nil, err
	}

	b.logger.Info("build complete",
		zap.Int("docs_ok", m.NumDocsOK),
		zap.Int("docs_failed", m.NumDocsFailed),
		zap.Int("chunks", m.NumChunks),
		zap.Int("dim", m.EmbeddingDim),
	)
	return &Result{Manifest: m, Artifacts: artifacts, Failures: failures, OutDir: b.OutDir()}, nil
}

// Checksum is the hex sha256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// writeArtifacts replaces dir with files.
func writeArtifacts(dir string, files map[string][]byte) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear artifacts dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifacts dir: %w", err)
	}
	var errs []error
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
