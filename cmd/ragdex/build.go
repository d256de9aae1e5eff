package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/chunker"
	"github.com/kailas-cloud/ragdex/internal/config"
	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/reader"
	"github.com/kailas-cloud/ragdex/internal/sanitize"
	"github.com/kailas-cloud/ragdex/internal/usecase/ingest"
	"github.com/kailas-cloud/ragdex/internal/usecase/publish"
	"github.com/kailas-cloud/ragdex/internal/vectorindex"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build index artifacts from the corpus and publish them",
	Long: `build snapshots the corpus, parses, chunks and embeds every document,
writes the index artifacts and publishes them to the artifact store. It is
the unit of work that reindex and the scheduler run under the reindex lock;
running it directly bypasses the lock.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.build(ctx, a.logger.Named("build"), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

// build runs ingest and publish, then prints the published revision line.
func (a *app) build(ctx context.Context, logger *zap.Logger, out io.Writer) error {
	cfg := a.cfg

	source, err := a.source()
	if err != nil {
		return err
	}
	embedder, _, err := a.embedder()
	if err != nil {
		return err
	}
	ch, err := chunker.New(cfg.Chunking.ChunkChars, cfg.Chunking.Overlap)
	if err != nil {
		return err
	}
	codec, err := vectorindex.ParseCodec(cfg.Index.Codec)
	if err != nil {
		return err
	}

	var sanitizer *sanitize.Sanitizer
	if cfg.Sanitize.Enabled {
		sanitizer = sanitize.New(
			sanitize.SofficeConverter{Binary: cfg.Sanitize.SofficeBinary},
			cfg.Sanitize.AllowedExtensions,
			cfg.Sanitize.DeleteOriginalDoc,
			logger.Named("sanitize"),
		)
	}

	logger.Info("[JOB] build started",
		zap.String("source", source.Name()),
		zap.String("subdir", cfg.Corpus.Subdir),
		zap.String("model", embedder.Model()),
	)
	builder := ingest.New(source, sanitizer, reader.NewRegistry(), ch, embedder, ingest.Options{
		WorkDir:         cfg.WorkDir,
		SourceSubdir:    cfg.Corpus.Subdir,
		ArtifactsPrefix: cfg.Index.ArtifactsPrefix,
		Codec:           codec,
		Timeout:         config.Seconds(cfg.Reindex.BuildTimeoutSec),
	}, logger.Named("ingest"))

	res, err := builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	logger.Info("[JOB] artifacts built",
		zap.Int("chunks", res.Manifest.NumChunks),
		zap.Int("failed_docs", len(res.Failures)),
		zap.String("index_size", humanize.Bytes(uint64(len(res.Artifacts[domain.IndexFile])))),
	)

	repo, err := a.repo()
	if err != nil {
		return err
	}
	pub, err := publish.New(repo, logger.Named("publish")).Publish(ctx, res.Manifest, res.Artifacts)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	logger.Info("[JOB] published",
		zap.String("index_revision", pub.ArtifactsRevision),
		zap.String("manifest_revision", pub.ManifestRevision),
	)

	fmt.Fprintf(out, "index_revision=%s source_revision=%s\n", pub.ArtifactsRevision, res.Manifest.SourceRevision)
	return nil
}
