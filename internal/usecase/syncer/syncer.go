// Package syncer pulls the latest published artifacts into the local
// directory the runtime serves from.
package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/artifactstore"
	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// Status is the outcome of one Sync.
type Status string

// Sync outcomes.
const (
	StatusUpdated     Status = "updated"
	StatusUnchanged   Status = "unchanged"
	StatusUnpublished Status = "unpublished"
)

// Result reports what a Sync did.
type Result struct {
	Status   Status
	Revision string
}

// Syncer mirrors the HEAD artifacts into Dir.
type Syncer struct {
	repo         *artifactstore.Repo
	manifestPath string
	dir          string
	timeout      time.Duration
	logger       *zap.Logger
}

// New creates a Syncer. manifestPath is the manifest's path in the store tree.
func New(repo *artifactstore.Repo, manifestPath, dir string, logger *zap.Logger) *Syncer {
	return &Syncer{repo: repo, manifestPath: manifestPath, dir: dir, logger: logger}
}

// WithTimeout bounds each Sync, store calls included. Zero disables it.
func (s *Syncer) WithTimeout(d time.Duration) *Syncer {
	s.timeout = d
	return s
}

// Sync downloads the HEAD artifacts when they differ from the local ones. A
// missing or unfinalized manifest is reported as StatusUnpublished, not as an
// error. Running out of time yields a domain.TimeoutError.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	res, err := s.sync(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = &domain.TimeoutError{Op: "sync artifacts", Err: err}
	}
	label := string(res.Status)
	if err != nil {
		label = "failed"
	}
	metrics.SyncTotal.WithLabelValues(label).Inc()
	return res, err
}

func (s *Syncer) sync(ctx context.Context) (Result, error) {
	_, data, err := s.repo.HeadFile(ctx, s.manifestPath)
	if errors.Is(err, domain.ErrNotPublished) {
		return Result{Status: StatusUnpublished}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("read remote manifest: %w", err)
	}
	remote, err := domain.ParseManifest(data)
	if err != nil {
		return Result{}, err
	}
	if !remote.Finalized() {
		s.logger.Info("remote manifest not finalized yet")
		return Result{Status: StatusUnpublished}, nil
	}

	if local, err := s.localManifest(); err == nil && local.Revision == remote.Revision {
		return Result{Status: StatusUnchanged, Revision: remote.Revision}, nil
	}

	staging := s.dir + ".staging-" + uuid.NewString()
	defer func() { _ = os.RemoveAll(staging) }()
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return Result{}, fmt.Errorf("create staging dir: %w", err)
	}

	paths := []string{remote.Files.Index, remote.Files.Meta, remote.Files.Failures, remote.Files.ConversionReport}
	if err := s.repo.Download(ctx, remote.Revision, paths, staging); err != nil {
		return Result{}, fmt.Errorf("download artifacts at %s: %w", remote.Revision, err)
	}
	for _, p := range paths {
		name := filepath.Base(p)
		want, _ := remote.ChecksumFor(name)
		if err := verifyFile(filepath.Join(staging, name), want); err != nil {
			return Result{}, err
		}
	}
	if err := os.WriteFile(filepath.Join(staging, domain.ManifestFile), data, 0o644); err != nil {
		return Result{}, fmt.Errorf("write manifest: %w", err)
	}

	if err := install(staging, s.dir, paths); err != nil {
		return Result{}, err
	}
	s.logger.Info("artifacts synced",
		zap.String("revision", remote.Revision),
		zap.Int("chunks", remote.NumChunks),
	)
	return Result{Status: StatusUpdated, Revision: remote.Revision}, nil
}

func (s *Syncer) localManifest() (*domain.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, domain.ManifestFile))
	if err != nil {
		return nil, err
	}
	return domain.ParseManifest(data)
}

// Run syncs every interval until ctx is done. Errors are logged.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.Sync(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("artifact sync failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func verifyFile(path, want string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != want {
		return fmt.Errorf("%s: %w", filepath.Base(path), domain.ErrChecksumMismatch)
	}
	return nil
}

// install moves the staged artifacts into dir. A missing dir is created by a
// single rename. Otherwise files are renamed one at a time with the manifest
// last, so dir never disappears and a reader that catches the swap halfway
// sees checksums that disagree with the manifest and retries later.
func install(staging, dir string, paths []string) error {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := os.Rename(staging, dir); err != nil {
			return fmt.Errorf("install artifacts: %w", err)
		}
		return nil
	}

	names := make([]string, 0, len(paths)+1)
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	names = append(names, domain.ManifestFile)
	for _, name := range names {
		if err := os.Rename(filepath.Join(staging, name), filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("install %s: %w", name, err)
		}
	}
	return nil
}
