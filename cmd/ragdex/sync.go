package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/ragdex/internal/config"
	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/usecase/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download the latest published artifacts into the work dir",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.syncer()
		if err != nil {
			return err
		}
		res, err := s.Sync(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "status=%s revision=%s\n", res.Status, res.Revision)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func (a *app) syncer() (*syncer.Syncer, error) {
	repo, err := a.repo()
	if err != nil {
		return nil, err
	}
	manifest := domain.NewArtifactPaths(a.cfg.Index.ArtifactsPrefix).Manifest
	s := syncer.New(repo, manifest, a.cfg.ArtifactsDir(), a.logger.Named("sync")).
		WithTimeout(config.Seconds(a.cfg.Index.SyncTimeoutSec))
	return s, nil
}
