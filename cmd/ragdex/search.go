package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/ragdex/internal/config"
	"github.com/kailas-cloud/ragdex/internal/domain"
	ragruntime "github.com/kailas-cloud/ragdex/internal/runtime"
)

var flagTopK int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Query the locally synced index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		rt, _, err := a.runtime()
		if err != nil {
			return err
		}
		if err := rt.Load(); err != nil {
			return err
		}
		hits, err := rt.Search(cmd.Context(), strings.Join(args, " "), flagTopK)
		if err != nil {
			return err
		}
		if hits == nil {
			hits = []domain.Hit{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	},
}

func init() {
	searchCmd.Flags().IntVarP(&flagTopK, "top-k", "k", 5, "number of hits to return")
	rootCmd.AddCommand(searchCmd)
}

// runtime builds the serving index over the synced artifacts dir. The bare
// embedding provider is returned for health checks.
func (a *app) runtime() (*ragruntime.Runtime, domain.Embedder, error) {
	embedder, base, err := a.embedder()
	if err != nil {
		return nil, nil, err
	}
	ic := a.cfg.Index
	rt := ragruntime.New(embedder, ragruntime.Options{
		Dir:          a.cfg.ArtifactsDir(),
		ReloadPoll:   config.Seconds(ic.ReloadPollSec),
		CacheSize:    ic.CacheSize,
		QueryTimeout: config.Seconds(ic.QueryTimeoutSec),
	}, a.logger.Named("runtime"))
	return rt, base, nil
}
