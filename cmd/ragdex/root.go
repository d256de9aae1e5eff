package main

import (
	"github.com/spf13/cobra"

	"github.com/kailas-cloud/ragdex/internal/config"
)

var (
	flagEnv    string
	flagConfig string
)

var rootCmd = &cobra.Command{
	Use:          "ragdex",
	Short:        "ragdex builds, publishes and serves a vector index over a document corpus",
	SilenceUsage: true,
	Long: `ragdex turns a corpus of PDF and DOCX files into chunked, embedded and
checksummed index artifacts, publishes them to a versioned artifact store and
serves nearest-neighbor search over the latest published version.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagEnv, "env", config.GetEnv(), "environment; selects config/<env>.yaml and the log format")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "explicit config file (overrides --env lookup)")
}

func loadConfig() (config.Config, error) {
	if flagConfig != "" {
		return config.LoadFile(flagConfig)
	}
	return config.Load(flagEnv)
}

// selfArgs forwards the config selection to a child process.
func selfArgs(cmd string) []string {
	args := []string{cmd, "--env", flagEnv}
	if flagConfig != "" {
		args = append(args, "--config", flagConfig)
	}
	return args
}
