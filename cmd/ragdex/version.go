package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/ragdex/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show ragdex version and build information",
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Version:    %s\n", version.Version)
		fmt.Fprintf(out, "Commit:     %s\n", version.Commit)
		fmt.Fprintf(out, "Build Date: %s\n", version.Date)
		fmt.Fprintf(out, "Go Version: %s\n", runtime.Version())
		fmt.Fprintf(out, "OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
