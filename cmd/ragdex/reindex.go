package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/ragdex/internal/config"
	"github.com/kailas-cloud/ragdex/internal/domain"
	logpkg "github.com/kailas-cloud/ragdex/internal/logger"
	"github.com/kailas-cloud/ragdex/internal/usecase/reindex"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Run a build under the reindex lock and record its output",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		coord, err := a.coordinator()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out, err := coord.Run(ctx)
		if errors.Is(err, domain.ErrAlreadyRunning) {
			fmt.Fprintln(cmd.OutOrStdout(), reindex.LockedMessage)
			return err
		}
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out.String())
		if !out.OK() {
			return fmt.Errorf("build exited with code %d", out.ExitCode)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

// coordinator wires the reindex lock, the rolling log and the build job. The
// job re-executes this binary as "build" unless reindex.in_process is set.
func (a *app) coordinator() (*reindex.Coordinator, error) {
	l, err := a.lock()
	if err != nil {
		return nil, err
	}
	log, err := reindex.NewRollingLog(a.cfg.LogPath(), a.cfg.Reindex.LogMaxBytes)
	if err != nil {
		return nil, err
	}

	var job reindex.Job
	if a.cfg.Reindex.InProcess {
		job = reindex.FuncJob(func(ctx context.Context, stdout, _ io.Writer) error {
			logger, err := logpkg.NewWriterLogger(stdout, flagEnv, a.cfg.Logging.Level)
			if err != nil {
				return err
			}
			return a.build(ctx, logger.Named("build"), stdout)
		})
	} else {
		self, err := reindex.SelfJob(selfArgs("build")...)
		if err != nil {
			return nil, err
		}
		job = self
	}

	timeout := config.Seconds(a.cfg.Reindex.BuildTimeoutSec)
	return reindex.NewCoordinator(l, job, log, timeout, a.logger.Named("reindex")), nil
}
