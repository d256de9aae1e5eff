package reindex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// Outcome is the captured result of one build job.
type Outcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// OK reports a zero exit status.
func (o Outcome) OK() bool { return o.ExitCode == 0 }

// String renders the outcome the way it is returned to triggers and logged.
func (o Outcome) String() string {
	return fmt.Sprintf("EXIT=%d\n\nSTDOUT:\n%s\n\nSTDERR:\n%s\n", o.ExitCode, o.Stdout, o.Stderr)
}

// Job is one isolated build+publish run. It reports failure through the
// outcome, never by panicking or returning early.
type Job interface {
	Run(ctx context.Context) Outcome
}

// ExecJob runs the build in a child process.
type ExecJob struct {
	Path string
	Args []string
	// Env is appended to the current environment.
	Env []string
	Dir string
}

// SelfJob returns an ExecJob re-invoking the running binary with args.
func SelfJob(args ...string) (ExecJob, error) {
	exe, err := os.Executable()
	if err != nil {
		return ExecJob{}, fmt.Errorf("locate executable: %w", err)
	}
	return ExecJob{Path: exe, Args: args}, nil
}

// Run implements Job.
func (j ExecJob) Run(ctx context.Context) Outcome {
	start := time.Now()
	cmd := exec.CommandContext(ctx, j.Path, j.Args...)
	cmd.Env = append(os.Environ(), j.Env...)
	cmd.Dir = j.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Outcome{Stdout: stdout.String(), Stderr: stderr.String(), Duration: time.Since(start)}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
	default:
		out.ExitCode = -1
		out.Stderr += err.Error()
	}
	if ctx.Err() != nil && out.ExitCode == 0 {
		out.ExitCode = -1
	}
	return out
}

// FuncJob runs the build in-process with its output captured.
type FuncJob func(ctx context.Context, stdout, stderr io.Writer) error

// Run implements Job.
func (f FuncJob) Run(ctx context.Context) Outcome {
	start := time.Now()
	var stdout, stderr bytes.Buffer
	err := f(ctx, &stdout, &stderr)
	out := Outcome{Stdout: stdout.String(), Stderr: stderr.String(), Duration: time.Since(start)}
	if err != nil {
		out.ExitCode = 1
		if stderr.Len() > 0 {
			out.Stderr += "\n"
		}
		out.Stderr += err.Error()
	}
	return out
}
