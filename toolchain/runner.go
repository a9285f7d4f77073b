package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Runner executes an external program.
type Runner interface {
	// Run executes name with args in dir and returns its standard output.
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs programs with os/exec. Standard error is attached to the
// returned error on failure and logged on success.
type ExecRunner struct {
	log *slog.Logger
}

// NewExecRunner creates a runner that logs every invocation at debug level.
func NewExecRunner(log *slog.Logger) *ExecRunner {
	return &ExecRunner{log: log}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	start := time.Now()
	commandLine := strings.Join(append([]string{name}, args...), " ")

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		r.log.Error("Command failed",
			slog.String("cmd", commandLine),
			slog.String("dir", dir),
			slog.String("stderr", strings.TrimSpace(stderr.String())),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", commandLine, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", commandLine, err)
	}

	if stderr.Len() > 0 {
		r.log.Debug("Command wrote to stderr",
			slog.String("cmd", commandLine),
			slog.String("stderr", strings.TrimSpace(stderr.String())))
	}

	r.log.Debug("Command finished",
		slog.String("cmd", commandLine),
		slog.String("dir", dir),
		slog.Int("stdout_size", stdout.Len()),
		slog.Duration("duration", time.Since(start)))

	return stdout.Bytes(), nil
}
