package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ruteri/iot-thing-provisioner/interfaces"
)

// PollOpts bounds WaitForCompletion.
type PollOpts struct {
	// Interval is the fixed delay between two status requests.
	Interval time.Duration

	// MaxRetries is the number of status requests after the first one.
	MaxRetries uint64
}

// DefaultPollOpts polls once a second, eleven times in total.
var DefaultPollOpts = PollOpts{
	Interval:   time.Second,
	MaxRetries: 10,
}

var errTaskPending = errors.New("task pending")

// WaitForCompletion polls the task until its status is Completed and returns
// the last snapshot. It fails with interfaces.ErrRetriesExceeded when the
// ceiling is reached, with interfaces.ErrTaskFailed when the task ends in
// another terminal state, and immediately when a status request fails.
func WaitForCompletion(ctx context.Context, reg interfaces.ThingRegistry, taskID string, opts PollOpts, log *slog.Logger) (*interfaces.RegistrationTask, error) {
	start := time.Now()
	var last *interfaces.RegistrationTask
	attempts := 0

	op := func() error {
		attempts++
		task, err := reg.DescribeRegistrationTask(ctx, taskID)
		if err != nil {
			return backoff.Permanent(err)
		}
		last = task

		log.Info("Registration task status",
			slog.String("task_id", taskID),
			slog.String("status", string(task.Status)),
			slog.Int64("progress_pct", task.PercentageProgress),
			slog.Int("attempt", attempts))

		switch task.Status {
		case interfaces.TaskCompleted:
			return nil
		case interfaces.TaskFailed, interfaces.TaskCancelled:
			return backoff.Permanent(fmt.Errorf("%w: task %s is %s: %s", interfaces.ErrTaskFailed, taskID, task.Status, task.Message))
		default:
			return errTaskPending
		}
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(opts.Interval), opts.MaxRetries),
		ctx)

	err := backoff.Retry(op, policy)
	if errors.Is(err, errTaskPending) {
		return last, fmt.Errorf("%w: task %s still %s after %d status requests", interfaces.ErrRetriesExceeded, taskID, last.Status, attempts)
	} else if err != nil {
		return last, err
	}

	log.Info("Registration task completed",
		slog.String("task_id", taskID),
		slog.Int64("succeeded", last.SuccessCount),
		slog.Int64("failed", last.FailureCount),
		slog.Duration("duration", time.Since(start)))

	return last, nil
}
