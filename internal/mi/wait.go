package mi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Polling defaults for WaitForTask.
const (
	defaultPollInitial    = 2 * time.Second
	defaultPollMax        = 30 * time.Second
	defaultPollMaxElapsed = 15 * time.Minute
)

// errStillPending drives the backoff loop; it never escapes WaitForTask.
var errStillPending = errors.New("mi: task still pending")

// WaitOptions bounds WaitForTask polling. Zero fields take defaults.
type WaitOptions struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

func (o WaitOptions) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultPollInitial
	b.MaxInterval = defaultPollMax
	b.MaxElapsedTime = defaultPollMaxElapsed

	if o.InitialInterval > 0 {
		b.InitialInterval = o.InitialInterval
	}

	if o.MaxInterval > 0 {
		b.MaxInterval = o.MaxInterval
	}

	if o.MaxElapsed > 0 {
		b.MaxElapsedTime = o.MaxElapsed
	}

	b.Reset()

	return b
}

// transient reports whether a GetTask failure is worth polling through.
// Only server-side API errors qualify.
func transient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}

	return false
}

// WaitForTask polls GetTask with exponential backoff while the task is
// PENDING and returns it as soon as it reports any other status. Server
// errors (5xx) keep polling; every other error ends the wait.
func (c *Client) WaitForTask(ctx context.Context, jobID string, opts WaitOptions) (*Task, error) {
	var final *Task

	var lastErr error

	op := func() error {
		task, err := c.GetTask(ctx, jobID)
		if err != nil {
			if !transient(err) {
				return backoff.Permanent(err)
			}

			lastErr = err

			return err
		}

		lastErr = nil

		if !task.Done() {
			return errStillPending
		}

		final = task

		return nil
	}

	notify := func(err error, next time.Duration) {
		if errors.Is(err, errStillPending) {
			c.logger.Debug("task not finished, polling again",
				slog.String("job_id", jobID),
				slog.Duration("backoff", next),
			)

			return
		}

		c.logger.Warn("polling task failed, retrying",
			slog.String("job_id", jobID),
			slog.Duration("backoff", next),
			slog.String("error", err.Error()),
		)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(opts.backOff(), ctx), notify)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("mi: waiting for task %s: %w", jobID, ctx.Err())
		}

		if errors.Is(err, errStillPending) {
			return nil, fmt.Errorf("%w %s", ErrWaitTimeout, jobID)
		}

		if lastErr != nil && transient(err) {
			return nil, fmt.Errorf("%w %s: %w", ErrWaitTimeout, jobID, lastErr)
		}

		return nil, err
	}

	c.logger.Info("task finished",
		slog.String("job_id", jobID),
		slog.String("status", final.Status),
	)

	return final, nil
}
