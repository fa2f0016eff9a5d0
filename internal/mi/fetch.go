package mi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// FetchModel downloads the extracted model of a finished task from its
// presigned URL and verifies the body against the response ETag. An
// *IntegrityError means the download was corrupted; retry the whole fetch.
// Presigned URLs expire, so fetch the task right before calling this.
func (c *Client) FetchModel(ctx context.Context, task *Task) (json.RawMessage, error) {
	if !c.session.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	if task == nil {
		return nil, errNilTask
	}

	if task.ModelURL == "" {
		return nil, fmt.Errorf("cannot load model for task %s: %w", task.JobID, ErrModelNotReady)
	}

	c.logger.Info("fetching model", slog.String("job_id", task.JobID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.ModelURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("mi: creating model request: %w", err)
	}

	resp, body, err := c.doPresigned(ctx, req, "model download")
	if err != nil {
		return nil, err
	}

	if sentinel := classifyPresignedStatus(resp.StatusCode); sentinel != nil {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			RequestID:  requestID(resp.Header),
			Message:    strings.TrimSpace(string(body)),
			Err:        sentinel,
		}

		if sentinel == ErrAuthenticationFailed {
			apiErr.Hint = presignedExpiredHint
		}

		c.logger.Warn("model download rejected",
			slog.String("job_id", task.JobID),
			slog.Int("status", resp.StatusCode),
		)

		return nil, apiErr
	}

	if err := verifyETag(body, resp.Header.Get("ETag")); err != nil {
		c.logger.Warn("model integrity check failed",
			slog.String("job_id", task.JobID),
			slog.String("error", err.Error()),
		)

		return nil, err
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: model for task %s is not valid JSON", ErrUnexpected, task.JobID)
	}

	c.logger.Debug("model fetched",
		slog.String("job_id", task.JobID),
		slog.Int("size", len(body)),
	)

	return json.RawMessage(body), nil
}
