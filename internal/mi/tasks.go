package mi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// jobIDSeparator joins job ids in the fund portfolio query.
const jobIDSeparator = ";"

// ListTasks returns the caller's tasks, including presigned model URLs.
// A non-empty company restricts the result to that company. Never returns
// a nil slice on success.
func (c *Client) ListTasks(ctx context.Context, company string) ([]Task, error) {
	query := url.Values{"includePresigned": {"true"}}
	if company != "" {
		query.Set("company", company)
	}

	var resp listTasksResponse
	if err := c.call(ctx, http.MethodGet, "/tasks", query, nil, &resp); err != nil {
		return nil, err
	}

	if resp.Tasks == nil {
		resp.Tasks = []Task{}
	}

	c.logger.Debug("listed tasks", slog.Int("count", len(resp.Tasks)))

	return resp.Tasks, nil
}

// GetTask fetches one task by job id. Returns ErrTaskNotFound for unknown ids.
func (c *Client) GetTask(ctx context.Context, jobID string) (*Task, error) {
	var task Task
	if err := c.call(ctx, http.MethodGet, "/tasks/"+url.PathEscape(jobID), nil, nil, &task); err != nil {
		return nil, err
	}

	return &task, nil
}

// DeleteTask deletes a task and its stored input and model.
func (c *Client) DeleteTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errNilTask
	}

	c.logger.Info("deleting task", slog.String("job_id", task.JobID))

	return c.call(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(task.JobID), nil, nil, nil)
}

// ConsolidateTasks aggregates the models of the given tasks into one fund
// portfolio model and returns its raw JSON.
func (c *Client) ConsolidateTasks(ctx context.Context, tasks []Task) (json.RawMessage, error) {
	if !c.session.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	ids := make([]string, 0, len(tasks))
	for i := range tasks {
		if tasks[i].JobID != "" {
			ids = append(ids, tasks[i].JobID)
		}
	}

	if len(ids) == 0 {
		return nil, ErrNoJobIDs
	}

	c.logger.Info("consolidating tasks", slog.Int("count", len(ids)))

	query := url.Values{"jobids": {strings.Join(ids, jobIDSeparator)}}

	var resp consolidateResponse
	if err := c.call(ctx, http.MethodGet, "/fundportfolio", query, nil, &resp); err != nil {
		return nil, fmt.Errorf("mi: consolidating %d tasks: %w", len(ids), err)
	}

	return resp.Model, nil
}
