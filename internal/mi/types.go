package mi

import (
	"encoding/json"
	"time"
)

// Task statuses reported by the API. Other values are passed through as-is.
const (
	StatusPending = "PENDING"
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// msThreshold separates epoch-second from epoch-millisecond timestamps.
const msThreshold = 1_000_000_000_000

// Task is one document submitted for MI extraction.
type Task struct {
	JobID               string `json:"jobid"`
	Client              string `json:"client"`
	Status              string `json:"status"`
	Submitted           int64  `json:"submitted"`
	CompanyName         string `json:"companyName,omitempty"`
	ClientFilename      string `json:"clientFilename,omitempty"`
	OriginalFilename    string `json:"originalFilename,omitempty"`
	ClientModelFilename string `json:"clientModelFilename,omitempty"`
	ModelURL            string `json:"modelUrl,omitempty"` // presigned; NEVER log
}

// Done reports whether the task has left the pending state. Statuses the
// client does not know are terminal too.
func (t *Task) Done() bool {
	return t.Status != StatusPending
}

// SubmittedAt converts the submitted timestamp, accepting both epoch
// seconds and epoch milliseconds.
func (t *Task) SubmittedAt() time.Time {
	if t.Submitted == 0 {
		return time.Time{}
	}

	if t.Submitted >= msThreshold {
		return time.UnixMilli(t.Submitted)
	}

	return time.Unix(t.Submitted, 0)
}

// Archive is a zip bundle stored by the archive API.
type Archive struct {
	Name         string `json:"key"`
	URL          string `json:"link"` // presigned; NEVER log
	LastModified string `json:"lastModified"`
}

type listTasksResponse struct {
	Tasks []Task `json:"tasks"`
}

type submitTaskResponse struct {
	URL   string `json:"url"`
	JobID string `json:"jobid"`
}

type consolidateResponse struct {
	Model json.RawMessage `json:"model"`
}

type listArchivesResponse struct {
	Archives []Archive `json:"archives"`
}

type deleteArchiveRequest struct {
	Key string `json:"key"`
}
