package mi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/text/unicode/norm"
)

// Filetypes lists the accepted submission file types.
var Filetypes = []string{"pdf", "xlsx", "xls", "xlsm", "doc", "docx", "ppt", "pptx"}

// filetypeRule is Filetypes as an ozzo In rule.
var filetypeRule = func() validation.InRule {
	values := make([]any, len(Filetypes))
	for i, ft := range Filetypes {
		values[i] = ft
	}

	return validation.In(values...)
}()

// FileSource is the content of an upload: either a filesystem path, which
// the operation opens and closes itself, or a caller-owned reader, which is
// never closed.
type FileSource struct {
	path   string
	reader io.Reader
}

// FromPath returns a FileSource that reads the file at path.
func FromPath(path string) FileSource {
	return FileSource{path: path}
}

// FromReader returns a FileSource that reads r. The caller keeps ownership.
func FromReader(r io.Reader) FileSource {
	return FileSource{reader: r}
}

// readAll resolves the source and reads its full content, closing the file
// only when it was opened here.
func (s FileSource) readAll() ([]byte, error) {
	if s.path == "" {
		if s.reader == nil {
			return nil, fmt.Errorf("mi: empty file source")
		}

		data, err := io.ReadAll(s.reader)
		if err != nil {
			return nil, fmt.Errorf("mi: reading upload content: %w", err)
		}

		return data, nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("mi: opening %s: %w", s.path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("mi: reading %s: %w", s.path, err)
	}

	return data, nil
}

// SubmitParams are the task submission parameters. MD5Checksum is filled
// in by SubmitTask.
type SubmitParams struct {
	Filetype    string `json:"filetype"`
	Filename    string `json:"filename,omitempty"`
	CompanyName string `json:"companyname,omitempty"`
	MD5Checksum string `json:"md5checksum,omitempty"`
}

// Validate checks the filetype against the accepted list.
func (p SubmitParams) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Filetype, validation.Required, filetypeRule),
	)
	if err != nil {
		return fmt.Errorf("%w %q: accepted values: %s", ErrInvalidFiletype, p.Filetype,
			strings.Join(Filetypes, ", "))
	}

	return nil
}

// SubmitTask validates params, uploads the file with an MD5 checksum, and
// returns the job id of the new task. Invalid filetypes fail before any
// I/O. When src is a path and no filename is given, the path is used as the
// filename.
func (c *Client) SubmitTask(ctx context.Context, src FileSource, params SubmitParams) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}

	if !c.session.Authenticated() {
		return "", ErrNotAuthenticated
	}

	if src.path != "" && params.Filename == "" {
		params.Filename = src.path
	}

	params.Filename = norm.NFC.String(params.Filename)
	params.CompanyName = norm.NFC.String(params.CompanyName)

	data, err := src.readAll()
	if err != nil {
		return "", err
	}

	params.MD5Checksum = ContentMD5(data)

	c.logger.Info("submitting task",
		slog.String("filetype", params.Filetype),
		slog.String("filename", params.Filename),
		slog.Int("size", len(data)),
	)

	var created submitTaskResponse
	if err := c.call(ctx, http.MethodPost, "/tasks", nil, params, &created); err != nil {
		return "", err
	}

	if created.URL == "" || created.JobID == "" {
		return "", fmt.Errorf("%w: submit response missing url or jobid", ErrUnexpected)
	}

	if err := c.upload(ctx, created.URL, data, params.MD5Checksum, ""); err != nil {
		return "", err
	}

	c.logger.Info("task submitted", slog.String("job_id", created.JobID))

	return created.JobID, nil
}

// upload PUTs data to a presigned URL with a Content-MD5 header.
// contentType is optional; presigned URLs may be signed without one.
func (c *Client) upload(ctx context.Context, presignedURL string, data []byte, checksum, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, presignedURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("mi: creating upload request: %w", err)
	}

	req.Header.Set("Content-MD5", checksum)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, body, err := c.doPresigned(ctx, req, "upload")
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("upload rejected", slog.Int("status", resp.StatusCode))

		return &UploadError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	c.logger.Debug("upload complete", slog.Int("size", len(data)))

	return nil
}
