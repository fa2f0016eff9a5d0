package mi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// archiveContentType is the content type presigned archive URLs are signed for.
const archiveContentType = "application/zip"

// ListArchives returns the archives uploaded by the caller.
func (c *Client) ListArchives(ctx context.Context) ([]Archive, error) {
	var resp listArchivesResponse
	if err := c.call(ctx, http.MethodGet, "/archives", nil, nil, &resp); err != nil {
		return nil, err
	}

	if resp.Archives == nil {
		resp.Archives = []Archive{}
	}

	return resp.Archives, nil
}

// UploadArchive uploads a zip archive and returns its stored name.
func (c *Client) UploadArchive(ctx context.Context, src FileSource) (string, error) {
	if !c.session.Authenticated() {
		return "", ErrNotAuthenticated
	}

	data, err := src.readAll()
	if err != nil {
		return "", err
	}

	var presigned string
	if err := c.call(ctx, http.MethodGet, "/archive", nil, nil, &presigned); err != nil {
		return "", err
	}

	if presigned == "" {
		return "", fmt.Errorf("%w: archive upload URL missing", ErrUnexpected)
	}

	if err := c.upload(ctx, presigned, data, ContentMD5(data), archiveContentType); err != nil {
		return "", err
	}

	name := archiveName(presigned)
	c.logger.Info("archive uploaded",
		slog.String("name", name),
		slog.Int("size", len(data)),
	)

	return name, nil
}

// DeleteArchive deletes an archive by name.
func (c *Client) DeleteArchive(ctx context.Context, name string) error {
	c.logger.Info("deleting archive", slog.String("name", name))

	return c.call(ctx, http.MethodDelete, "/archive", nil, deleteArchiveRequest{Key: name}, nil)
}

// archiveName derives the stored archive key from its presigned upload URL:
// the last path segment with the encoded colons of its timestamp restored.
func archiveName(presigned string) string {
	path, _, _ := strings.Cut(presigned, "?")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}

	return strings.ReplaceAll(path, "%3A", ":")
}
