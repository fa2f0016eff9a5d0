// Package mi provides a client for the Scribe MI API: session management
// with transparent credential refresh, SigV4-signed requests, task and
// archive operations, and MD5 integrity checks on presigned uploads and
// downloads.
package mi

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Use errors.Is(err, mi.ErrTaskNotFound) to check.
var (
	ErrNotAuthenticated     = errors.New("mi: not authenticated")
	ErrAuthenticationFailed = errors.New("mi: authentication failed")
	ErrTaskNotFound         = errors.New("mi: task not found")
	ErrInvalidFiletype      = errors.New("mi: invalid filetype")
	ErrIntegrity            = errors.New("mi: integrity check failed")
	ErrUnexpected           = errors.New("mi: unexpected error")
	ErrModelNotReady        = errors.New("mi: model is not ready for export")
	ErrUpload               = errors.New("mi: error uploading file")
	ErrNoJobIDs             = errors.New("mi: no job ids to consolidate")
	ErrWaitTimeout          = errors.New("mi: timed out waiting for task")
)

// errNilTask guards operations that take a *Task.
var errNilTask = fmt.Errorf("%w: nil task", ErrUnexpected)

// presignedExpiredHint is attached to 401/403 responses from presigned
// storage URLs.
const presignedExpiredHint = "presigned URL may have expired: call GetTask immediately before FetchModel"

// APIError wraps a sentinel error with the HTTP status code, request ID,
// and response body.
type APIError struct {
	StatusCode int
	RequestID  string
	Message    string
	Hint       string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%v (%d)", e.Err, e.StatusCode)

	if e.RequestID != "" {
		msg += " [request-id: " + e.RequestID + "]"
	}

	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}

	if e.Message != "" {
		msg += ": " + e.Message
	}

	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IntegrityError reports a downloaded body whose MD5 does not match the
// checksum declared by the storage endpoint. The caller should retry the
// whole fetch.
type IntegrityError struct {
	Expected string // base64 MD5 derived from the ETag ("" when absent)
	Actual   string // base64 MD5 of the received body
}

func (e *IntegrityError) Error() string {
	if e.Expected == "" {
		return fmt.Sprintf("%v: response carries no usable ETag (body md5 %s)", ErrIntegrity, e.Actual)
	}

	return fmt.Sprintf("%v: expected md5 %s, got %s", ErrIntegrity, e.Expected, e.Actual)
}

func (e *IntegrityError) Unwrap() error {
	return ErrIntegrity
}

// UploadError reports a non-200 response from a presigned upload URL.
type UploadError struct {
	StatusCode int
	Message    string
}

func (e *UploadError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%v: %d: %s", ErrUpload, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("%v: %d", ErrUpload, e.StatusCode)
}

func (e *UploadError) Unwrap() error {
	return ErrUpload
}

// classifyStatus maps a signed API response status to a sentinel error.
// Only 200 is success; the API never answers with other 2xx codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthenticationFailed
	case http.StatusNotFound:
		return ErrTaskNotFound
	default:
		return ErrUnexpected
	}
}

// classifyPresignedStatus maps a presigned storage response status. Storage
// 404s are not task lookups, so they stay unexpected.
func classifyPresignedStatus(code int) error {
	switch code {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthenticationFailed
	default:
		return ErrUnexpected
	}
}

// requestID extracts the gateway or storage request ID from a response.
func requestID(h http.Header) string {
	if id := h.Get("x-amzn-RequestId"); id != "" {
		return id
	}

	return h.Get("x-amz-request-id")
}
