package mi

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusOK, nil},
		{http.StatusUnauthorized, ErrAuthenticationFailed},
		{http.StatusForbidden, ErrAuthenticationFailed},
		{http.StatusNotFound, ErrTaskNotFound},
		{http.StatusBadRequest, ErrUnexpected},
		{http.StatusConflict, ErrUnexpected},
		{http.StatusInternalServerError, ErrUnexpected},
		{http.StatusBadGateway, ErrUnexpected},
		{http.StatusCreated, ErrUnexpected},
		{http.StatusNoContent, ErrUnexpected},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, classifyStatus(tt.code))
		})
	}
}

func TestClassifyPresignedStatus(t *testing.T) {
	assert.NoError(t, classifyPresignedStatus(http.StatusOK))
	assert.Equal(t, ErrAuthenticationFailed, classifyPresignedStatus(http.StatusForbidden))
	assert.Equal(t, ErrAuthenticationFailed, classifyPresignedStatus(http.StatusUnauthorized))
	assert.Equal(t, ErrUnexpected, classifyPresignedStatus(http.StatusNotFound))
	assert.Equal(t, ErrUnexpected, classifyPresignedStatus(http.StatusInternalServerError))
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{
		StatusCode: 404,
		RequestID:  "req-123",
		Message:    `{"message":"Not found"}`,
		Err:        ErrTaskNotFound,
	}

	assert.Equal(t, `mi: task not found (404) [request-id: req-123]: {"message":"Not found"}`, err.Error())
}

func TestAPIError_ErrorWithHint(t *testing.T) {
	err := &APIError{StatusCode: 403, Hint: presignedExpiredHint, Err: ErrAuthenticationFailed}

	assert.Contains(t, err.Error(), "(403)")
	assert.Contains(t, err.Error(), "presigned URL may have expired")
}

func TestAPIError_Unwrap(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &APIError{StatusCode: 401, Err: ErrAuthenticationFailed})

	assert.True(t, errors.Is(err, ErrAuthenticationFailed))
	assert.False(t, errors.Is(err, ErrTaskNotFound))

	var apiErr *APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 401, apiErr.StatusCode)
}

func TestIntegrityError(t *testing.T) {
	err := &IntegrityError{Expected: "abc=", Actual: "def="}
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.Contains(t, err.Error(), "expected md5 abc=, got def=")

	missing := &IntegrityError{Actual: "def="}
	assert.Contains(t, missing.Error(), "no usable ETag")
}

func TestUploadError(t *testing.T) {
	err := &UploadError{StatusCode: 400, Message: "<Error>BadDigest</Error>"}
	assert.ErrorIs(t, err, ErrUpload)
	assert.Equal(t, "mi: error uploading file: 400: <Error>BadDigest</Error>", err.Error())

	bare := &UploadError{StatusCode: 500}
	assert.Equal(t, "mi: error uploading file: 500", bare.Error())
}

func TestRequestID(t *testing.T) {
	h := http.Header{}
	assert.Empty(t, requestID(h))

	h.Set("x-amz-request-id", "s3-req")
	assert.Equal(t, "s3-req", requestID(h))

	h.Set("x-amzn-RequestId", "gw-req")
	assert.Equal(t, "gw-req", requestID(h))
}
