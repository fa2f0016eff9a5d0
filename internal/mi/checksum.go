package mi

import (
	"crypto/md5" //nolint:gosec // Content-MD5 and S3 ETags are defined as MD5
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// ContentMD5 returns the base64-encoded MD5 digest of data, the form used
// by the Content-MD5 header and the md5checksum submission field.
func ContentMD5(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec // integrity, not security
	return base64.StdEncoding.EncodeToString(sum[:])
}

// ChecksumFromETag converts a storage ETag (hex MD5, optionally quoted and
// weak-prefixed) into the base64 form returned by ContentMD5.
func ChecksumFromETag(etag string) (string, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(etag), "W/")
	clean = strings.Trim(clean, `"'`)

	if clean == "" {
		return "", fmt.Errorf("mi: empty ETag")
	}

	raw, err := hex.DecodeString(clean)
	if err != nil || len(raw) != md5.Size {
		return "", fmt.Errorf("mi: ETag %q is not an MD5 digest", clean)
	}

	return base64.StdEncoding.EncodeToString(raw), nil
}

// verifyETag checks body against the ETag declared by the storage endpoint.
func verifyETag(body []byte, etag string) error {
	actual := ContentMD5(body)

	expected, err := ChecksumFromETag(etag)
	if err != nil {
		return &IntegrityError{Actual: actual}
	}

	if expected != actual {
		return &IntegrityError{Expected: expected, Actual: actual}
	}

	return nil
}
