package mi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

// signingService is the SigV4 service name for API Gateway.
const signingService = "execute-api"

// credentialSource is reported by aws.Credentials for diagnostics.
const credentialSource = "ScribeMiFederated"

// requestSigner signs API requests with the session's federated credentials.
type requestSigner struct {
	signer  *v4.Signer
	region  string
	nowFunc func() time.Time
}

func newRequestSigner(region string) *requestSigner {
	return &requestSigner{
		signer:  v4.NewSigner(),
		region:  region,
		nowFunc: time.Now,
	}
}

// sign adds the SigV4 Authorization, X-Amz-Date and X-Amz-Security-Token
// headers. body must be the exact bytes sent with the request.
func (s *requestSigner) sign(ctx context.Context, req *http.Request, body []byte, sess Session) error {
	sum := sha256.Sum256(body)

	creds := aws.Credentials{
		AccessKeyID:     sess.AccessKeyID,
		SecretAccessKey: sess.SecretKey,
		SessionToken:    sess.SessionToken,
		Source:          credentialSource,
		CanExpire:       true,
		Expires:         sess.Expiry,
	}

	if err := s.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]),
		signingService, s.region, s.nowFunc()); err != nil {
		return fmt.Errorf("mi: signing request: %w", err)
	}

	return nil
}
