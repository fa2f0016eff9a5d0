package mi

import (
	"context"
	"time"
)

// CredentialProvider exchanges user credentials for an identity token and
// federates that token into temporary signing credentials. Defined at the
// consumer; internal/cognito provides the AWS Cognito implementation.
type CredentialProvider interface {
	GetTokens(ctx context.Context, login Login) (Tokens, error)
	GetFederatedID(ctx context.Context, idToken string) (string, error)
	GetFederatedCredentials(ctx context.Context, userID, idToken string) (FederatedCredentials, error)
}

// Login is either a username/password pair or a refresh token. Build one
// with UsernamePassword or RefreshToken.
type Login struct {
	Username     string
	Password     string
	RefreshToken string
}

// UsernamePassword returns a Login for the password flow.
func UsernamePassword(username, password string) Login {
	return Login{Username: username, Password: password}
}

// RefreshToken returns a Login for the refresh-token flow.
func RefreshToken(token string) Login {
	return Login{RefreshToken: token}
}

// IsRefresh reports whether the login uses a refresh token.
func (l Login) IsRefresh() bool {
	return l.RefreshToken != ""
}

// Tokens is the result of an identity exchange. RefreshToken is empty when
// the provider did not issue a new one (refresh-token flow).
type Tokens struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
}

// FederatedCredentials are the temporary credentials used to sign API
// requests.
type FederatedCredentials struct {
	AccessKeyID  string
	SecretKey    string
	SessionToken string
	Expiration   time.Time
}
