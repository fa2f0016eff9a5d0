// Package cognito implements mi.CredentialProvider on top of an AWS Cognito
// user pool (identity tokens) and identity pool (federated signing
// credentials).
package cognito

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentity"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	idptypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/ScribeLabsAI/ScribeMi/internal/mi"
)

// Compile-time check.
var _ mi.CredentialProvider = (*Provider)(nil)

// ErrChallenge is returned when the user pool answers with an auth
// challenge (MFA, forced password change) instead of tokens.
var ErrChallenge = errors.New("cognito: authentication challenge not supported")

// Config identifies the Cognito resources backing the MI API.
type Config struct {
	Region         string
	ClientID       string
	UserPoolID     string
	IdentityPoolID string
}

// userPoolAPI is the subset of the user pool client used here.
type userPoolAPI interface {
	InitiateAuth(ctx context.Context, in *cognitoidentityprovider.InitiateAuthInput,
		opts ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.InitiateAuthOutput, error)
}

// identityPoolAPI is the subset of the identity pool client used here.
type identityPoolAPI interface {
	GetId(ctx context.Context, in *cognitoidentity.GetIdInput,
		opts ...func(*cognitoidentity.Options)) (*cognitoidentity.GetIdOutput, error)
	GetCredentialsForIdentity(ctx context.Context, in *cognitoidentity.GetCredentialsForIdentityInput,
		opts ...func(*cognitoidentity.Options)) (*cognitoidentity.GetCredentialsForIdentityOutput, error)
}

// Provider exchanges user pool logins for identity pool credentials.
type Provider struct {
	cfg          Config
	userPool     userPoolAPI
	identityPool identityPoolAPI
	logger       *slog.Logger
}

// New creates a Provider. Both Cognito APIs are called unsigned, so no AWS
// credentials are loaded from the environment.
func New(ctx context.Context, cfg Config, httpClient *http.Client, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}),
	}

	if httpClient != nil {
		opts = append(opts, awsconfig.WithHTTPClient(httpClient))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cognito: loading AWS config: %w", err)
	}

	return newProvider(cfg,
		cognitoidentityprovider.NewFromConfig(awsCfg),
		cognitoidentity.NewFromConfig(awsCfg),
		logger,
	), nil
}

func newProvider(cfg Config, userPool userPoolAPI, identityPool identityPoolAPI, logger *slog.Logger) *Provider {
	return &Provider{
		cfg:          cfg,
		userPool:     userPool,
		identityPool: identityPool,
		logger:       logger,
	}
}

// GetTokens runs USER_PASSWORD_AUTH or REFRESH_TOKEN_AUTH against the user
// pool app client.
func (p *Provider) GetTokens(ctx context.Context, login mi.Login) (mi.Tokens, error) {
	in := &cognitoidentityprovider.InitiateAuthInput{
		ClientId: aws.String(p.cfg.ClientID),
	}

	if login.IsRefresh() {
		in.AuthFlow = idptypes.AuthFlowTypeRefreshTokenAuth
		in.AuthParameters = map[string]string{"REFRESH_TOKEN": login.RefreshToken}
	} else {
		in.AuthFlow = idptypes.AuthFlowTypeUserPasswordAuth
		in.AuthParameters = map[string]string{
			"USERNAME": login.Username,
			"PASSWORD": login.Password,
		}
	}

	p.logger.Debug("initiating auth", slog.String("flow", string(in.AuthFlow)))

	out, err := p.userPool.InitiateAuth(ctx, in)
	if err != nil {
		return mi.Tokens{}, fmt.Errorf("cognito: initiate auth: %w", err)
	}

	if out.ChallengeName != "" {
		return mi.Tokens{}, fmt.Errorf("%w: %s", ErrChallenge, out.ChallengeName)
	}

	res := out.AuthenticationResult
	if res == nil {
		return mi.Tokens{}, errors.New("cognito: initiate auth returned no tokens")
	}

	return mi.Tokens{
		IDToken:      aws.ToString(res.IdToken),
		AccessToken:  aws.ToString(res.AccessToken),
		RefreshToken: aws.ToString(res.RefreshToken),
	}, nil
}

// GetFederatedID resolves the identity pool id of the user behind idToken.
func (p *Provider) GetFederatedID(ctx context.Context, idToken string) (string, error) {
	out, err := p.identityPool.GetId(ctx, &cognitoidentity.GetIdInput{
		IdentityPoolId: aws.String(p.cfg.IdentityPoolID),
		Logins:         p.logins(idToken),
	})
	if err != nil {
		return "", fmt.Errorf("cognito: get id: %w", err)
	}

	id := aws.ToString(out.IdentityId)
	if id == "" {
		return "", errors.New("cognito: get id returned no identity")
	}

	return id, nil
}

// GetFederatedCredentials obtains temporary signing credentials for userID.
func (p *Provider) GetFederatedCredentials(ctx context.Context, userID, idToken string) (mi.FederatedCredentials, error) {
	out, err := p.identityPool.GetCredentialsForIdentity(ctx, &cognitoidentity.GetCredentialsForIdentityInput{
		IdentityId: aws.String(userID),
		Logins:     p.logins(idToken),
	})
	if err != nil {
		return mi.FederatedCredentials{}, fmt.Errorf("cognito: get credentials: %w", err)
	}

	creds := out.Credentials
	if creds == nil {
		return mi.FederatedCredentials{}, errors.New("cognito: get credentials returned none")
	}

	return mi.FederatedCredentials{
		AccessKeyID:  aws.ToString(creds.AccessKeyId),
		SecretKey:    aws.ToString(creds.SecretKey),
		SessionToken: aws.ToString(creds.SessionToken),
		Expiration:   aws.ToTime(creds.Expiration),
	}, nil
}

// logins maps the user pool provider name to the identity token.
func (p *Provider) logins(idToken string) map[string]string {
	return map[string]string{ProviderName(p.cfg.Region, p.cfg.UserPoolID): idToken}
}

// ProviderName is the identity pool login key of a user pool.
func ProviderName(region, userPoolID string) string {
	return fmt.Sprintf("cognito-idp.%s.amazonaws.com/%s", region, userPoolID)
}
