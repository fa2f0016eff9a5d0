package mi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// refreshKey is the singleflight key shared by every caller of one manager.
const refreshKey = "reauthenticate"

// Session is the full credential set of an authenticated user. It is
// replaced as a whole; callers only ever see copies.
type Session struct {
	IDToken         string
	RefreshToken    string
	AccessKeyID     string
	SecretKey       string
	SessionToken    string
	Expiry          time.Time
	FederatedUserID string
}

// expired reports whether the signing credentials are no longer usable.
func (s *Session) expired(now time.Time) bool {
	return !now.Before(s.Expiry)
}

// SessionManager owns one credential set and re-authenticates inline when
// the signing credentials expire. Safe for concurrent use: callers that
// observe an expired session share a single refresh.
type SessionManager struct {
	provider CredentialProvider
	logger   *slog.Logger

	mu      sync.RWMutex
	session *Session

	refresh singleflight.Group

	// nowFunc is injectable for deterministic expiry tests.
	nowFunc func() time.Time
}

// NewSessionManager creates an unauthenticated session manager.
func NewSessionManager(provider CredentialProvider, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &SessionManager{
		provider: provider,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// Authenticate exchanges a username/password pair or a refresh token for a
// new session. On failure the previous session, if any, is left untouched.
func (m *SessionManager) Authenticate(ctx context.Context, login Login) error {
	m.logger.Info("authenticating",
		slog.Bool("refresh_token", login.IsRefresh()),
	)

	tokens, err := m.provider.GetTokens(ctx, login)
	if err != nil {
		return fmt.Errorf("%w: exchanging credentials: %w", ErrAuthenticationFailed, err)
	}

	if tokens.IDToken == "" {
		m.logger.Warn("identity exchange returned no id token")
		return fmt.Errorf("%w: no identity token issued", ErrAuthenticationFailed)
	}

	userID, err := m.provider.GetFederatedID(ctx, tokens.IDToken)
	if err != nil {
		return fmt.Errorf("%w: resolving federated identity: %w", ErrAuthenticationFailed, err)
	}

	refreshToken := tokens.RefreshToken
	if refreshToken == "" {
		refreshToken = login.RefreshToken
	}

	sess, err := m.federate(ctx, userID, tokens.IDToken, refreshToken)
	if err != nil {
		return err
	}

	m.store(sess)

	m.logger.Info("authenticated",
		slog.String("user_id", userID),
		slog.Time("expiry", sess.Expiry),
	)

	return nil
}

// Reauthenticate uses the stored refresh token to obtain a fresh identity
// token and signing credentials for the same federated user.
func (m *SessionManager) Reauthenticate(ctx context.Context) error {
	m.mu.RLock()
	prev := m.session
	m.mu.RUnlock()

	if prev == nil {
		return fmt.Errorf("%w: must authenticate before reauthenticating", ErrNotAuthenticated)
	}

	if prev.RefreshToken == "" {
		return fmt.Errorf("%w: no refresh token", ErrAuthenticationFailed)
	}

	m.logger.Info("reauthenticating", slog.String("user_id", prev.FederatedUserID))

	tokens, err := m.provider.GetTokens(ctx, RefreshToken(prev.RefreshToken))
	if err != nil {
		m.logger.Warn("refresh token rejected", slog.String("error", err.Error()))
		return fmt.Errorf("%w: refreshing credentials: %w", ErrAuthenticationFailed, err)
	}

	if tokens.IDToken == "" {
		return fmt.Errorf("%w: no identity token issued on refresh", ErrAuthenticationFailed)
	}

	refreshToken := tokens.RefreshToken
	if refreshToken == "" {
		refreshToken = prev.RefreshToken
	}

	sess, err := m.federate(ctx, prev.FederatedUserID, tokens.IDToken, refreshToken)
	if err != nil {
		return err
	}

	m.store(sess)

	m.logger.Info("reauthenticated",
		slog.String("user_id", sess.FederatedUserID),
		slog.Time("expiry", sess.Expiry),
	)

	return nil
}

// federate derives signing credentials and assembles a complete session.
func (m *SessionManager) federate(ctx context.Context, userID, idToken, refreshToken string) (*Session, error) {
	creds, err := m.provider.GetFederatedCredentials(ctx, userID, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: obtaining federated credentials: %w", ErrAuthenticationFailed, err)
	}

	if creds.AccessKeyID == "" || creds.SecretKey == "" {
		return nil, fmt.Errorf("%w: federated credentials incomplete", ErrAuthenticationFailed)
	}

	return &Session{
		IDToken:         idToken,
		RefreshToken:    refreshToken,
		AccessKeyID:     creds.AccessKeyID,
		SecretKey:       creds.SecretKey,
		SessionToken:    creds.SessionToken,
		Expiry:          creds.Expiration,
		FederatedUserID: userID,
	}, nil
}

func (m *SessionManager) store(sess *Session) {
	m.mu.Lock()
	m.session = sess
	m.mu.Unlock()
}

// Authenticated reports whether a session is present. It does not check
// expiry.
func (m *SessionManager) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.session != nil && m.session.IDToken != ""
}

// Snapshot returns a copy of the current session.
func (m *SessionManager) Snapshot() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return Session{}, false
	}

	return *m.session, true
}

// current returns usable signing credentials, re-authenticating exactly
// once when they have expired.
func (m *SessionManager) current(ctx context.Context) (Session, error) {
	m.mu.RLock()
	sess := m.session
	m.mu.RUnlock()

	if sess == nil || sess.IDToken == "" {
		return Session{}, ErrNotAuthenticated
	}

	if !sess.expired(m.nowFunc()) {
		return *sess, nil
	}

	m.logger.Debug("signing credentials expired",
		slog.Time("expiry", sess.Expiry),
	)

	_, err, _ := m.refresh.Do(refreshKey, func() (any, error) {
		// A concurrent caller may have refreshed between our read and here.
		m.mu.RLock()
		latest := m.session
		m.mu.RUnlock()

		if latest != sess && !latest.expired(m.nowFunc()) {
			return nil, nil
		}

		// The refresh is shared, so one caller's cancellation must not fail
		// the others waiting on it.
		return nil, m.Reauthenticate(context.WithoutCancel(ctx))
	})
	if err != nil {
		return Session{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return *m.session, nil
}
