package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/ScribeLabsAI/ScribeMi/internal/cognito"
	"github.com/ScribeLabsAI/ScribeMi/internal/config"
	"github.com/ScribeLabsAI/ScribeMi/internal/journal"
	"github.com/ScribeLabsAI/ScribeMi/internal/mi"
	"github.com/ScribeLabsAI/ScribeMi/internal/tokenfile"
)

// newCredentialProvider builds the Cognito-backed provider. Tests replace
// it with an in-memory fake.
var newCredentialProvider = func(
	ctx context.Context, cfg *config.Config, httpClient *http.Client, logger *slog.Logger,
) (mi.CredentialProvider, error) {
	return cognito.New(ctx, cognito.Config{
		Region:         cfg.API.Region,
		ClientID:       cfg.Auth.ClientID,
		UserPoolID:     cfg.Auth.UserPoolID,
		IdentityPoolID: cfg.Auth.IdentityPoolID,
	}, httpClient, logger)
}

// cliSession bundles the API client with the session that signs its
// requests, for commands that talk to the MI API.
type cliSession struct {
	Client    *mi.Client
	Session   *mi.SessionManager
	tokenPath string
	logger    *slog.Logger
}

// newSessionManager creates an unauthenticated session manager for the
// resolved config.
func newSessionManager(ctx context.Context, httpClient *http.Client, logger *slog.Logger) (*mi.SessionManager, error) {
	provider, err := newCredentialProvider(ctx, resolvedCfg, httpClient, logger)
	if err != nil {
		return nil, fmt.Errorf("creating credential provider: %w", err)
	}

	return mi.NewSessionManager(provider, logger), nil
}

// newCLISession restores the saved session from its refresh token and
// returns a ready API client. Fails with mi.ErrNotAuthenticated when no
// session was saved.
func newCLISession(ctx context.Context, logger *slog.Logger) (*cliSession, error) {
	tokenPath := config.TokenPath()
	if tokenPath == "" {
		return nil, fmt.Errorf("cannot determine session file path")
	}

	tok, _, err := tokenfile.Load(tokenPath)
	if err != nil {
		return nil, err
	}

	if tok == nil {
		return nil, fmt.Errorf("%w: no saved session", mi.ErrNotAuthenticated)
	}

	httpClient := defaultHTTPClient()

	sm, err := newSessionManager(ctx, httpClient, logger)
	if err != nil {
		return nil, err
	}

	if err := sm.Authenticate(ctx, mi.RefreshToken(tok.RefreshToken)); err != nil {
		return nil, fmt.Errorf("restoring session: %w", err)
	}

	cs := &cliSession{
		Client:    mi.NewClient(resolvedCfg.API.URL, resolvedCfg.API.Region, httpClient, sm, logger),
		Session:   sm,
		tokenPath: tokenPath,
		logger:    logger,
	}

	// The identity token was just rotated; keep the file current. A failed
	// write only costs a refresh next time.
	if err := cs.persist(); err != nil {
		logger.Warn("could not update saved session", slog.String("error", err.Error()))
	}

	return cs, nil
}

// persist writes the current identity token, refresh token and expiry to
// the session file, keeping existing metadata.
func (cs *cliSession) persist() error {
	tok, meta, ok := sessionToken(cs.Session)
	if !ok {
		return mi.ErrNotAuthenticated
	}

	return tokenfile.UpdateToken(cs.tokenPath, tok, meta)
}

// sessionToken converts the current session into the on-disk token shape.
// Signing credentials are deliberately left out.
func sessionToken(sm *mi.SessionManager) (*oauth2.Token, map[string]string, bool) {
	s, ok := sm.Snapshot()
	if !ok {
		return nil, nil, false
	}

	tok := &oauth2.Token{
		AccessToken:  s.IDToken,
		RefreshToken: s.RefreshToken,
		TokenType:    tokenfile.TokenType,
		Expiry:       s.Expiry,
	}

	return tok, map[string]string{tokenfile.MetaUserID: s.FederatedUserID}, true
}

// openJournal opens the local submission journal.
func openJournal(ctx context.Context, logger *slog.Logger) (*journal.Journal, error) {
	path := config.JournalPath()
	if path == "" {
		return nil, fmt.Errorf("cannot determine journal path")
	}

	return journal.Open(ctx, path, logger)
}
