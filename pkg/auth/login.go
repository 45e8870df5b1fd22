package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"com.aviebrantz.smart-energy/pkg/config"
	"com.aviebrantz.smart-energy/pkg/notice"
	"github.com/apex/log"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// errorAccessDenied is the OAuth2 error code sent when the user declines consent.
const errorAccessDenied = "access_denied"

// Authenticator runs the authorization-code flow with PKCE and feeds the
// outcome into a Session.
type Authenticator struct {
	conf    *oauth2.Config
	session *Session
	notices notice.Poster

	mu      sync.Mutex
	pending map[string]string // state -> PKCE verifier
	logger  *log.Entry
}

func NewAuthenticator(cfg config.OAuthConfig, session *Session, notices notice.Poster) *Authenticator {
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
	}
	return &Authenticator{
		conf:    conf,
		session: session,
		notices: notices,
		pending: make(map[string]string),
		logger:  log.WithField("module", "auth"),
	}
}

// BeginLogin starts an interactive login and returns the provider URL the user
// has to visit. The result arrives later through Complete.
func (a *Authenticator) BeginLogin() (string, error) {
	state, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	a.mu.Lock()
	a.pending[state.String()] = verifier
	a.mu.Unlock()

	a.session.markPending()
	a.logger.WithField("state", state.String()).Info("login started")

	return a.conf.AuthCodeURL(state.String(), oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier)), nil
}

// Complete handles the provider redirect and resolves the login attempt.
// errorParam is the redirect's "error" query parameter, empty on success.
func (a *Authenticator) Complete(ctx context.Context, state, code, errorParam string) LoginResult {
	res := a.resolve(ctx, state, code, errorParam)
	a.session.OnAuthResult(res)

	switch res.Outcome {
	case OutcomeSuccess:
		a.notices.Post(notice.LevelInfo, "Logged in", "")
	case OutcomeCancelled:
		a.notices.Post(notice.LevelError, "Login cancelled", "")
	default:
		a.notices.Post(notice.LevelError, "Login failed", res.Err.Error())
	}
	return res
}

func (a *Authenticator) resolve(ctx context.Context, state, code, errorParam string) LoginResult {
	a.mu.Lock()
	verifier, ok := a.pending[state]
	delete(a.pending, state)
	a.mu.Unlock()

	if !ok {
		return LoginResult{Outcome: OutcomeFailed, Err: fmt.Errorf("%w: unknown state", ErrLoginFailed)}
	}
	if errorParam == errorAccessDenied {
		return LoginResult{Outcome: OutcomeCancelled, Err: errors.New("user denied access")}
	}
	if errorParam != "" {
		return LoginResult{Outcome: OutcomeFailed, Err: fmt.Errorf("%w: %s", ErrLoginFailed, errorParam)}
	}
	if code == "" {
		return LoginResult{Outcome: OutcomeFailed, Err: fmt.Errorf("%w: missing authorization code", ErrLoginFailed)}
	}

	token, err := a.conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		a.logger.Warnf("code exchange failed: %v", err)
		return LoginResult{Outcome: OutcomeFailed, Err: fmt.Errorf("%w: %v", ErrLoginFailed, err)}
	}

	var source oauth2.TokenSource
	if token.RefreshToken != "" {
		source = a.conf.TokenSource(context.Background(), token)
	}
	return LoginResult{Outcome: OutcomeSuccess, Token: token, Source: source}
}
