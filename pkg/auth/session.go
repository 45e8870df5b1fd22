package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/apex/log"
	"golang.org/x/oauth2"
)

var (
	// ErrUnauthenticated is returned when an authenticated call is attempted without a usable token.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrLoginFailed is returned when the provider reports an error or the code exchange fails.
	ErrLoginFailed = errors.New("login failed")
)

type State string

const (
	StateAnonymous      State = "anonymous"
	StatePending        State = "pending"
	StateAuthenticated  State = "authenticated"
	StateLoginCancelled State = "login_cancelled"
	StateLoginFailed    State = "login_failed"
)

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeCancelled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

// LoginResult is the resolution of one authorization attempt.
type LoginResult struct {
	Outcome Outcome
	Token   *oauth2.Token
	// Source refreshes Token once it expires. Optional.
	Source oauth2.TokenSource
	Err    error
}

// Session holds the bearer credential of the signed-in user in memory.
// OnAuthResult is its only writer.
type Session struct {
	mu        sync.RWMutex
	token     *oauth2.Token
	source    oauth2.TokenSource
	state     State
	lastErr   error
	listeners []func(State)
	logger    *log.Entry
}

func NewSession() *Session {
	return &Session{
		state:  StateAnonymous,
		logger: log.WithField("module", "auth-session"),
	}
}

// OnChange registers fn to be called whenever the state changes or a login
// replaces the token. Writes that leave both unchanged are not reported.
func (s *Session) OnChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Session) markPending() {
	s.setState(func() {
		if s.state != StateAuthenticated {
			s.state = StatePending
		}
	})
}

// OnAuthResult applies the result of a login attempt. Only a successful result
// replaces the token; a cancelled or failed one keeps any previous token.
func (s *Session) OnAuthResult(res LoginResult) {
	s.setState(func() {
		switch res.Outcome {
		case OutcomeSuccess:
			if res.Token == nil || res.Token.AccessToken == "" {
				s.state = StateLoginFailed
				s.lastErr = fmt.Errorf("%w: provider returned no access token", ErrLoginFailed)
				return
			}
			s.token = res.Token
			s.source = res.Source
			s.state = StateAuthenticated
			s.lastErr = nil
		case OutcomeCancelled:
			s.lastErr = res.Err
			if s.token == nil {
				s.state = StateLoginCancelled
			}
		default:
			s.lastErr = res.Err
			if s.lastErr == nil {
				s.lastErr = ErrLoginFailed
			}
			if s.token == nil {
				s.state = StateLoginFailed
			}
		}
	})
	s.logger.WithField("outcome", res.Outcome.String()).Info("login attempt resolved")
}

func (s *Session) setState(update func()) {
	s.mu.Lock()
	prevState, prevToken := s.state, s.token
	update()
	state := s.state
	if state == prevState && s.token == prevToken {
		s.mu.Unlock()
		return
	}
	listeners := make([]func(State), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}

// State returns the session state and the error of the last failed login, if any.
func (s *Session) State() (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.lastErr
}

// CurrentToken returns the access token if one is held and has not expired.
func (s *Session) CurrentToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil || !s.token.Valid() {
		return "", false
	}
	return s.token.AccessToken, true
}

// Token returns a usable access token, refreshing an expired one when the
// provider issued a refresh token.
func (s *Session) Token(ctx context.Context) (string, error) {
	if token, ok := s.CurrentToken(); ok {
		return token, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil {
		return "", ErrUnauthenticated
	}
	if s.token.Valid() {
		return s.token.AccessToken, nil
	}
	if s.source == nil {
		return "", fmt.Errorf("%w: access token expired", ErrUnauthenticated)
	}

	refreshed, err := s.source.Token()
	if err != nil {
		return "", fmt.Errorf("%w: refresh failed: %v", ErrUnauthenticated, err)
	}
	s.token = refreshed
	s.logger.Info("access token refreshed")
	return refreshed.AccessToken, nil
}
