package authcore

import (
	"context"
	"sync"

	"github.com/MrEthical07/authcore/internal"
)

// LogoutHandler performs the caller's logout side effect, such as clearing
// a cookie. It runs before the LogoutEvent is dispatched.
type LogoutHandler func(ctx context.Context, identity *Identity)

// AuthSession orchestrates login attempts and holds the current identity.
//
// One AuthSession serves one client session. Its methods may be called from
// multiple goroutines; the current identity is guarded by a mutex.
type AuthSession struct {
	id       string
	provider *CredentialProvider
	events   EventSink
	logout   LogoutHandler
	cfg      SessionConfig
	metrics  *Metrics

	mu      sync.RWMutex
	current *Identity
}

// NewAuthSession builds a session outside an Engine. events and logout may be nil.
func NewAuthSession(provider *CredentialProvider, events EventSink, cfg SessionConfig, logout LogoutHandler) *AuthSession {
	if events == nil {
		events = NoOpEventSink{}
	}
	if cfg.LoginField == "" {
		cfg.LoginField = defaultLoginField
	}
	if cfg.RememberTokenLength < defaultRememberTokenLength {
		cfg.RememberTokenLength = defaultRememberTokenLength
	}
	return &AuthSession{
		provider: provider,
		events:   events,
		logout:   logout,
		cfg:      cfg,
	}
}

// ID returns the session identifier used in audit records.
func (s *AuthSession) ID() string { return s.id }

// AuthenticateByLogin resolves login and validates password.
//
// An unknown login returns false without dispatching an event. Otherwise
// exactly one LoginAttemptEvent is dispatched with the result. A locked
// account returns a *LockedError; store and hasher errors are returned
// as-is and dispatch nothing.
func (s *AuthSession) AuthenticateByLogin(ctx context.Context, login, password string, remember bool) (bool, error) {
	identity, err := s.provider.FindByLogin(ctx, login)
	if err != nil {
		return false, err
	}
	if identity == nil {
		s.metrics.Inc(MetricLoginUnknownAccount)
		return false, nil
	}

	ok, err := s.provider.ValidateSecret(ctx, identity, password)
	if err != nil {
		return false, err
	}

	return s.finish(ctx, login, identity, ok, remember)
}

// AuthenticateByCredentials mirrors AuthenticateByLogin for a credentials
// map. The event identifier is the value under SessionConfig.LoginField.
// An empty map returns ErrInvalidArgument.
func (s *AuthSession) AuthenticateByCredentials(ctx context.Context, credentials map[string]string, remember bool) (bool, error) {
	if len(credentials) == 0 {
		return false, ErrInvalidArgument
	}

	identity, err := s.provider.FindByCredentials(ctx, credentials)
	if err != nil {
		return false, err
	}
	if identity == nil {
		s.metrics.Inc(MetricLoginUnknownAccount)
		return false, nil
	}

	ok, err := s.provider.ValidateCredentials(ctx, identity, credentials)
	if err != nil {
		return false, err
	}

	return s.finish(ctx, credentials[s.cfg.LoginField], identity, ok, remember)
}

func (s *AuthSession) finish(ctx context.Context, identifier string, identity *Identity, ok, remember bool) (bool, error) {
	s.events.Dispatch(ctx, LoginAttemptEvent{Identifier: identifier, Succeeded: ok})

	if !ok {
		s.metrics.Inc(MetricLoginFailure)
		return false, nil
	}

	if remember {
		var err error
		identity, err = s.issueRememberToken(ctx, identity)
		if err != nil {
			return false, err
		}
	}

	s.setCurrent(identity)
	s.metrics.Inc(MetricLoginSuccess)
	return true, nil
}

func (s *AuthSession) issueRememberToken(ctx context.Context, identity *Identity) (*Identity, error) {
	token, err := internal.RandomString(s.cfg.RememberTokenLength)
	if err != nil {
		return nil, err
	}

	digest := DigestRememberToken(token)
	if err := s.provider.UpdateRememberToken(ctx, identity, digest); err != nil {
		return nil, err
	}
	return identity.WithRememberToken(token, digest), nil
}

// AuthenticateViaToken signs in with a remember token. No event is
// dispatched unless SessionConfig.AuditRememberToken is set, in which case
// a LoginAttemptEvent keyed by id is dispatched for every resolved lookup.
func (s *AuthSession) AuthenticateViaToken(ctx context.Context, id, token string) (bool, error) {
	identity, err := s.provider.FindByToken(ctx, id, token)
	if err != nil {
		return false, err
	}

	ok := identity != nil
	if s.cfg.AuditRememberToken {
		s.events.Dispatch(ctx, LoginAttemptEvent{Identifier: id, Succeeded: ok})
	}
	if !ok {
		s.metrics.Inc(MetricRememberTokenFailure)
		return false, nil
	}

	s.setCurrent(identity)
	s.metrics.Inc(MetricRememberTokenSuccess)
	return true, nil
}

// Logout runs the logout handler and then dispatches a LogoutEvent. The
// current identity is left in place.
func (s *AuthSession) Logout(ctx context.Context, identity *Identity) error {
	if identity == nil {
		return ErrInvalidArgument
	}

	if s.logout != nil {
		s.logout(ctx, identity)
	}
	s.events.Dispatch(ctx, LogoutEvent{Identity: identity})
	s.metrics.Inc(MetricLogout)
	return nil
}

// CurrentUser returns the authenticated identity, or nil.
func (s *AuthSession) CurrentUser() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *AuthSession) setCurrent(identity *Identity) {
	s.mu.Lock()
	s.current = identity
	s.mu.Unlock()
}
