package authcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/verification"
)

// Engine owns the lock policy, credential provider, account verification,
// and sign-in driver registry built from one Config.
//
// Engine is safe for concurrent use. Per-client state lives in the
// AuthSession values returned by NewSession.
type Engine struct {
	config       Config
	store        Store
	hasher       Hasher
	lock         *AccountLock
	provider     *CredentialProvider
	verification *AccountVerification
	registry     *Registry
	audit        *audit.Dispatcher
	metrics      *Metrics
	events       EventSink
	logout       LogoutHandler
	logger       *slog.Logger
	signer       *verification.LinkSigner
	now          func() time.Time
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func (e *Engine) sessionAudit(sessionID string) EventSink {
	if e.audit == nil {
		return nil
	}
	return auditBridge{dispatcher: e.audit, sessionID: sessionID, now: e.now}
}

// NewSession returns an AuthSession with a fresh random session id.
func (e *Engine) NewSession() *AuthSession {
	id := uuid.NewString()
	s := NewAuthSession(e.provider, combineSinks(e.events, e.sessionAudit(id)), e.config.Session, e.logout)
	s.id = id
	s.metrics = e.metrics
	return s
}

// SignIn resolves driver by name and signs in with credentials.
func (e *Engine) SignIn(ctx context.Context, driver string, credentials Credentials, remember bool) (*Identity, error) {
	d, err := e.registry.Resolve(driver)
	if err != nil {
		return nil, err
	}
	return d.SignIn(ctx, credentials, remember)
}

// VerifyLink verifies an account from a signed verification URL.
func (e *Engine) VerifyLink(ctx context.Context, rawURL string, opts ...VerifyOption) (any, error) {
	if e.signer == nil {
		return nil, fmt.Errorf("%w: link signing not configured", ErrInvalidArgument)
	}

	claims, err := e.signer.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	account, err := e.store.FindByID(ctx, claims.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, verificationError(404, ErrCodeNotFound)
	}

	opts = append([]VerifyOption{WithMethod(verification.MethodWebURL)}, opts...)
	return e.verification.Verify(ctx, account, claims.Token, opts...)
}

// Unlock removes any lock on the account with the given id.
func (e *Engine) Unlock(ctx context.Context, id string) error {
	account, err := e.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if account == nil {
		return ErrAccountNotFound
	}
	return e.lock.RemoveLock(ctx, account)
}

// HashSecret hashes secret with the engine's hasher.
func (e *Engine) HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", ErrInvalidArgument
	}
	return e.hasher.Hash(secret)
}

func (e *Engine) Lock() *AccountLock {
	return e.lock
}

func (e *Engine) Provider() *CredentialProvider {
	return e.provider
}

func (e *Engine) Verification() *AccountVerification {
	return e.verification
}

func (e *Engine) Registry() *Registry {
	return e.registry
}

func (e *Engine) Config() Config {
	return e.config
}

func (e *Engine) LinkSigner() *verification.LinkSigner {
	return e.signer
}

func (e *Engine) Store() Store {
	return e.store
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports audit records dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// IsLockedError reports whether err is a lock rejection.
func IsLockedError(err error) bool {
	return errors.Is(err, ErrAccountLocked)
}
