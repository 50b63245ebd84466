package authcore

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/internal"
)

// IsSecretKey reports whether a credentials-map key names the secret.
// Stores use it to exclude the secret from lookups.
func IsSecretKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "password") || strings.Contains(k, "secret")
}

// DigestRememberToken returns the stored form of a remember token.
func DigestRememberToken(token string) string {
	return internal.DigestToken(token)
}

// CredentialProvider resolves identities from the store, gating every
// lookup on the account's active flag and lock state, and validates secrets.
//
// Lookups that find nothing, or find an inactive account, return (nil, nil).
// A locked account returns a *LockedError.
type CredentialProvider struct {
	store   Store
	hasher  Hasher
	lock    LockManager
	factory IdentityFactory

	upgradeOnLogin bool
	logger         *slog.Logger
	metrics        *Metrics
}

// NewCredentialProvider builds a provider. A nil factory uses DefaultIdentityFactory.
func NewCredentialProvider(store Store, hasher Hasher, lock LockManager, factory IdentityFactory) *CredentialProvider {
	if factory == nil {
		factory = DefaultIdentityFactory
	}
	return &CredentialProvider{
		store:   store,
		hasher:  hasher,
		lock:    lock,
		factory: factory,
		logger:  discardLogger(),
	}
}

func (p *CredentialProvider) FindByID(ctx context.Context, id string) (*Identity, error) {
	account, err := p.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.resolve(account)
}

func (p *CredentialProvider) FindByLogin(ctx context.Context, login string) (*Identity, error) {
	account, err := p.store.FindByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	return p.resolve(account)
}

// FindByCredentials passes credentials to the store unchanged.
func (p *CredentialProvider) FindByCredentials(ctx context.Context, credentials map[string]string) (*Identity, error) {
	account, err := p.store.FindByCredentials(ctx, credentials)
	if err != nil {
		return nil, err
	}
	return p.resolve(account)
}

// FindByToken resolves the account by id and remember token. A token that
// does not match the stored digest is "not found", not an error.
func (p *CredentialProvider) FindByToken(ctx context.Context, id, token string) (*Identity, error) {
	if token == "" {
		return nil, nil
	}

	digest := DigestRememberToken(token)
	account, err := p.store.FindByRememberToken(ctx, id, digest)
	if err != nil {
		return nil, err
	}

	identity, err := p.resolve(account)
	if err != nil || identity == nil {
		return nil, err
	}
	if !internal.EqualDigests(identity.RememberTokenDigest(), digest) {
		return nil, nil
	}
	return identity, nil
}

func (p *CredentialProvider) resolve(account *Account) (*Identity, error) {
	if account == nil || !account.Active {
		return nil, nil
	}

	locked, err := p.lock.IsLocked(account)
	if err != nil {
		return nil, err
	}
	if locked {
		p.metrics.Inc(MetricLoginLockedRejected)
		display := account.DisplayName
		if display == "" {
			display = account.Login
		}
		return nil, &LockedError{DisplayName: display}
	}

	return p.factory(account), nil
}

// ValidateSecret checks secret against the identity's digest. The current
// account is re-fetched by id, then exactly one of RemoveLock (match) or
// IncrementFailureAttempts (mismatch) is applied to it.
//
// Hasher and store errors are returned without lock side effects. If the
// account no longer exists the result is false.
func (p *CredentialProvider) ValidateSecret(ctx context.Context, identity *Identity, secret string) (bool, error) {
	if identity == nil {
		return false, ErrInvalidArgument
	}

	start := time.Now()
	ok, err := p.hasher.Verify(secret, identity.SecretDigest())
	p.metrics.Observe(MetricAuthLatency, time.Since(start))
	if err != nil {
		return false, err
	}

	account, err := p.store.FindByID(ctx, identity.ID())
	if err != nil {
		return false, err
	}
	if account == nil {
		return false, nil
	}

	if !ok {
		if err := p.lock.IncrementFailureAttempts(ctx, account); err != nil {
			return false, err
		}
		return false, nil
	}

	if err := p.lock.RemoveLock(ctx, account); err != nil {
		return false, err
	}
	p.rehash(ctx, account, secret)
	return true, nil
}

// ValidateCredentials validates the value of the first key, in sorted
// order, that names a secret. Without such a key it returns false and
// touches neither the hasher nor the lock.
func (p *CredentialProvider) ValidateCredentials(ctx context.Context, identity *Identity, credentials map[string]string) (bool, error) {
	key, ok := secretKey(credentials)
	if !ok {
		return false, nil
	}
	return p.ValidateSecret(ctx, identity, credentials[key])
}

// UpdateRememberToken stores tokenDigest as the identity's remember token.
func (p *CredentialProvider) UpdateRememberToken(ctx context.Context, identity *Identity, tokenDigest string) error {
	if identity == nil {
		return ErrInvalidArgument
	}
	return p.store.UpdateByID(ctx, identity.ID(), Fields{FieldRememberToken: tokenDigest})
}

// rehash upgrades a digest produced with weaker parameters. Failures are
// logged; the login already succeeded.
func (p *CredentialProvider) rehash(ctx context.Context, account *Account, secret string) {
	if !p.upgradeOnLogin || account.SecretDigest == "" {
		return
	}

	needs, err := p.hasher.NeedsRehash(account.SecretDigest)
	if err != nil {
		p.logger.WarnContext(ctx, "authcore: rehash check failed", slog.String("account_id", account.ID), slog.Any("error", err))
		return
	}
	if !needs {
		return
	}

	digest, err := p.hasher.Hash(secret)
	if err != nil {
		p.logger.WarnContext(ctx, "authcore: rehash failed", slog.String("account_id", account.ID), slog.Any("error", err))
		return
	}
	if err := p.store.UpdateByID(ctx, account.ID, Fields{FieldPassword: digest}); err != nil {
		p.logger.WarnContext(ctx, "authcore: rehash update failed", slog.String("account_id", account.ID), slog.Any("error", err))
		return
	}

	account.SecretDigest = digest
	p.metrics.Inc(MetricPasswordRehashed)
}

func secretKey(credentials map[string]string) (string, bool) {
	keys := make([]string, 0, len(credentials))
	for k := range credentials {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if IsSecretKey(k) {
			return k, true
		}
	}
	return "", false
}
