package authcore

import (
	"context"
	"time"
)

// LockManager is the lock behavior CredentialProvider depends on.
// AccountLock is the standard implementation.
type LockManager interface {
	IsLocked(account *Account) (bool, error)
	Lock(ctx context.Context, account *Account) error
	RemoveLock(ctx context.Context, account *Account) error
	IncrementFailureAttempts(ctx context.Context, account *Account) error
}

// AccountLock decides lock state and mutates failure counters through the Store.
//
// Mutations are written through Store.UpdateByID and mirrored onto the
// passed account only after the store accepted them. Store errors are
// returned unchanged and never retried.
type AccountLock struct {
	store       Store
	maxAttempts int
	timeout     time.Duration
	now         func() time.Time
	metrics     *Metrics
}

// NewAccountLock builds an AccountLock. Zero config values fall back to the
// defaults (5 attempts, 60 minutes). now may be nil.
func NewAccountLock(store Store, cfg LockConfig, now func() time.Time) *AccountLock {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultLockTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &AccountLock{
		store:       store,
		maxAttempts: cfg.MaxAttempts,
		timeout:     cfg.Timeout,
		now:         now,
	}
}

// IsLocked reports whether account has an enabled, unexpired lock.
// An account without an expiry is never locked.
func (l *AccountLock) IsLocked(account *Account) (bool, error) {
	if account == nil {
		return false, ErrInvalidArgument
	}
	if account.LockExpiresAt == nil {
		return false, nil
	}

	expired := l.now().After(*account.LockExpiresAt)
	return account.LockEnabled && !expired, nil
}

// Lock engages a lock for the configured timeout and resets the counter.
func (l *AccountLock) Lock(ctx context.Context, account *Account) error {
	if account == nil {
		return ErrInvalidArgument
	}

	expiresAt := l.now().Add(l.timeout)
	err := l.store.UpdateByID(ctx, account.ID, Fields{
		FieldLockEnabled:   true,
		FieldLockExpiresAt: expiresAt,
		FieldLoginAttempts: 0,
	})
	if err != nil {
		return err
	}

	account.LockEnabled = true
	account.LockExpiresAt = &expiresAt
	account.FailedAttempts = 0
	l.metrics.Inc(MetricAccountLocked)
	return nil
}

// RemoveLock clears the lock and resets the counter.
func (l *AccountLock) RemoveLock(ctx context.Context, account *Account) error {
	if account == nil {
		return ErrInvalidArgument
	}

	wasLocked := account.LockEnabled
	err := l.store.UpdateByID(ctx, account.ID, Fields{
		FieldLockEnabled:   false,
		FieldLockExpiresAt: nil,
		FieldLoginAttempts: 0,
	})
	if err != nil {
		return err
	}

	account.LockEnabled = false
	account.LockExpiresAt = nil
	account.FailedAttempts = 0
	if wasLocked {
		l.metrics.Inc(MetricAccountUnlocked)
	}
	return nil
}

// IncrementFailureAttempts records one failure. The failure that brings the
// count to MaxAttempts engages the lock instead of being stored.
//
// When the store implements FailureCounter the increment is atomic, so
// concurrent failures on one account are never under-counted.
func (l *AccountLock) IncrementFailureAttempts(ctx context.Context, account *Account) error {
	if account == nil {
		return ErrInvalidArgument
	}

	if counter, ok := l.store.(FailureCounter); ok {
		next, err := counter.IncrementFailedAttempts(ctx, account.ID)
		if err != nil {
			return err
		}
		if next >= l.maxAttempts {
			return l.Lock(ctx, account)
		}
		account.FailedAttempts = next
		return nil
	}

	next := account.FailedAttempts + 1
	if next >= l.maxAttempts {
		return l.Lock(ctx, account)
	}

	if err := l.store.UpdateByID(ctx, account.ID, Fields{FieldLoginAttempts: next}); err != nil {
		return err
	}
	account.FailedAttempts = next
	return nil
}

// MaxAttempts returns the configured threshold.
func (l *AccountLock) MaxAttempts() int { return l.maxAttempts }
