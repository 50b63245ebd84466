// Package memory is an in-process authcore.Store.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrEthical07/authcore"
)

// ErrDuplicateLogin is returned by Put when another account owns the login.
var ErrDuplicateLogin = errors.New("login already taken")

// Store keeps accounts in memory. All lookups return copies.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*authcore.Account
	logins   map[string]string
	channels map[string][]authcore.NotificationChannel
}

func New() *Store {
	return &Store{
		accounts: map[string]*authcore.Account{},
		logins:   map[string]string{},
		channels: map[string][]authcore.NotificationChannel{},
	}
}

// Put inserts or replaces an account.
func (s *Store) Put(account authcore.Account) error {
	if account.ID == "" || account.Login == "" {
		return fmt.Errorf("%w: account id and login required", authcore.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.logins[account.Login]; ok && owner != account.ID {
		return ErrDuplicateLogin
	}
	if prev, ok := s.accounts[account.ID]; ok && prev.Login != account.Login {
		delete(s.logins, prev.Login)
	}

	s.accounts[account.ID] = clone(&account)
	s.logins[account.Login] = account.ID
	return nil
}

func (s *Store) FindByID(_ context.Context, id string) (*authcore.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.accounts[id]), nil
}

func (s *Store) FindByLogin(_ context.Context, login string) (*authcore.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.accounts[s.logins[login]]), nil
}

// FindByCredentials returns the account matching every non-secret key.
// A map with an unknown key, or with only secret keys, matches nothing.
func (s *Store) FindByCredentials(_ context.Context, credentials map[string]string) (*authcore.Account, error) {
	query := map[string]string{}
	for key, value := range credentials {
		if authcore.IsSecretKey(key) {
			continue
		}
		attr, ok := authcore.LookupAttribute(key)
		if !ok {
			return nil, nil
		}
		query[attr] = value
	}
	if len(query) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, account := range s.accounts {
		if matches(account, query) {
			return clone(account), nil
		}
	}
	return nil, nil
}

func matches(account *authcore.Account, query map[string]string) bool {
	for attr, value := range query {
		var got string
		switch attr {
		case authcore.LookupID:
			got = account.ID
		case authcore.LookupLogin:
			got = account.Login
		case authcore.LookupContact:
			got = account.Contact
		}
		if got != value {
			return false
		}
	}
	return true
}

func (s *Store) FindByRememberToken(_ context.Context, id, tokenDigest string) (*authcore.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account := s.accounts[id]
	if account == nil || tokenDigest == "" || account.RememberTokenDigest != tokenDigest {
		return nil, nil
	}
	return clone(account), nil
}

// UpdateByID applies fields atomically: on error the account is unchanged.
func (s *Store) UpdateByID(_ context.Context, id string, fields authcore.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account := s.accounts[id]
	if account == nil {
		return authcore.ErrAccountNotFound
	}

	next := clone(account)
	if err := next.Apply(fields); err != nil {
		return err
	}
	s.accounts[id] = next
	return nil
}

func (s *Store) IncrementFailedAttempts(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account := s.accounts[id]
	if account == nil {
		return 0, authcore.ErrAccountNotFound
	}
	account.FailedAttempts++
	return account.FailedAttempts, nil
}

// AddNotificationChannel appends channel. A channel marked default clears
// the default flag on the account's other channels.
func (s *Store) AddNotificationChannel(_ context.Context, accountID string, channel authcore.NotificationChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accounts[accountID] == nil {
		return authcore.ErrAccountNotFound
	}

	existing := s.channels[accountID]
	if channel.Default {
		for i := range existing {
			existing[i].Default = false
		}
	}
	s.channels[accountID] = append(existing, channel)
	return nil
}

func (s *Store) NotificationChannels(_ context.Context, accountID string) ([]authcore.NotificationChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]authcore.NotificationChannel, len(s.channels[accountID]))
	copy(out, s.channels[accountID])
	return out, nil
}

func clone(account *authcore.Account) *authcore.Account {
	if account == nil {
		return nil
	}
	c := *account
	if account.LockExpiresAt != nil {
		t := *account.LockExpiresAt
		c.LockExpiresAt = &t
	}
	if account.VerificationExpiresAt != nil {
		t := *account.VerificationExpiresAt
		c.VerificationExpiresAt = &t
	}
	return &c
}
