package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/password"
)

var errStoreDown = errors.New("store down")

// fakeStore is a map-backed Store that records UpdateByID calls.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	updates  []Fields
	channels map[string][]NotificationChannel

	findErr   error
	updateErr error
}

func newFakeStore(accounts ...*Account) *fakeStore {
	s := &fakeStore{
		accounts: map[string]*Account{},
		channels: map[string][]NotificationChannel{},
	}
	for _, a := range accounts {
		s.accounts[a.ID] = a
	}
	return s
}

func (s *fakeStore) copyOf(a *Account) *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.copyOf(s.accounts[id]), nil
}

func (s *fakeStore) FindByLogin(_ context.Context, login string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, a := range s.accounts {
		if a.Login == login {
			return s.copyOf(a), nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FindByCredentials(_ context.Context, credentials map[string]string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}

	for _, a := range s.accounts {
		matched := 0
		for key, value := range credentials {
			if IsSecretKey(key) {
				continue
			}
			attr, ok := LookupAttribute(key)
			if !ok {
				matched = -1
				break
			}
			var got string
			switch attr {
			case LookupID:
				got = a.ID
			case LookupLogin:
				got = a.Login
			case LookupContact:
				got = a.Contact
			}
			if got != value {
				matched = -1
				break
			}
			matched++
		}
		if matched > 0 {
			return s.copyOf(a), nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FindByRememberToken(_ context.Context, id, digest string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	a := s.accounts[id]
	if a == nil || a.RememberTokenDigest != digest {
		return nil, nil
	}
	return s.copyOf(a), nil
}

func (s *fakeStore) UpdateByID(_ context.Context, id string, fields Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates = append(s.updates, fields)
	a := s.accounts[id]
	if a == nil {
		return ErrAccountNotFound
	}
	return a.Apply(fields)
}

func (s *fakeStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

func (s *fakeStore) account(id string) Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.accounts[id]
}

// channelStore adds ChannelStore to fakeStore.
type channelStore struct {
	*fakeStore
}

func (s channelStore) AddNotificationChannel(_ context.Context, accountID string, channel NotificationChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[accountID] = append(s.channels[accountID], channel)
	return nil
}

func (s channelStore) NotificationChannels(_ context.Context, accountID string) ([]NotificationChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]NotificationChannel(nil), s.channels[accountID]...), nil
}

// counterStore adds FailureCounter to fakeStore.
type counterStore struct {
	*fakeStore
	increments int
}

func (s *counterStore) IncrementFailedAttempts(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[id]
	if a == nil {
		return 0, ErrAccountNotFound
	}
	s.increments++
	a.FailedAttempts++
	return a.FailedAttempts, nil
}

// spyLock counts LockManager calls and never locks.
type spyLock struct {
	locked     bool
	removes    int
	increments int
	locks      int
}

func (l *spyLock) IsLocked(account *Account) (bool, error) {
	if account == nil {
		return false, ErrInvalidArgument
	}
	return l.locked, nil
}

func (l *spyLock) Lock(context.Context, *Account) error {
	l.locks++
	return nil
}

func (l *spyLock) RemoveLock(context.Context, *Account) error {
	l.removes++
	return nil
}

func (l *spyLock) IncrementFailureAttempts(context.Context, *Account) error {
	l.increments++
	return nil
}

// recordingSink keeps every dispatched event.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Dispatch(_ context.Context, event Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recordingSink) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestHasher(t *testing.T) *password.Argon2 {
	t.Helper()

	h, err := password.NewArgon2(password.Config{
		Memory:      8192,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	return h
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

// newUser returns an active, unverified account whose secret is "PassW0rd".
func newUser(t *testing.T, h Hasher) *Account {
	t.Helper()

	digest, err := h.Hash("PassW0rd")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	return &Account{
		ID:           "u1",
		Login:        "user@example.com",
		DisplayName:  "User One",
		Contact:      "user@example.com",
		Active:       true,
		SecretDigest: digest,
	}
}
