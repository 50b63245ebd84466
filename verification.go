package authcore

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/authcore/verification"
)

// VerificationProvider owns the verification state of accounts.
type VerificationProvider interface {
	IsVerified(ctx context.Context, account *Account) (bool, error)
	VerificationExpired(ctx context.Context, account *Account) (bool, error)
	MarkAsVerified(ctx context.Context, account *Account) error
	// UpdateUser loads the user record behind account and passes it to mutate.
	// The record implements NotificationChannels when the backend supports it.
	UpdateUser(ctx context.Context, account *Account, mutate func(user any) error) error
	SetVerificationToken(ctx context.Context, account *Account, digest string, expiresAt time.Time) error
}

// ChannelKind is the delivery medium of a notification channel.
type ChannelKind string

const (
	ChannelMail ChannelKind = "mail"
	ChannelText ChannelKind = "text"
)

// NotificationChannel is a verified contact address.
type NotificationChannel struct {
	Kind     ChannelKind
	Address  string
	Verified bool
	Default  bool
}

// NotificationChannels is implemented by user records that track contact channels.
type NotificationChannels interface {
	AddMailChannel(ctx context.Context, address string, verified, isDefault bool) error
	AddTextMessageChannel(ctx context.Context, address string, verified, isDefault bool) error
}

// ChannelStore is an optional Store capability for persisting notification channels.
type ChannelStore interface {
	AddNotificationChannel(ctx context.Context, accountID string, channel NotificationChannel) error
	NotificationChannels(ctx context.Context, accountID string) ([]NotificationChannel, error)
}

// StoreVerificationProvider keeps verification state in Store fields.
type StoreVerificationProvider struct {
	store Store
	now   func() time.Time
}

func NewStoreVerificationProvider(store Store, now func() time.Time) *StoreVerificationProvider {
	if now == nil {
		now = time.Now
	}
	return &StoreVerificationProvider{store: store, now: now}
}

func (p *StoreVerificationProvider) IsVerified(_ context.Context, account *Account) (bool, error) {
	return account.Verified, nil
}

// VerificationExpired is false while no expiry is set.
func (p *StoreVerificationProvider) VerificationExpired(_ context.Context, account *Account) (bool, error) {
	if account.VerificationExpiresAt == nil {
		return false, nil
	}
	return p.now().After(*account.VerificationExpiresAt), nil
}

// MarkAsVerified sets the verified flag, clears the pending token, and
// resets the failure counter.
func (p *StoreVerificationProvider) MarkAsVerified(ctx context.Context, account *Account) error {
	err := p.store.UpdateByID(ctx, account.ID, Fields{
		FieldVerified:              true,
		FieldVerificationToken:     "",
		FieldVerificationExpiresAt: nil,
		FieldLoginAttempts:         0,
	})
	if err != nil {
		return err
	}

	account.Verified = true
	account.VerificationDigest = ""
	account.VerificationExpiresAt = nil
	account.FailedAttempts = 0
	return nil
}

func (p *StoreVerificationProvider) UpdateUser(ctx context.Context, account *Account, mutate func(user any) error) error {
	var user any = account
	if cs, ok := p.store.(ChannelStore); ok {
		user = &channelUser{Account: account, store: cs}
	}
	return mutate(user)
}

func (p *StoreVerificationProvider) SetVerificationToken(ctx context.Context, account *Account, digest string, expiresAt time.Time) error {
	err := p.store.UpdateByID(ctx, account.ID, Fields{
		FieldVerificationToken:     digest,
		FieldVerificationExpiresAt: expiresAt,
	})
	if err != nil {
		return err
	}

	account.VerificationDigest = digest
	account.VerificationExpiresAt = &expiresAt
	return nil
}

// channelUser is the user record handed to UpdateUser mutators when the
// store can persist channels.
type channelUser struct {
	*Account
	store ChannelStore
}

func (u *channelUser) AddMailChannel(ctx context.Context, address string, verified, isDefault bool) error {
	return u.store.AddNotificationChannel(ctx, u.ID, NotificationChannel{
		Kind: ChannelMail, Address: address, Verified: verified, Default: isDefault,
	})
}

func (u *channelUser) AddTextMessageChannel(ctx context.Context, address string, verified, isDefault bool) error {
	return u.store.AddNotificationChannel(ctx, u.ID, NotificationChannel{
		Kind: ChannelText, Address: address, Verified: verified, Default: isDefault,
	})
}

// VerifyOption customizes a single Verify call.
type VerifyOption func(*verifyOptions)

type verifyOptions struct {
	method    string
	onSuccess func(*Account) (any, error)
}

// WithMethod restricts verification to the adapter registered under method.
func WithMethod(method string) VerifyOption {
	return func(o *verifyOptions) { o.method = method }
}

// WithOnSuccess sets the value Verify returns after a successful verification.
func WithOnSuccess(fn func(*Account) (any, error)) VerifyOption {
	return func(o *verifyOptions) { o.onSuccess = fn }
}

// AttemptLimiter bounds attempts per key within a window. Allow returns an
// error wrapping ErrRateLimited once the budget for key is spent.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

// AccountVerification verifies new accounts against registered adapters.
type AccountVerification struct {
	provider VerificationProvider
	events   EventSink
	signer   *verification.LinkSigner
	ttl      time.Duration
	now      func() time.Time
	metrics  *Metrics
	limiter  AttemptLimiter

	mu       sync.RWMutex
	methods  []string
	adapters map[string]verification.Adapter
}

// NewAccountVerification builds an AccountVerification without adapters.
func NewAccountVerification(provider VerificationProvider, events EventSink) *AccountVerification {
	if events == nil {
		events = NoOpEventSink{}
	}
	return &AccountVerification{
		provider: provider,
		events:   events,
		ttl:      defaultVerificationTTL,
		now:      time.Now,
		adapters: map[string]verification.Adapter{},
	}
}

// AddAdapter registers adapter under method. Re-registering a method
// replaces the adapter but keeps its original position in the iteration order.
func (v *AccountVerification) AddAdapter(method string, adapter verification.Adapter) *AccountVerification {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.adapters[method]; !exists {
		v.methods = append(v.methods, method)
	}
	v.adapters[method] = adapter
	return v
}

// Methods returns registered method names in registration order.
func (v *AccountVerification) Methods() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, len(v.methods))
	copy(out, v.methods)
	return out
}

// Verify checks token for account.
//
// It fails with ErrAlreadyVerified (403) for verified accounts and
// ErrVerificationExpired (408) once the window has passed. With WithMethod
// only that adapter is consulted, and an unknown method counts as a
// mismatch; otherwise adapters are tried in registration order and the
// first match wins. No match fails with ErrCodeNotFound (404). A
// configured AttemptLimiter rejects excess attempts with ErrRateLimited (429)
// before any adapter runs.
//
// On success the account is marked verified, its contact is registered as a
// default verified channel when the user record supports channels, and the
// WithOnSuccess result (default: the account) is returned.
func (v *AccountVerification) Verify(ctx context.Context, account *Account, token string, opts ...VerifyOption) (any, error) {
	if account == nil {
		return nil, ErrInvalidArgument
	}

	o := verifyOptions{
		onSuccess: func(a *Account) (any, error) { return a, nil },
	}
	for _, opt := range opts {
		opt(&o)
	}

	verified, err := v.provider.IsVerified(ctx, account)
	if err != nil {
		return nil, err
	}
	if verified {
		return nil, verificationError(403, ErrAlreadyVerified)
	}

	expired, err := v.provider.VerificationExpired(ctx, account)
	if err != nil {
		return nil, err
	}
	if expired {
		v.metrics.Inc(MetricVerificationFailure)
		return nil, verificationError(408, ErrVerificationExpired)
	}

	if err := v.allow(ctx, "verify:"+account.ID); err != nil {
		return nil, err
	}

	method, ok := v.match(account, token, o.method)
	if !ok {
		v.metrics.Inc(MetricVerificationFailure)
		return nil, verificationError(404, ErrCodeNotFound)
	}

	if err := v.provider.MarkAsVerified(ctx, account); err != nil {
		return nil, err
	}

	err = v.provider.UpdateUser(ctx, account, func(user any) error {
		channels, ok := user.(NotificationChannels)
		if !ok || account.Contact == "" {
			return nil
		}
		if isEmailAddress(account.Contact) {
			return channels.AddMailChannel(ctx, account.Contact, true, true)
		}
		return channels.AddTextMessageChannel(ctx, account.Contact, true, true)
	})
	if err != nil {
		return nil, err
	}

	if v.limiter != nil {
		// The account is already verified; a stale counter only expires later.
		_ = v.limiter.Reset(ctx, "verify:"+account.ID)
	}

	v.metrics.Inc(MetricVerificationSuccess)
	v.events.Dispatch(ctx, AccountVerifiedEvent{Account: account, Method: method})

	return o.onSuccess(account)
}

func (v *AccountVerification) allow(ctx context.Context, key string) error {
	if v.limiter == nil {
		return nil
	}
	err := v.limiter.Allow(ctx, key)
	if errors.Is(err, ErrRateLimited) {
		v.metrics.Inc(MetricVerificationFailure)
		return verificationError(429, err)
	}
	return err
}

func (v *AccountVerification) match(account *Account, token, method string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if method != "" {
		adapter, ok := v.adapters[method]
		if !ok {
			return "", false
		}
		return method, adapter.Verify(account, token)
	}

	for _, name := range v.methods {
		if v.adapters[name].Verify(account, token) {
			return name, true
		}
	}
	return "", false
}

// Issue creates a token through the method's adapter, stores its digest
// with a fresh expiry, and dispatches the plaintext for delivery: a
// VerificationURLCreatedEvent for "weburl" (signed when a link signer is
// configured), a VerificationCodeCreatedEvent otherwise.
func (v *AccountVerification) Issue(ctx context.Context, account *Account, method string) (verification.Token, error) {
	if account == nil {
		return verification.Token{}, ErrInvalidArgument
	}

	v.mu.RLock()
	adapter, ok := v.adapters[method]
	v.mu.RUnlock()
	if !ok {
		return verification.Token{}, ErrUnknownVerificationMethod
	}

	verified, err := v.provider.IsVerified(ctx, account)
	if err != nil {
		return verification.Token{}, err
	}
	if verified {
		return verification.Token{}, verificationError(403, ErrAlreadyVerified)
	}

	if err := v.allow(ctx, "issue:"+account.ID); err != nil {
		return verification.Token{}, err
	}

	token, err := adapter.CreateVerificationToken()
	if err != nil {
		return verification.Token{}, err
	}

	expiresAt := v.now().Add(v.ttl)
	if err := v.provider.SetVerificationToken(ctx, account, token.Digest, expiresAt); err != nil {
		return verification.Token{}, err
	}

	if method == verification.MethodWebURL {
		link := token.PlainText
		if v.signer != nil {
			link, err = v.signer.Sign(account.ID, token.PlainText, expiresAt)
			if err != nil {
				return verification.Token{}, err
			}
		}
		v.events.Dispatch(ctx, VerificationURLCreatedEvent{AccountID: account.ID, To: account.Contact, URL: link})
	} else {
		v.events.Dispatch(ctx, VerificationCodeCreatedEvent{AccountID: account.ID, To: account.Contact, Code: token.PlainText})
	}

	v.metrics.Inc(MetricVerificationIssued)
	return token, nil
}

func isEmailAddress(contact string) bool {
	addr, err := mail.ParseAddress(contact)
	if err != nil {
		return false
	}
	// ParseAddress accepts "Name <a@b>"; only a bare address counts.
	return addr.Address == strings.TrimSpace(contact)
}
