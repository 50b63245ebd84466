package authcore

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/verification"
)

// spyAdapter records Verify calls and accepts a fixed token.
type spyAdapter struct {
	accept string
	calls  int
}

func (a *spyAdapter) Verify(_ verification.Account, token string) bool {
	a.calls++
	return token == a.accept
}

func (a *spyAdapter) CreateVerificationToken() (verification.Token, error) {
	return verification.Token{PlainText: a.accept, Digest: "spy:" + a.accept}, nil
}

func newTestVerification(store Store, sink EventSink, clock *fixedClock) *AccountVerification {
	v := NewAccountVerification(NewStoreVerificationProvider(store, clock.Now), sink)
	v.now = clock.Now
	v.AddAdapter(verification.MethodOTP, verification.OTPAdapter{})
	v.AddAdapter(verification.MethodWebURL, verification.LinkAdapter{})
	return v
}

func TestVerifyAlreadyVerified(t *testing.T) {
	account := &Account{ID: "u1", Verified: true}
	v := newTestVerification(newFakeStore(account), nil, newFixedClock())

	_, err := v.Verify(context.Background(), account, "123456")
	if !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified, got %v", err)
	}
	if StatusCode(err) != 403 {
		t.Fatalf("expected 403, got %d", StatusCode(err))
	}
}

func TestVerifyExpired(t *testing.T) {
	clock := newFixedClock()
	expired := clock.Now().Add(-time.Second)
	account := &Account{ID: "u1", VerificationExpiresAt: &expired}
	v := newTestVerification(newFakeStore(account), nil, clock)

	_, err := v.Verify(context.Background(), account, "123456")
	if !errors.Is(err, ErrVerificationExpired) || StatusCode(err) != 408 {
		t.Fatalf("expected 408 ErrVerificationExpired, got %v (%d)", err, StatusCode(err))
	}
}

func TestVerifyNoMatch(t *testing.T) {
	clock := newFixedClock()
	account := &Account{ID: "u1"}
	v := newTestVerification(newFakeStore(account), nil, clock)

	_, err := v.Verify(context.Background(), account, "000000")
	if !errors.Is(err, ErrCodeNotFound) || StatusCode(err) != 404 {
		t.Fatalf("expected 404 ErrCodeNotFound, got %v (%d)", err, StatusCode(err))
	}
}

func TestVerifyWithMethodInvokesOnlyThatAdapter(t *testing.T) {
	account := &Account{ID: "u1"}
	otp := &spyAdapter{accept: "abc"}
	link := &spyAdapter{accept: "abc"}

	v := NewAccountVerification(NewStoreVerificationProvider(newFakeStore(account), nil), nil)
	v.AddAdapter(verification.MethodOTP, otp)
	v.AddAdapter(verification.MethodWebURL, link)

	if _, err := v.Verify(context.Background(), account, "abc", WithMethod(verification.MethodWebURL)); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if otp.calls != 0 || link.calls != 1 {
		t.Fatalf("expected only weburl adapter, got otp=%d weburl=%d", otp.calls, link.calls)
	}
}

func TestVerifyUnknownMethodIsNotFound(t *testing.T) {
	account := &Account{ID: "u1"}
	v := newTestVerification(newFakeStore(account), nil, newFixedClock())

	_, err := v.Verify(context.Background(), account, "x", WithMethod("carrier-pigeon"))
	if !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestVerifyTriesAdaptersInOrder(t *testing.T) {
	account := &Account{ID: "u1"}
	first := &spyAdapter{accept: "one"}
	second := &spyAdapter{accept: "two"}
	sink := &recordingSink{}

	v := NewAccountVerification(NewStoreVerificationProvider(newFakeStore(account), nil), sink)
	v.AddAdapter("first", first)
	v.AddAdapter("second", second)

	if _, err := v.Verify(context.Background(), account, "two"); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("expected both adapters tried once, got %d/%d", first.calls, second.calls)
	}

	events := sink.all()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	verified := events[0].(AccountVerifiedEvent)
	if verified.Method != "second" || verified.Account.ID != "u1" {
		t.Fatalf("unexpected event %+v", verified)
	}
}

func TestAddAdapterReplacesInPlace(t *testing.T) {
	v := NewAccountVerification(nil, nil)
	v.AddAdapter("a", &spyAdapter{}).AddAdapter("b", &spyAdapter{}).AddAdapter("a", &spyAdapter{})

	methods := v.Methods()
	if len(methods) != 2 || methods[0] != "a" || methods[1] != "b" {
		t.Fatalf("unexpected methods %v", methods)
	}
}

func TestOTPIssueAndVerifyRoundTrip(t *testing.T) {
	clock := newFixedClock()
	account := &Account{ID: "u1", Contact: "user@example.com", FailedAttempts: 2}
	store := channelStore{newFakeStore(account)}
	sink := &recordingSink{}
	v := newTestVerification(store, sink, clock)
	ctx := context.Background()

	token, err := v.Issue(ctx, account, verification.MethodOTP)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if len(token.PlainText) != 6 {
		t.Fatalf("expected 6-digit code, got %q", token.PlainText)
	}

	stored := store.account("u1")
	if stored.VerificationDigest == "" || stored.VerificationDigest == token.PlainText {
		t.Fatal("store must hold a digest of the code")
	}
	if want := clock.Now().Add(defaultVerificationTTL); !stored.VerificationExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, stored.VerificationExpiresAt)
	}

	events := sink.all()
	created, ok := events[0].(VerificationCodeCreatedEvent)
	if !ok || created.Code != token.PlainText || created.To != "user@example.com" {
		t.Fatalf("unexpected event %+v", events[0])
	}

	got, err := v.Verify(ctx, account, token.PlainText)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if got.(*Account) != account {
		t.Fatal("default result should be the account")
	}

	stored = store.account("u1")
	if !stored.Verified || stored.VerificationDigest != "" || stored.VerificationExpiresAt != nil || stored.FailedAttempts != 0 {
		t.Fatalf("unexpected stored state %+v", stored)
	}

	channels, _ := store.NotificationChannels(ctx, "u1")
	if len(channels) != 1 || channels[0].Kind != ChannelMail || !channels[0].Verified || !channels[0].Default {
		t.Fatalf("expected default verified mail channel, got %+v", channels)
	}

	if _, err := v.Verify(ctx, account, token.PlainText); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified on replay, got %v", err)
	}
}

func TestVerifyRegistersTextChannelForPhone(t *testing.T) {
	account := &Account{ID: "u1", Contact: "+15551234567"}
	store := channelStore{newFakeStore(account)}
	v := NewAccountVerification(NewStoreVerificationProvider(store, nil), nil)
	v.AddAdapter("spy", &spyAdapter{accept: "ok"})

	if _, err := v.Verify(context.Background(), account, "ok"); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	channels, _ := store.NotificationChannels(context.Background(), "u1")
	if len(channels) != 1 || channels[0].Kind != ChannelText {
		t.Fatalf("expected text channel, got %+v", channels)
	}
}

func TestVerifyOnSuccessResult(t *testing.T) {
	account := &Account{ID: "u1"}
	v := NewAccountVerification(NewStoreVerificationProvider(newFakeStore(account), nil), nil)
	v.AddAdapter("spy", &spyAdapter{accept: "ok"})

	got, err := v.Verify(context.Background(), account, "ok", WithOnSuccess(func(a *Account) (any, error) {
		return "welcome " + a.ID, nil
	}))
	if err != nil || got != "welcome u1" {
		t.Fatalf("unexpected result %v (%v)", got, err)
	}
}

func TestIssueErrors(t *testing.T) {
	ctx := context.Background()
	v := newTestVerification(newFakeStore(), nil, newFixedClock())

	if _, err := v.Issue(ctx, &Account{ID: "u1"}, "fax"); !errors.Is(err, ErrUnknownVerificationMethod) {
		t.Fatalf("expected ErrUnknownVerificationMethod, got %v", err)
	}
	if _, err := v.Issue(ctx, &Account{ID: "u1", Verified: true}, verification.MethodOTP); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified, got %v", err)
	}
	if _, err := v.Issue(ctx, nil, verification.MethodOTP); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestIssueSignedLink(t *testing.T) {
	clock := newFixedClock()
	account := &Account{ID: "u1", Contact: "user@example.com"}
	store := newFakeStore(account)
	sink := &recordingSink{}

	signer, err := verification.NewLinkSigner(verification.LinkSignerConfig{
		BaseURL: "https://example.com/verify",
		Key:     []byte(strings.Repeat("k", 32)),
		Now:     clock.Now,
	})
	if err != nil {
		t.Fatalf("NewLinkSigner failed: %v", err)
	}

	v := newTestVerification(store, sink, clock)
	v.signer = signer

	token, err := v.Issue(context.Background(), account, verification.MethodWebURL)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	event := sink.all()[0].(VerificationURLCreatedEvent)
	u, err := url.Parse(event.URL)
	if err != nil || u.Host != "example.com" {
		t.Fatalf("unexpected URL %q (%v)", event.URL, err)
	}

	claims, err := signer.Parse(event.URL)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.AccountID != "u1" || claims.Token != token.PlainText {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestIsEmailAddress(t *testing.T) {
	for contact, want := range map[string]bool{
		"user@example.com":           true,
		"+15551234567":               false,
		"User <user@example.com>":    false,
		"not an address":             false,
		"first.last@sub.example.org": true,
	} {
		if got := isEmailAddress(contact); got != want {
			t.Errorf("isEmailAddress(%q) = %v, want %v", contact, got, want)
		}
	}
}

// countingLimiter allows max attempts per key.
type countingLimiter struct {
	max    int
	counts map[string]int
	resets []string
}

func newCountingLimiter(max int) *countingLimiter {
	return &countingLimiter{max: max, counts: map[string]int{}}
}

func (l *countingLimiter) Allow(_ context.Context, key string) error {
	l.counts[key]++
	if l.counts[key] > l.max {
		return ErrRateLimited
	}
	return nil
}

func (l *countingLimiter) Reset(_ context.Context, key string) error {
	delete(l.counts, key)
	l.resets = append(l.resets, key)
	return nil
}

func TestVerifyRateLimitedBeforeAdapters(t *testing.T) {
	account := &Account{ID: "u1"}
	spy := &spyAdapter{accept: "right"}
	v := NewAccountVerification(NewStoreVerificationProvider(newFakeStore(account), nil), nil)
	v.AddAdapter("spy", spy)
	v.limiter = newCountingLimiter(2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := v.Verify(ctx, account, "wrong"); StatusCode(err) != 404 {
			t.Fatalf("attempt %d: expected 404, got %v", i+1, err)
		}
	}

	_, err := v.Verify(ctx, account, "right")
	if !errors.Is(err, ErrRateLimited) || StatusCode(err) != 429 {
		t.Fatalf("expected 429 ErrRateLimited, got %v (%d)", err, StatusCode(err))
	}
	if spy.calls != 2 {
		t.Fatalf("adapter should not run once limited, calls = %d", spy.calls)
	}
}

func TestVerifySuccessResetsLimiter(t *testing.T) {
	account := &Account{ID: "u1"}
	store := newFakeStore(account)
	v := NewAccountVerification(NewStoreVerificationProvider(store, nil), nil)
	v.AddAdapter("spy", &spyAdapter{accept: "right"})
	limiter := newCountingLimiter(3)
	v.limiter = limiter

	if _, err := v.Verify(context.Background(), account, "right"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(limiter.resets) != 1 || limiter.resets[0] != "verify:u1" {
		t.Fatalf("resets = %v", limiter.resets)
	}
}

func TestIssueRateLimited(t *testing.T) {
	clock := newFixedClock()
	account := &Account{ID: "u1", Contact: "user@example.com"}
	store := newFakeStore(account)
	v := newTestVerification(store, nil, clock)
	v.limiter = newCountingLimiter(1)
	ctx := context.Background()

	if _, err := v.Issue(ctx, account, verification.MethodOTP); err != nil {
		t.Fatalf("first Issue: %v", err)
	}
	before := store.updateCount()

	_, err := v.Issue(ctx, account, verification.MethodOTP)
	if StatusCode(err) != 429 {
		t.Fatalf("expected 429, got %v", err)
	}
	if store.updateCount() != before {
		t.Fatal("limited Issue must not write a new token")
	}
}
