package authcore

import "context"

// Event names returned by Event.EventName.
const (
	EventLoginAttempt            = "login_attempt"
	EventLogout                  = "logout"
	EventVerificationCodeCreated = "verification_code_created"
	EventVerificationURLCreated  = "verification_url_created"
	EventAccountVerified         = "account_verified"
)

// Event is a value dispatched to an EventSink.
type Event interface {
	EventName() string
}

// LoginAttemptEvent is dispatched once per password or credentials attempt.
type LoginAttemptEvent struct {
	Identifier string
	Succeeded  bool
}

func (LoginAttemptEvent) EventName() string { return EventLoginAttempt }

// LogoutEvent is dispatched once per logout, after the logout handler ran.
type LogoutEvent struct {
	Identity *Identity
}

func (LogoutEvent) EventName() string { return EventLogout }

// VerificationCodeCreatedEvent carries a one-time code for out-of-band delivery.
type VerificationCodeCreatedEvent struct {
	AccountID string
	To        string
	Code      string
}

func (VerificationCodeCreatedEvent) EventName() string { return EventVerificationCodeCreated }

// VerificationURLCreatedEvent carries a verification link for out-of-band delivery.
type VerificationURLCreatedEvent struct {
	AccountID string
	To        string
	URL       string
}

func (VerificationURLCreatedEvent) EventName() string { return EventVerificationURLCreated }

// AccountVerifiedEvent is dispatched after an account has been marked verified.
type AccountVerifiedEvent struct {
	Account *Account
	Method  string
}

func (AccountVerifiedEvent) EventName() string { return EventAccountVerified }

// EventSink receives events. Dispatch is fire-and-forget.
type EventSink interface {
	Dispatch(ctx context.Context, event Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, event Event)

func (f EventSinkFunc) Dispatch(ctx context.Context, event Event) {
	if f != nil {
		f(ctx, event)
	}
}

// NoOpEventSink drops every event.
type NoOpEventSink struct{}

func (NoOpEventSink) Dispatch(context.Context, Event) {}

type fanoutSink []EventSink

func (f fanoutSink) Dispatch(ctx context.Context, event Event) {
	for _, sink := range f {
		sink.Dispatch(ctx, event)
	}
}

func combineSinks(sinks ...EventSink) EventSink {
	out := make(fanoutSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return NoOpEventSink{}
	case 1:
		return out[0]
	}
	return out
}
