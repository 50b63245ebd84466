package authcore

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Persisted field names passed to Store.UpdateByID.
const (
	FieldLockEnabled           = "lock_enabled"
	FieldLockExpiresAt         = "lock_expires_at"
	FieldLoginAttempts         = "login_attempts"
	FieldRememberToken         = "remember_token"
	FieldPassword              = "password"
	FieldVerified              = "verified"
	FieldVerificationToken     = "verification_token"
	FieldVerificationExpiresAt = "verification_expires_at"
)

// Fields is a partial update keyed by the Field* names. A nil value for a
// timestamp field clears it.
type Fields map[string]any

// Account is the raw record owned by the store.
type Account struct {
	ID                    string
	Login                 string
	DisplayName           string
	Contact               string
	Active                bool
	SecretDigest          string
	LockEnabled           bool
	LockExpiresAt         *time.Time
	FailedAttempts        int
	RememberTokenDigest   string
	Verified              bool
	VerificationExpiresAt *time.Time
	VerificationDigest    string
}

// VerificationTokenDigest lets verification adapters read the pending digest.
func (a *Account) VerificationTokenDigest() string {
	if a == nil {
		return ""
	}
	return a.VerificationDigest
}

// Store is the persistence collaborator. Lookups that find nothing return
// (nil, nil); any other error is propagated unchanged by the core.
type Store interface {
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByLogin(ctx context.Context, login string) (*Account, error)
	FindByCredentials(ctx context.Context, credentials map[string]string) (*Account, error)
	FindByRememberToken(ctx context.Context, id string, tokenDigest string) (*Account, error)
	UpdateByID(ctx context.Context, id string, fields Fields) error
}

// FailureCounter is an optional Store capability for atomically incrementing
// the failed-attempt counter. It returns the post-increment value.
type FailureCounter interface {
	IncrementFailedAttempts(ctx context.Context, id string) (int, error)
}

// Hasher hashes and verifies account secrets.
type Hasher interface {
	Hash(secret string) (string, error)
	// Verify returns false with a nil error for an empty digest.
	Verify(secret, digest string) (bool, error)
	NeedsRehash(digest string) (bool, error)
}

// Identity is the authenticated projection of an Account. It is never
// mutated; WithRememberToken returns a copy.
type Identity struct {
	id                  string
	login               string
	displayName         string
	secretDigest        string
	rememberTokenDigest string
	rememberToken       string
}

// NewIdentity builds an identity from explicit values.
func NewIdentity(id, login, displayName, secretDigest, rememberTokenDigest string) *Identity {
	return &Identity{
		id:                  id,
		login:               login,
		displayName:         displayName,
		secretDigest:        secretDigest,
		rememberTokenDigest: rememberTokenDigest,
	}
}

func (i *Identity) ID() string                  { return i.id }
func (i *Identity) Login() string               { return i.login }
func (i *Identity) DisplayName() string         { return i.displayName }
func (i *Identity) SecretDigest() string        { return i.secretDigest }
func (i *Identity) RememberTokenDigest() string { return i.rememberTokenDigest }

// RememberToken returns the plaintext remember token issued during the
// current flow, or "" when none was issued.
func (i *Identity) RememberToken() string { return i.rememberToken }

// WithRememberToken returns a copy carrying a newly issued token.
func (i *Identity) WithRememberToken(plain, digest string) *Identity {
	next := *i
	next.rememberToken = plain
	next.rememberTokenDigest = digest
	return &next
}

// IdentityFactory wraps a raw account into an Identity.
type IdentityFactory func(account *Account) *Identity

// DefaultIdentityFactory projects the account's own fields.
func DefaultIdentityFactory(account *Account) *Identity {
	display := account.DisplayName
	if display == "" {
		display = account.Login
	}
	return NewIdentity(account.ID, account.Login, display, account.SecretDigest, account.RememberTokenDigest)
}

// Credentials is the input to a sign-in driver.
type Credentials struct {
	ID       string
	Login    string
	Password string
	Token    string
}

// Lookup attributes a credentials-map key can address.
const (
	LookupID      = "id"
	LookupLogin   = "login"
	LookupContact = "contact"
)

// LookupAttribute maps a non-secret credentials-map key to the account
// attribute it matches. Stores use it to implement FindByCredentials.
func LookupAttribute(key string) (string, bool) {
	switch strings.ToLower(key) {
	case "id", "user_id":
		return LookupID, true
	case "login", "username", "user_name", "email":
		return LookupLogin, true
	case "contact", "phone", "phone_number":
		return LookupContact, true
	}
	return "", false
}

// Apply copies fields onto the account. Unknown keys and mistyped values
// return ErrInvalidArgument and leave the account partially updated.
func (a *Account) Apply(fields Fields) error {
	for key, value := range fields {
		var ok bool
		switch key {
		case FieldLockEnabled:
			a.LockEnabled, ok = value.(bool)
		case FieldLockExpiresAt:
			a.LockExpiresAt, ok = timeField(value)
		case FieldLoginAttempts:
			a.FailedAttempts, ok = value.(int)
		case FieldRememberToken:
			a.RememberTokenDigest, ok = value.(string)
		case FieldPassword:
			a.SecretDigest, ok = value.(string)
		case FieldVerified:
			a.Verified, ok = value.(bool)
		case FieldVerificationToken:
			a.VerificationDigest, ok = value.(string)
		case FieldVerificationExpiresAt:
			a.VerificationExpiresAt, ok = timeField(value)
		default:
			return fmt.Errorf("%w: unknown field %q", ErrInvalidArgument, key)
		}
		if !ok {
			return fmt.Errorf("%w: field %q has type %T", ErrInvalidArgument, key, value)
		}
	}
	return nil
}

// TimeValue normalizes a timestamp field value. nil clears the field.
func TimeValue(value any) (*time.Time, bool) {
	return timeField(value)
}

func timeField(value any) (*time.Time, bool) {
	switch v := value.(type) {
	case nil:
		return nil, true
	case time.Time:
		t := v
		return &t, true
	case *time.Time:
		if v == nil {
			return nil, true
		}
		t := *v
		return &t, true
	}
	return nil, false
}
