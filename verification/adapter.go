package verification

import "strings"

// Method names under which the built-in adapters are registered.
const (
	MethodOTP    = "otp"
	MethodWebURL = "weburl"
)

// Account is the view of an account an adapter needs.
type Account interface {
	VerificationTokenDigest() string
}

// Adapter implements one verification method.
type Adapter interface {
	Verify(account Account, token string) bool
	CreateVerificationToken() (Token, error)
}

// OTPAdapter verifies six-digit codes.
type OTPAdapter struct{}

func (OTPAdapter) Verify(account Account, token string) bool {
	if account == nil {
		return false
	}
	return Matches(strings.TrimSpace(token), account.VerificationTokenDigest())
}

func (OTPAdapter) CreateVerificationToken() (Token, error) {
	return NewOTPToken()
}

// LinkAdapter verifies random tokens carried in verification links.
type LinkAdapter struct{}

func (LinkAdapter) Verify(account Account, token string) bool {
	if account == nil {
		return false
	}
	return Matches(token, account.VerificationTokenDigest())
}

func (LinkAdapter) CreateVerificationToken() (Token, error) {
	return NewLinkToken()
}
