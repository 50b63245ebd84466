package verification

import (
	"strconv"

	"github.com/MrEthical07/authcore/internal"
	"golang.org/x/crypto/bcrypt"
)

const (
	otpMin        = 100000
	otpMax        = 999999
	linkTokenSize = 16
)

// Token is a verification secret: the plaintext delivered out of band and
// the one-way digest persisted on the account.
type Token struct {
	PlainText string
	Digest    string
}

// String returns the plaintext so a Token can be embedded in templates.
func (t Token) String() string {
	return t.PlainText
}

// NewOTPToken returns a six-digit numeric code sampled uniformly over
// [100000, 999999].
func NewOTPToken() (Token, error) {
	n, err := internal.RandomInt(otpMin, otpMax)
	if err != nil {
		return Token{}, err
	}
	return newToken(strconv.FormatInt(n, 10))
}

// NewLinkToken returns a 16 character random token for signed links.
func NewLinkToken() (Token, error) {
	plain, err := internal.RandomString(linkTokenSize)
	if err != nil {
		return Token{}, err
	}
	return newToken(plain)
}

func newToken(plain string) (Token, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return Token{}, err
	}
	return Token{PlainText: plain, Digest: string(digest)}, nil
}

// Matches reports whether plain hashes to digest. Empty inputs never match.
func Matches(plain, digest string) bool {
	if plain == "" || digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}
