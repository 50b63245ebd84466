package verification

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultLinkParam is the query parameter carrying the signed claims.
const DefaultLinkParam = "signature"

// ErrInvalidURLSignature is returned when a verification link is missing,
// tampered with, or expired.
var ErrInvalidURLSignature = errors.New("invalid url signature")

// LinkClaims are the claims embedded in a signed verification link.
type LinkClaims struct {
	AccountID string `json:"aid"`
	Token     string `json:"tok"`
	jwt.RegisteredClaims
}

// LinkSignerConfig configures a LinkSigner.
type LinkSignerConfig struct {
	BaseURL string
	Key     []byte
	Issuer  string
	Param   string
	Now     func() time.Time
}

// LinkSigner produces and checks HS256-signed verification URLs.
type LinkSigner struct {
	base   *url.URL
	key    []byte
	issuer string
	param  string
	now    func() time.Time
}

func NewLinkSigner(cfg LinkSignerConfig) (*LinkSigner, error) {
	if len(cfg.Key) < 32 {
		return nil, errors.New("link signing key must be at least 32 bytes")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid link base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.New("link base url must be absolute")
	}
	if cfg.Param == "" {
		cfg.Param = DefaultLinkParam
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	key := make([]byte, len(cfg.Key))
	copy(key, cfg.Key)

	return &LinkSigner{
		base:   base,
		key:    key,
		issuer: cfg.Issuer,
		param:  cfg.Param,
		now:    cfg.Now,
	}, nil
}

// Sign returns the base URL with signed claims for accountID and token
// appended as a query parameter.
func (s *LinkSigner) Sign(accountID, token string, expiresAt time.Time) (string, error) {
	if accountID == "" || token == "" {
		return "", errors.New("link requires account id and token")
	}

	now := s.now()
	claims := LinkClaims{
		AccountID: accountID,
		Token:     token,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", err
	}

	u := *s.base
	q := u.Query()
	q.Set(s.param, signed)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Parse validates the signature carried by rawURL and returns its claims.
// Every failure wraps ErrInvalidURLSignature.
func (s *LinkSigner) Parse(rawURL string) (*LinkClaims, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURLSignature, err)
	}
	signed := u.Query().Get(s.param)
	if signed == "" {
		return nil, fmt.Errorf("%w: missing %s parameter", ErrInvalidURLSignature, s.param)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &LinkClaims{}
	token, err := jwt.ParseWithClaims(signed, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURLSignature, err)
	}
	if !token.Valid || claims.AccountID == "" || claims.Token == "" {
		return nil, ErrInvalidURLSignature
	}

	return claims, nil
}
