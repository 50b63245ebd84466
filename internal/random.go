package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomInt returns a uniformly distributed integer in [min, max].
func RandomInt(min, max int64) (int64, error) {
	if max < min {
		return 0, errors.New("invalid random range")
	}

	span := big.NewInt(max - min + 1)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return 0, err
	}
	return min + n.Int64(), nil
}

// RandomString returns n characters drawn uniformly from an alphanumeric alphabet.
func RandomString(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("invalid random string length")
	}

	var b strings.Builder
	b.Grow(n)

	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(tokenAlphabet[idx.Int64()])
	}

	return b.String(), nil
}

// DigestToken returns the hex SHA-256 digest of token.
func DigestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// EqualDigests compares two digests in constant time. Empty digests never match.
func EqualDigests(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
