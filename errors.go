package authcore

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/verification"
)

var (
	// ErrInvalidArgument reports malformed caller input such as a nil account
	// or an empty credentials map.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAccountLocked reports that resolution was blocked by an active lock.
	ErrAccountLocked = errors.New("account locked")
	// ErrAlreadyVerified is returned when verifying an account that is already verified.
	ErrAlreadyVerified = errors.New("account already verified")
	// ErrVerificationExpired is returned when the verification window has passed.
	ErrVerificationExpired = errors.New("verification expired")
	// ErrCodeNotFound is returned when no adapter accepted the verification token.
	ErrCodeNotFound = errors.New("verification code not found")
	// ErrUnknownVerificationMethod is returned by Issue for an unregistered method.
	ErrUnknownVerificationMethod = errors.New("unknown verification method")
	// ErrDriverNotFound is wrapped by DriverNotFoundError.
	ErrDriverNotFound = errors.New("driver not found")
	// ErrInvalidURLSignature is returned for tampered or expired verification links.
	ErrInvalidURLSignature = verification.ErrInvalidURLSignature
	// ErrAccountNotFound is returned by operations addressing an account by id.
	ErrAccountNotFound = errors.New("account not found")
	// ErrRateLimited is returned when an AttemptLimiter rejects an attempt.
	ErrRateLimited = errors.New("too many attempts")
	// ErrEngineNotReady is returned by Builder.Build when a required collaborator is missing.
	ErrEngineNotReady = errors.New("engine not ready")
)

// LockedError carries the display name of the locked account.
type LockedError struct {
	DisplayName string
}

func (e *LockedError) Error() string {
	if e.DisplayName == "" {
		return ErrAccountLocked.Error()
	}
	return fmt.Sprintf("account %s is locked", e.DisplayName)
}

func (e *LockedError) Unwrap() error { return ErrAccountLocked }

// VerificationError is a verification failure with an HTTP-like status code.
type VerificationError struct {
	Code int
	Err  error
}

func (e *VerificationError) Error() string {
	return e.Err.Error()
}

func (e *VerificationError) Unwrap() error { return e.Err }

func verificationError(code int, err error) error {
	return &VerificationError{Code: code, Err: err}
}

// DriverNotFoundError names the unregistered sign-in driver.
type DriverNotFoundError struct {
	Name string
}

func (e *DriverNotFoundError) Error() string {
	return fmt.Sprintf("%s not configured in the drivers registry", e.Name)
}

func (e *DriverNotFoundError) Unwrap() error { return ErrDriverNotFound }

// StatusCode maps err to an HTTP-like status code. Errors without a known
// code map to 500; nil maps to 0.
func StatusCode(err error) int {
	if err == nil {
		return 0
	}

	var verr *VerificationError
	if errors.As(err, &verr) && verr.Code != 0 {
		return verr.Code
	}

	switch {
	case errors.Is(err, ErrInvalidArgument):
		return 400
	case errors.Is(err, ErrAccountLocked),
		errors.Is(err, ErrAlreadyVerified),
		errors.Is(err, ErrInvalidURLSignature):
		return 403
	case errors.Is(err, ErrCodeNotFound),
		errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrDriverNotFound),
		errors.Is(err, ErrUnknownVerificationMethod):
		return 404
	case errors.Is(err, ErrVerificationExpired):
		return 408
	case errors.Is(err, ErrRateLimited):
		return 429
	default:
		return 500
	}
}
