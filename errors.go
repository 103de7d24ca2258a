package credcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/credcore/jwt"
)

var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is matched by *LockedError.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountNotFound is returned by AccountStore lookups. The engine never
	// surfaces it from login or reset paths.
	ErrAccountNotFound = errors.New("account not found")
	// ErrStoreConflict is returned by AccountStore.Save when the email is
	// held by another account, and by stores that exhaust update retries.
	ErrStoreConflict = errors.New("account store conflict")
	// ErrEmailTaken is returned by Register for a verified duplicate email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidInput is returned for malformed request fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrWeakPassword wraps the password policy failure.
	ErrWeakPassword = errors.New("password does not meet policy")

	// ErrTokenExpired and the two below are the distinct token failures.
	ErrTokenExpired = jwt.ErrExpired
	// ErrTokenMalformed also covers foreign signatures, issuers and audiences.
	ErrTokenMalformed = jwt.ErrMalformed
	// ErrTokenNotYetValid is returned when nbf or iat is in the future.
	ErrTokenNotYetValid = jwt.ErrNotYetValid
	// ErrTokenScope is returned when a pending token is presented where a
	// full one is required, or the reverse.
	ErrTokenScope = jwt.ErrWrongScope

	// ErrSecondFactorInvalid is returned for a wrong or replayed TOTP code.
	ErrSecondFactorInvalid = errors.New("second factor code invalid")
	// ErrSecondFactorNotConfigured is returned when a TOTP check is requested
	// for an account whose second factor is not enabled. It is a
	// configuration error, never a pass.
	ErrSecondFactorNotConfigured = errors.New("second factor not configured")
	// ErrSecondFactorAlreadyEnabled is returned by BeginEnrollment when the
	// account must disable first.
	ErrSecondFactorAlreadyEnabled = errors.New("second factor already enabled")
	// ErrSecondFactorNotPending is returned by ConfirmEnrollment without a
	// prior BeginEnrollment.
	ErrSecondFactorNotPending = errors.New("no second factor enrollment in progress")

	// ErrCodeExpired and ErrCodeInvalid share one user-facing message.
	ErrCodeExpired = errors.New("code expired")
	ErrCodeInvalid = errors.New("code invalid")

	// ErrRateLimited is matched by *RateLimitError.
	ErrRateLimited = errors.New("rate limited")
	// ErrDeviceNotFound is returned when removing an unknown device id.
	ErrDeviceNotFound = errors.New("trusted device not found")

	// ErrDeliveryFailed reports that the state change happened but the
	// notification could not be handed to the notifier.
	ErrDeliveryFailed = errors.New("notification delivery failed")
	// ErrUnavailable is the generic server fault for store and notifier
	// failures. Details are logged, not returned.
	ErrUnavailable = errors.New("service temporarily unavailable")

	// ErrEngineNotReady is returned by methods on a nil or closed engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// LockedError carries the unlock time of a locked account.
type LockedError struct {
	Until time.Time
	now   time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, retry in %ds", retrySeconds(e.RetryAfter()))
}

// Is makes errors.Is(err, ErrAccountLocked) hold.
func (e *LockedError) Is(target error) bool { return target == ErrAccountLocked }

// RetryAfter is the time remaining until the lock lifts.
func (e *LockedError) RetryAfter() time.Duration {
	if d := e.Until.Sub(e.now); d > 0 {
		return d
	}
	return 0
}

// RateLimitError carries the wait until the limiter window resets.
type RateLimitError struct {
	Retry time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry in %ds", retrySeconds(e.Retry))
}

// Is makes errors.Is(err, ErrRateLimited) hold.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// RetryAfter is the time until a new request may succeed.
func (e *RateLimitError) RetryAfter() time.Duration { return e.Retry }

func retrySeconds(d time.Duration) int {
	s := int(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}

// PublicMessage maps an engine error to text that is safe to show an end
// user. Code failures collapse into one message and anything unexpected
// becomes a generic fault.
func PublicMessage(err error) string {
	var locked *LockedError
	var limited *RateLimitError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &locked):
		return fmt.Sprintf("Account temporarily locked. Try again in %d minutes.", (retrySeconds(locked.RetryAfter())+59)/60)
	case errors.As(err, &limited):
		return fmt.Sprintf("Too many requests. Try again in %d seconds.", retrySeconds(limited.RetryAfter()))
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, ErrTokenExpired):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, ErrTokenNotYetValid):
		return "Your session is not valid yet. Check your device clock."
	case errors.Is(err, ErrTokenMalformed), errors.Is(err, ErrTokenScope):
		return "Invalid session token."
	case errors.Is(err, ErrSecondFactorInvalid):
		return "Invalid authentication code."
	case errors.Is(err, ErrSecondFactorNotConfigured):
		return "Two-factor authentication is not set up for this account."
	case errors.Is(err, ErrSecondFactorAlreadyEnabled):
		return "Two-factor authentication is already enabled."
	case errors.Is(err, ErrSecondFactorNotPending):
		return "Start two-factor setup first."
	case errors.Is(err, ErrCodeExpired), errors.Is(err, ErrCodeInvalid):
		return "The code is invalid or has expired."
	case errors.Is(err, ErrDeviceNotFound):
		return "Device not found."
	case errors.Is(err, ErrEmailTaken):
		return "An account with this email already exists."
	case errors.Is(err, ErrWeakPassword):
		return "Password must contain upper and lower case letters, a digit and a symbol."
	case errors.Is(err, ErrInvalidInput):
		return "Some fields are missing or invalid."
	case errors.Is(err, ErrDeliveryFailed):
		return "We could not send the message. Please try again later."
	default:
		return "Something went wrong. Please try again later."
	}
}
