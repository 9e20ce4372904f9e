// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across store/remote/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary sign-in lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a uniqueness violation (e.g., email already registered).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation marks user input that was rejected before any state change.
	ErrValidation = errors.New("validation")

	// ErrInvalidCoupon indicates a coupon code outside the discount table.
	ErrInvalidCoupon = errors.New("invalid coupon")

	// ErrStorage indicates the local medium refused a write (quota, disabled, I/O).
	ErrStorage = errors.New("local storage write failed")

	// ErrRemoteUnavailable indicates the remote data service could not be reached.
	ErrRemoteUnavailable = errors.New("remote unavailable")
)

// ValidationError is a user-visible form error. Message is safe to show as-is.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// Invalid builds a ValidationError for field with a user-facing message.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string { return e.Message }

// Is lets errors.Is match ErrValidation and any wrapped cause.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation || (e.Err != nil && errors.Is(e.Err, target))
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Message extracts the user-visible message of a validation error, or "" for other errors.
func Message(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return ""
}
