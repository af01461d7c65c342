package auth

import "errors"

// Kind classifies an authentication failure.
type Kind string

const (
	KindInvalidCredentials Kind = "invalid_credentials"
	KindEmailInUse         Kind = "email_in_use"
	KindWeakPassword       Kind = "weak_password"
	KindInvalidEmail       Kind = "invalid_email"
	KindRateLimited        Kind = "rate_limited"
	KindNetwork            Kind = "network"
	KindUnknown            Kind = "unknown"
)

// Error is a classified authentication failure. Message is safe to
// show to the user.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func errf(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, cause: cause}
}

// KindOf extracts the failure kind, defaulting to unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// UserMessage maps a failure kind to display text, following the
// original application's wording.
func UserMessage(kind Kind) string {
	switch kind {
	case KindEmailInUse:
		return "This email is already registered. Please try logging in instead."
	case KindInvalidEmail:
		return "Please enter a valid email address."
	case KindWeakPassword:
		return "Please choose a stronger password (at least 6 characters)."
	case KindInvalidCredentials:
		return "Incorrect email or password."
	case KindRateLimited:
		return "Too many attempts. Please try again later."
	case KindNetwork:
		return "Network error. Please check your internet connection."
	default:
		return "An error occurred during authentication. Please try again."
	}
}
