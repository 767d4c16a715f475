package auth

import "errors"

// Reason is the internal cause of a rejected auth operation. It is kept for
// logs and tests; clients only ever see the coarser Outcome.
type Reason int

const (
	ReasonInvalidInput Reason = iota + 1
	ReasonInvalidCredentials
	ReasonLocked
	ReasonRevoked
	ReasonMalformed
	ReasonSignatureInvalid
	ReasonExpired
	ReasonUserInactive
	ReasonUserNotFound
	ReasonForbidden
	ReasonDuplicateUser
	ReasonNotFound
)

var reasonNames = map[Reason]string{
	ReasonInvalidInput:       "invalid_input",
	ReasonInvalidCredentials: "invalid_credentials",
	ReasonLocked:             "locked",
	ReasonRevoked:            "revoked",
	ReasonMalformed:          "malformed",
	ReasonSignatureInvalid:   "signature_invalid",
	ReasonExpired:            "expired",
	ReasonUserInactive:       "user_inactive",
	ReasonUserNotFound:       "user_not_found",
	ReasonForbidden:          "forbidden",
	ReasonDuplicateUser:      "duplicate_user",
	ReasonNotFound:           "not_found",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "unknown"
}

// Outcome is what the HTTP boundary is allowed to reveal.
type Outcome string

const (
	OutcomeInvalidInput Outcome = "invalid_input"
	OutcomeLoginFailed  Outcome = "login_failed"
	OutcomeUnauthorized Outcome = "unauthorized"
	OutcomeForbidden    Outcome = "forbidden"
	OutcomeConflict     Outcome = "conflict"
	OutcomeNotFound     Outcome = "not_found"
	OutcomeInternal     Outcome = "internal"
)

func (r Reason) Public() Outcome {
	switch r {
	case ReasonInvalidInput:
		return OutcomeInvalidInput
	case ReasonInvalidCredentials, ReasonLocked:
		return OutcomeLoginFailed
	case ReasonRevoked, ReasonMalformed, ReasonSignatureInvalid, ReasonExpired, ReasonUserInactive, ReasonUserNotFound:
		return OutcomeUnauthorized
	case ReasonForbidden:
		return OutcomeForbidden
	case ReasonDuplicateUser:
		return OutcomeConflict
	case ReasonNotFound:
		return OutcomeNotFound
	default:
		return OutcomeInternal
	}
}

type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Reason.String() + ": " + e.Err.Error()
	}
	return e.Reason.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same reason, so errors.Is(err, ErrLocked)
// works regardless of the wrapped detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

var (
	ErrInvalidInput       = &Error{Reason: ReasonInvalidInput}
	ErrInvalidCredentials = &Error{Reason: ReasonInvalidCredentials}
	ErrLocked             = &Error{Reason: ReasonLocked}
	ErrRevoked            = &Error{Reason: ReasonRevoked}
	ErrMalformed          = &Error{Reason: ReasonMalformed}
	ErrSignatureInvalid   = &Error{Reason: ReasonSignatureInvalid}
	ErrExpired            = &Error{Reason: ReasonExpired}
	ErrUserInactive       = &Error{Reason: ReasonUserInactive}
	ErrUserNotFound       = &Error{Reason: ReasonUserNotFound}
	ErrForbidden          = &Error{Reason: ReasonForbidden}
	ErrDuplicateUser      = &Error{Reason: ReasonDuplicateUser}
	ErrNotFound           = &Error{Reason: ReasonNotFound}
)

func reject(r Reason, detail error) error {
	return &Error{Reason: r, Err: detail}
}

// ReasonOf extracts the internal reason from err, or 0 if err is not an auth
// rejection.
func ReasonOf(err error) Reason {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return 0
}

// Public projects err onto the client-visible outcome. A nil error has no
// outcome; errors that are not auth rejections are internal failures.
func Public(err error) Outcome {
	if err == nil {
		return ""
	}
	return ReasonOf(err).Public()
}
