package services

import (
	"net/http"

	"potatoauth/internal/validation"
)

// Status codes returned to clients as plain-text bodies.
const (
	StatusTokenNotFound          = "TOKEN_NOT_FOUND"
	StatusTokenExpired           = "TOKEN_EXPIRED"
	StatusAccountVerified        = "ACCOUNT_VERIFIED"
	StatusAccountAlreadyVerified = "ACCOUNT_ALREADY_VERIFIED"
	StatusEmailSent              = "EMAIL_SENT"
	StatusInternalServerError    = "INTERNAL_SERVER_ERROR"

	StatusInvalidCredentials = "INVALID_CREDENTIALS"
	StatusUserNotFound       = "USER_NOT_FOUND"
	StatusUserNotVerified    = "USER_NOT_VERIFIED"
	StatusLoggedOut          = "LOGGED_OUT"
	StatusInvalidToken       = "INVALID_TOKEN"
	StatusInvalidSession     = "INVALID_SESSION"

	StatusValidationFailed = "VALIDATION_FAILED"
	StatusPasswordMismatch = "PASSWORD_MISMATCH"
	StatusPasswordChanged  = "Password Changed"
)

// Kind classifies a service error.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindAuth
	KindConflict
	KindExpired
	KindDownstream
)

// Error is a failed account flow with the HTTP status and code it maps to.
type Error struct {
	Kind   Kind
	Status int
	Code   string
	// Fields is set for KindValidation.
	Fields validation.Result
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same kind and code, regardless of status.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Code == e.Code
}

// WithStatus returns a copy of e answering with status.
func (e *Error) WithStatus(status int) *Error {
	c := *e
	c.Status = status
	return &c
}

var (
	ErrValidation         = &Error{Kind: KindValidation, Status: http.StatusBadRequest, Code: StatusValidationFailed}
	ErrPasswordMismatch   = &Error{Kind: KindValidation, Status: http.StatusBadRequest, Code: StatusPasswordMismatch}
	ErrUserNotFound       = &Error{Kind: KindNotFound, Status: http.StatusBadRequest, Code: StatusUserNotFound}
	ErrTokenNotFound      = &Error{Kind: KindNotFound, Status: http.StatusBadRequest, Code: StatusTokenNotFound}
	ErrInvalidCredentials = &Error{Kind: KindAuth, Status: http.StatusBadRequest, Code: StatusInvalidCredentials}
	ErrUserNotVerified    = &Error{Kind: KindAuth, Status: http.StatusUnauthorized, Code: StatusUserNotVerified}
	ErrInvalidToken       = &Error{Kind: KindAuth, Status: http.StatusUnauthorized, Code: StatusInvalidToken}
	ErrInvalidSession     = &Error{Kind: KindAuth, Status: http.StatusBadRequest, Code: StatusInvalidSession}
	ErrAlreadyVerified    = &Error{Kind: KindConflict, Status: http.StatusBadRequest, Code: StatusAccountAlreadyVerified}
	ErrTokenExpired       = &Error{Kind: KindExpired, Status: http.StatusBadRequest, Code: StatusTokenExpired}
	ErrEmailDelivery      = &Error{Kind: KindDownstream, Status: http.StatusInternalServerError, Code: StatusInternalServerError}
)

func newValidationError(res validation.Result) *Error {
	e := ErrValidation.WithStatus(http.StatusBadRequest)
	e.Fields = res
	return e
}

func newDeliveryError(err error) *Error {
	e := ErrEmailDelivery.WithStatus(http.StatusInternalServerError)
	e.Err = err
	return e
}
