// Package validation checks account form input per operation and reports one
// numeric code per field.
package validation

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Code is the per-field validation result sent to clients.
type Code int

const (
	Valid Code = iota
	TooShort
	TooLong
	InvalidFormat
	AlreadyExists
	// Missing is part of the client taxonomy; absent fields report the first
	// failing length rule instead.
	Missing
)

// Context selects which fields are checked and how.
type Context string

const (
	Register  Context = "register"
	Login     Context = "login"
	Resend    Context = "resend"
	SendReset Context = "send-reset"
)

// Field length limits.
const (
	UsernameMinLength = 3
	UsernameMaxLength = 80
	EmailMinLength    = 10
	EmailMaxLength    = 100
	PasswordMinLength = 5
	PasswordMaxLength = 60
)

// Field names used as keys in a Result.
const (
	FieldUsername = "username"
	FieldEmail    = "email"
	FieldPassword = "password"
)

// Candidate is the user input under validation.
type Candidate struct {
	Username string
	Email    string
	Password string
}

// Result maps every checked field to its code. Valid fields map to Valid.
type Result map[string]Code

// Valid reports whether no field failed.
func (r Result) Valid() bool {
	for _, code := range r {
		if code != Valid {
			return false
		}
	}
	return true
}

// UniquenessChecker looks up whether an identifier is already registered.
type UniquenessChecker interface {
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

type rule struct {
	tag  string
	code Code
}

// Rules run in order; the first failing rule decides the field's code.
var (
	usernameRules = []rule{
		{fmt.Sprintf("min=%d", UsernameMinLength), TooShort},
		{fmt.Sprintf("max=%d", UsernameMaxLength), TooLong},
	}
	emailRules = []rule{
		{fmt.Sprintf("min=%d", EmailMinLength), TooShort},
		{fmt.Sprintf("max=%d", EmailMaxLength), TooLong},
		{"email", InvalidFormat},
	}
	passwordRules = []rule{
		{fmt.Sprintf("min=%d", PasswordMinLength), TooShort},
		{fmt.Sprintf("max=%d", PasswordMaxLength), TooLong},
	}
)

// Engine validates candidates.
type Engine struct {
	validate *validator.Validate
	users    UniquenessChecker
}

// NewEngine creates an Engine. users is consulted for uniqueness in the register context.
func NewEngine(users UniquenessChecker) *Engine {
	return &Engine{
		validate: validator.New(),
		users:    users,
	}
}

// Validate checks c for the given context. The error is non-nil only when a
// uniqueness lookup fails or the context is unknown.
func (e *Engine) Validate(ctx context.Context, c Candidate, vc Context) (Result, error) {
	res := make(Result)
	switch vc {
	case Register:
		res[FieldUsername] = e.check(c.Username, usernameRules)
		res[FieldEmail] = e.check(c.Email, emailRules)
		res[FieldPassword] = e.check(c.Password, passwordRules)
		if err := e.checkUnique(ctx, c, res); err != nil {
			return nil, err
		}
	case Login:
		res[FieldUsername], res[FieldEmail] = e.checkIdentifier(c)
		res[FieldPassword] = e.check(c.Password, passwordRules)
	case SendReset:
		res[FieldUsername], res[FieldEmail] = e.checkIdentifier(c)
	case Resend:
		res[FieldEmail] = e.check(c.Email, emailRules)
	default:
		return nil, fmt.Errorf("unknown validation context %q", vc)
	}
	return res, nil
}

// Password checks a new password with the login length rules.
func (e *Engine) Password(password string) Code {
	return e.check(password, passwordRules)
}

// check runs rules in order. An empty value fails the first length rule.
func (e *Engine) check(value string, rules []rule) Code {
	for _, r := range rules {
		if err := e.validate.Var(value, r.tag); err != nil {
			return r.code
		}
	}
	return Valid
}

// checkIdentifier validates the email when given, otherwise the username.
// The email is optional here, so without either identifier only the username fails.
func (e *Engine) checkIdentifier(c Candidate) (username, email Code) {
	if c.Email != "" {
		return Valid, e.check(c.Email, emailRules)
	}
	return e.check(c.Username, usernameRules), Valid
}

// checkUnique only looks up fields that passed every other rule.
func (e *Engine) checkUnique(ctx context.Context, c Candidate, res Result) error {
	if res[FieldUsername] == Valid {
		taken, err := e.users.ExistsByUsername(ctx, c.Username)
		if err != nil {
			return fmt.Errorf("failed to check username: %w", err)
		}
		if taken {
			res[FieldUsername] = AlreadyExists
		}
	}
	if res[FieldEmail] == Valid {
		taken, err := e.users.ExistsByEmail(ctx, c.Email)
		if err != nil {
			return fmt.Errorf("failed to check email: %w", err)
		}
		if taken {
			res[FieldEmail] = AlreadyExists
		}
	}
	return nil
}
