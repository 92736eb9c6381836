package services

import "context"

// Email templates sent by the account flows.
const (
	TemplateRegister      = "register"
	TemplatePasswordReset = "password-reset"
)

// Notifier delivers a templated email. A returned error means the email will not arrive.
type Notifier interface {
	Send(ctx context.Context, template, recipient string, vars map[string]interface{}) error
}
