package mail

import (
	"bytes"
	"fmt"

	"potatoauth/views"

	"github.com/gofiber/template/django/v3"
)

// subjects maps a template name to the subject line of its email.
var subjects = map[string]string{
	"register":       "Please verify your email address",
	"password-reset": "Reset your password",
}

// Renderer turns a template name and its variables into an email.
type Renderer struct {
	engine *django.Engine
}

// NewRenderer creates a Renderer over the embedded email templates.
func NewRenderer() *Renderer {
	return &Renderer{engine: views.NewEngine()}
}

// Render builds the message for template addressed to recipient.
func (r *Renderer) Render(template, recipient string, vars map[string]interface{}) (*Message, error) {
	subject, ok := subjects[template]
	if !ok {
		return nil, fmt.Errorf("unknown email template %q", template)
	}

	var body bytes.Buffer
	if err := r.engine.Render(&body, views.EmailDir+"/"+template, vars); err != nil {
		return nil, fmt.Errorf("failed to render %s email: %w", template, err)
	}
	return &Message{
		To:      recipient,
		Subject: subject,
		HTML:    body.String(),
	}, nil
}
