// Package views embeds the HTML page and email templates.
package views

import (
	"embed"
	"net/http"

	"github.com/gofiber/template/django/v3"
)

// Extension is the file extension of every template.
const Extension = ".django"

// Template names.
const (
	PasswordResetPage = "password_reset"
	// Email templates are looked up as EmailDir + "/" + template.
	EmailDir = "emails"
)

//go:embed *.django emails/*.django
var files embed.FS

// NewEngine creates a django engine over the embedded templates.
func NewEngine() *django.Engine {
	return django.NewFileSystem(http.FS(files), Extension)
}
