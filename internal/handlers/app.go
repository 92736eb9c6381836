package handlers

import (
	"potatoauth/views"

	"github.com/gofiber/fiber/v2"
)

// NewApp creates the Fiber app serving /health and the /user routes under prefix.
func NewApp(authHandler *AuthHandler, prefix string, middlewares ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "potatoauth",
		Views:   views.NewEngine(),
	})
	for _, m := range middlewares {
		app.Use(m)
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("200 OK")
	})

	var router fiber.Router = app
	if prefix != "" {
		router = app.Group(prefix)
	}
	authHandler.RegisterRoutes(router)
	return app
}
