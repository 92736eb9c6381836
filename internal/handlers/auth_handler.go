package handlers

import (
	"errors"
	"log"
	"strings"

	"potatoauth/internal/middleware"
	"potatoauth/internal/services"
	"potatoauth/internal/validation"
	"potatoauth/views"

	"github.com/gofiber/fiber/v2"
)

// AuthHandler handles HTTP requests for the account flows.
type AuthHandler struct {
	authService *services.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// RegisterRoutes registers the /user routes with the Fiber router.
func (h *AuthHandler) RegisterRoutes(router fiber.Router) {
	issuer := h.authService.Issuer()
	accessRequired := middleware.AuthRequired(issuer, services.TokenTypeAccess)
	refreshRequired := middleware.AuthRequired(issuer, services.TokenTypeRefresh)

	userRoutes := router.Group("/user")
	userRoutes.Post("/register", h.HandleRegister)
	userRoutes.Post("/login", h.HandleLogin)
	userRoutes.Get("/profile", accessRequired, h.HandleProfile)
	userRoutes.Get("/refresh", refreshRequired, h.HandleRefresh)
	userRoutes.Get("/logout", refreshRequired, h.HandleLogout)
	userRoutes.Get("/verify/:token", h.HandleVerify)
	userRoutes.Post("/resend", h.HandleResend)
	userRoutes.Post("/send-password-reset", h.HandleSendPasswordReset)
	userRoutes.Get("/reset-password/:token", h.HandleShowResetForm)
	userRoutes.Post("/reset-password", h.HandleResetPassword)
}

// RegisterRequest represents the request body for registration.
type RegisterRequest struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// LoginRequest represents the request body for login. Either username or email identifies the user.
type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// EmailRequest represents the request body for resend and send-password-reset.
type EmailRequest struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
}

// ResetPasswordRequest is the submitted reset form.
type ResetPasswordRequest struct {
	Token         string `form:"token"`
	Password      string `form:"password"`
	PasswordAgain string `form:"password_again"`
}

// HandleRegister handles new user registration.
func (h *AuthHandler) HandleRegister(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, "register", err)
	}

	user, err := h.authService.Register(c.UserContext(), services.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return respondError(c, "register", err)
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

// HandleLogin checks the credentials and issues an access and a refresh token.
func (h *AuthHandler) HandleLogin(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, "login", err)
	}

	pair, err := h.authService.Login(c.UserContext(), services.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return respondError(c, "login", err)
	}
	return c.JSON(pair)
}

// HandleProfile returns the authenticated user.
func (h *AuthHandler) HandleProfile(c *fiber.Ctx) error {
	user, err := h.authService.Profile(c.UserContext(), middleware.Claims(c))
	if err != nil {
		return respondError(c, "profile", err)
	}
	return c.JSON(user)
}

// HandleRefresh issues a new access token for the session of the presented refresh token.
func (h *AuthHandler) HandleRefresh(c *fiber.Ctx) error {
	token, err := h.authService.Refresh(c.UserContext(), middleware.Claims(c))
	if err != nil {
		return respondError(c, "refresh", err)
	}
	return c.JSON(fiber.Map{"token": token})
}

// HandleLogout ends the session of the presented refresh token.
func (h *AuthHandler) HandleLogout(c *fiber.Ctx) error {
	if err := h.authService.Logout(c.UserContext(), middleware.Claims(c)); err != nil {
		return respondError(c, "logout", err)
	}
	return c.SendString(services.StatusLoggedOut)
}

// HandleVerify consumes an email verify token.
func (h *AuthHandler) HandleVerify(c *fiber.Ctx) error {
	if err := h.authService.Verify(c.UserContext(), c.Params("token")); err != nil {
		return respondError(c, "verify", err)
	}
	return c.SendString(services.StatusAccountVerified)
}

// HandleResend emails the verify token again.
func (h *AuthHandler) HandleResend(c *fiber.Ctx) error {
	var req EmailRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, "resend", err)
	}
	if err := h.authService.Resend(c.UserContext(), req.Email); err != nil {
		return respondError(c, "resend", err)
	}
	return c.SendString(services.StatusEmailSent)
}

// HandleSendPasswordReset emails a password reset link.
func (h *AuthHandler) HandleSendPasswordReset(c *fiber.Ctx) error {
	var req EmailRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, "send-password-reset", err)
	}
	if err := h.authService.RequestPasswordReset(c.UserContext(), req.Username, req.Email); err != nil {
		return respondError(c, "send-password-reset", err)
	}
	return c.SendString(services.StatusEmailSent)
}

// HandleShowResetForm renders the password form linked from the reset email.
func (h *AuthHandler) HandleShowResetForm(c *fiber.Ctx) error {
	return renderResetForm(c, c.Params("token"), "")
}

// HandleResetPassword sets a new password from the submitted reset form.
func (h *AuthHandler) HandleResetPassword(c *fiber.Ctx) error {
	var req ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, "reset-password", err)
	}

	err := h.authService.ResetPassword(c.UserContext(), services.ResetPasswordInput{
		Token:         req.Token,
		Password:      req.Password,
		PasswordAgain: req.PasswordAgain,
	})
	if errors.Is(err, services.ErrPasswordMismatch) {
		c.Status(fiber.StatusBadRequest)
		return renderResetForm(c, req.Token, "Password fields do not match")
	}
	if err != nil {
		return respondError(c, "reset-password", err)
	}
	return c.SendString(services.StatusPasswordChanged)
}

func renderResetForm(c *fiber.Ctx, token, message string) error {
	return c.Render(views.PasswordResetPage, fiber.Map{
		"token":               token,
		"error":               message,
		"action":              strings.TrimSuffix(c.Route().Path, "/:token"),
		"min_password_length": validation.PasswordMinLength,
		"max_password_length": validation.PasswordMaxLength,
	})
}

func invalidBody(c *fiber.Ctx, flow string, err error) error {
	log.Printf("Error parsing %s request body: %v", flow, err)
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Invalid request body",
	})
}

// respondError writes err as a plain-text status code, or as the field code map for
// validation failures. Errors that are not service errors become 500.
func respondError(c *fiber.Ctx, flow string, err error) error {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		log.Printf("Error during %s: %v", flow, err)
		return c.Status(fiber.StatusInternalServerError).SendString(services.StatusInternalServerError)
	}
	if svcErr.Kind == services.KindDownstream {
		log.Printf("Error during %s: %v", flow, err)
	}
	if svcErr.Fields != nil {
		return c.Status(svcErr.Status).JSON(svcErr.Fields)
	}
	return c.Status(svcErr.Status).SendString(svcErr.Code)
}
