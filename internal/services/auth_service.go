package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"potatoauth/internal/credentials"
	"potatoauth/internal/metrics"
	"potatoauth/internal/models"
	"potatoauth/internal/repositories"
	"potatoauth/internal/validation"
)

// maxTokenAttempts bounds how often a colliding random token is re-minted.
const maxTokenAttempts = 3

// Config holds the tunables of AuthService.
type Config struct {
	ResetTokenTTL time.Duration
	// BaseURL is embedded in emails so that links point back at this service.
	BaseURL string
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// LoginInput identifies the user by username or email.
type LoginInput struct {
	Username string
	Email    string
	Password string
}

// ResetPasswordInput is the submitted password reset form.
type ResetPasswordInput struct {
	Token         string
	Password      string
	PasswordAgain string
}

// TokenPair is returned by a successful login.
type TokenPair struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthService handles business logic for authentication and authorization.
type AuthService struct {
	users     repositories.UserRepository
	tokens    repositories.TokenRepository
	validator *validation.Engine
	issuer    *TokenIssuer
	notifier  Notifier
	metrics   *metrics.Metrics
	cfg       Config
	now       func() time.Time
	// dummyHash is compared against when no user matched, so that unknown
	// identifiers cost as much as wrong passwords.
	dummyHash string
}

// NewAuthService creates a new AuthService.
func NewAuthService(users repositories.UserRepository, tokens repositories.TokenRepository, issuer *TokenIssuer, notifier Notifier, cfg Config) (*AuthService, error) {
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = 10 * time.Minute
	}
	dummyHash, err := credentials.HashPassword("potatoauth-dummy-password")
	if err != nil {
		return nil, err
	}
	return &AuthService{
		users:     users,
		tokens:    tokens,
		validator: validation.NewEngine(users),
		issuer:    issuer,
		notifier:  notifier,
		cfg:       cfg,
		now:       time.Now,
		dummyHash: dummyHash,
	}, nil
}

// WithMetrics makes the service count every flow outcome.
func (s *AuthService) WithMetrics(m *metrics.Metrics) *AuthService {
	s.metrics = m
	return s
}

// WithClock overrides the time source used for token expiry.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// Issuer returns the token issuer used to sign and parse tokens.
func (s *AuthService) Issuer() *TokenIssuer {
	return s.issuer
}

// Register validates the form, creates an unverified user with a verify token and
// emails the token. If the email cannot be sent the user is removed again.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (user *models.User, err error) {
	defer func() { s.observe("register", err) }()

	candidate := validation.Candidate{Username: in.Username, Email: in.Email, Password: in.Password}
	res, err := s.validator.Validate(ctx, candidate, validation.Register)
	if err != nil {
		return nil, fmt.Errorf("failed to validate registration: %w", err)
	}
	if !res.Valid() {
		return nil, newValidationError(res)
	}

	hash, err := credentials.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	pwID, err := credentials.GenerateToken(credentials.PasswordIdentifierBytes)
	if err != nil {
		return nil, err
	}

	user = &models.User{
		Username:           in.Username,
		Email:              in.Email,
		PasswordHash:       hash,
		PasswordIdentifier: pwID,
		Role:               models.DefaultRole,
	}
	token, err := s.mintToken(credentials.VerifyTokenBytes, func(token string) error {
		err := s.users.CreateWithVerifyToken(ctx, user, &models.EmailVerifyToken{Token: token})
		if errors.Is(err, repositories.ErrDuplicate) {
			// Lost a race against a concurrent registration. Only a token collision is retried.
			return s.duplicateError(ctx, candidate, err)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	if err := s.sendVerifyEmail(ctx, user, token); err != nil {
		if delErr := s.users.Delete(ctx, user.ID); delErr != nil {
			log.Printf("Failed to remove user %s after email failure: %v", user.ID, delErr)
		}
		return nil, err
	}

	log.Printf("Registered user %s", user.ID)
	return user, nil
}

// Login checks the credentials and opens a new session.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (pair *TokenPair, err error) {
	defer func() { s.observe("login", err) }()

	candidate := validation.Candidate{Username: in.Username, Email: in.Email, Password: in.Password}
	res, err := s.validator.Validate(ctx, candidate, validation.Login)
	if err != nil {
		return nil, fmt.Errorf("failed to validate login: %w", err)
	}
	if !res.Valid() {
		return nil, newValidationError(res)
	}

	user, err := s.users.GetByUsernameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			credentials.CheckPassword(in.Password, s.dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !credentials.CheckPassword(in.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !user.Verified {
		return nil, ErrUserNotVerified
	}

	session, err := s.mintToken(credentials.SessionTokenBytes, func(token string) error {
		return s.tokens.CreateSession(ctx, &models.SessionToken{Token: token, UserID: user.ID})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	access, err := s.issuer.AccessToken(user)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issuer.RefreshToken(user, session)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Token: access, RefreshToken: refresh}, nil
}

// Profile returns the user an access token was issued to.
func (s *AuthService) Profile(ctx context.Context, claims *Claims) (user *models.User, err error) {
	defer func() { s.observe("profile", err) }()

	user, err = s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return user, nil
}

// Refresh issues a new access token for a live session.
func (s *AuthService) Refresh(ctx context.Context, claims *Claims) (token string, err error) {
	defer func() { s.observe("refresh", err) }()

	user, err := s.sessionUser(ctx, claims)
	if err != nil {
		return "", err
	}
	if !user.Verified {
		return "", ErrUserNotVerified
	}
	return s.issuer.AccessToken(user)
}

// Logout deletes the session the refresh token belongs to.
func (s *AuthService) Logout(ctx context.Context, claims *Claims) (err error) {
	defer func() { s.observe("logout", err) }()

	user, err := s.sessionUser(ctx, claims)
	if err != nil {
		return err
	}
	if err := s.tokens.DeleteSession(ctx, claims.Session, user.ID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrInvalidSession
		}
		return fmt.Errorf("failed to log out: %w", err)
	}
	return nil
}

// Verify consumes a verify token and marks its owner verified.
func (s *AuthService) Verify(ctx context.Context, token string) (err error) {
	defer func() { s.observe("verify", err) }()

	user, err := s.tokens.ConsumeVerifyToken(ctx, token)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("failed to verify account: %w", err)
	}
	log.Printf("Verified user %s", user.ID)
	return nil
}

// Resend emails the verify token of an unverified user again, minting one if needed.
func (s *AuthService) Resend(ctx context.Context, email string) (err error) {
	defer func() { s.observe("resend", err) }()

	res, err := s.validator.Validate(ctx, validation.Candidate{Email: email}, validation.Resend)
	if err != nil {
		return fmt.Errorf("failed to validate resend: %w", err)
	}
	if !res.Valid() {
		return newValidationError(res)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if user.Verified {
		return ErrAlreadyVerified
	}

	var token string
	minted := false
	existing, err := s.tokens.GetVerifyTokenByUser(ctx, user.ID)
	switch {
	case err == nil:
		token = existing.Token
	case errors.Is(err, repositories.ErrNotFound):
		token, err = s.mintToken(credentials.VerifyTokenBytes, func(token string) error {
			return s.tokens.CreateVerifyToken(ctx, &models.EmailVerifyToken{Token: token, UserID: user.ID})
		})
		if err != nil {
			return fmt.Errorf("failed to create verify token: %w", err)
		}
		minted = true
	default:
		return fmt.Errorf("failed to look up verify token: %w", err)
	}

	if err := s.sendVerifyEmail(ctx, user, token); err != nil {
		if minted {
			s.discard("verify", s.tokens.DeleteVerifyToken(ctx, token))
		}
		return err
	}
	return nil
}

// RequestPasswordReset emails a reset token to a verified user.
func (s *AuthService) RequestPasswordReset(ctx context.Context, username, email string) (err error) {
	defer func() { s.observe("send-password-reset", err) }()

	res, err := s.validator.Validate(ctx, validation.Candidate{Username: username, Email: email}, validation.SendReset)
	if err != nil {
		return fmt.Errorf("failed to validate reset request: %w", err)
	}
	if !res.Valid() {
		return newValidationError(res)
	}

	user, err := s.users.GetByUsernameOrEmail(ctx, username, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if !user.Verified {
		return ErrUserNotVerified.WithStatus(http.StatusBadRequest)
	}

	token, minted, err := s.resetTokenFor(ctx, user)
	if err != nil {
		return err
	}

	vars := map[string]interface{}{
		"uname":      user.Username,
		"token":      token,
		"burl":       s.cfg.BaseURL,
		"expire_min": int(s.cfg.ResetTokenTTL / time.Minute),
	}
	if err := s.notifier.Send(ctx, TemplatePasswordReset, user.Email, vars); err != nil {
		log.Printf("Failed to send password reset email to user %s: %v", user.ID, err)
		if minted {
			s.discard("reset", s.tokens.DeleteResetToken(ctx, token))
		}
		return newDeliveryError(err)
	}
	return nil
}

// ResetPassword sets a new password using a reset token. The password identifier is
// rotated, which invalidates every refresh token issued before.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) (err error) {
	defer func() { s.observe("reset-password", err) }()

	reset, err := s.tokens.GetResetToken(ctx, in.Token)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("failed to look up reset token: %w", err)
	}
	if reset.Expired(s.now(), s.cfg.ResetTokenTTL) {
		s.discard("reset", s.tokens.DeleteResetToken(ctx, reset.Token))
		return ErrTokenExpired
	}
	if in.Password != in.PasswordAgain {
		return ErrPasswordMismatch
	}
	if code := s.validator.Password(in.Password); code != validation.Valid {
		return newValidationError(validation.Result{validation.FieldPassword: code})
	}

	hash, err := credentials.HashPassword(in.Password)
	if err != nil {
		return err
	}
	pwID, err := credentials.GenerateToken(credentials.PasswordIdentifierBytes)
	if err != nil {
		return err
	}
	user, err := s.tokens.ResetPassword(ctx, reset.Token, hash, pwID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("failed to reset password: %w", err)
	}
	log.Printf("Password changed for user %s", user.ID)
	return nil
}

// ResetTokenTTL is how long a reset token stays usable.
func (s *AuthService) ResetTokenTTL() time.Duration {
	return s.cfg.ResetTokenTTL
}

// sessionUser resolves the user and session of a refresh token, failing on the first mismatch.
func (s *AuthService) sessionUser(ctx context.Context, claims *Claims) (*models.User, error) {
	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if claims.PwID != user.PasswordIdentifier {
		return nil, ErrInvalidToken
	}

	session, err := s.tokens.GetSession(ctx, claims.Session)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if session.UserID != user.ID {
		return nil, ErrInvalidSession
	}
	return user, nil
}

// resetTokenFor returns the live reset token of user, minting a new one when there is
// none or the existing one has expired. minted reports whether the token is new.
func (s *AuthService) resetTokenFor(ctx context.Context, user *models.User) (token string, minted bool, err error) {
	existing, err := s.tokens.GetResetTokenByUser(ctx, user.ID)
	switch {
	case err == nil && !existing.Expired(s.now(), s.cfg.ResetTokenTTL):
		return existing.Token, false, nil
	case err == nil:
		s.discard("reset", s.tokens.DeleteResetToken(ctx, existing.Token))
	case !errors.Is(err, repositories.ErrNotFound):
		return "", false, fmt.Errorf("failed to look up reset token: %w", err)
	}

	token, err = s.mintToken(credentials.ResetTokenBytes, func(token string) error {
		return s.tokens.CreateResetToken(ctx, &models.PasswordResetToken{Token: token, UserID: user.ID, CreatedAt: s.now()})
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to create reset token: %w", err)
	}
	return token, true, nil
}

func (s *AuthService) sendVerifyEmail(ctx context.Context, user *models.User, token string) error {
	vars := map[string]interface{}{
		"uname": user.Username,
		"token": token,
		"burl":  s.cfg.BaseURL,
	}
	if err := s.notifier.Send(ctx, TemplateRegister, user.Email, vars); err != nil {
		log.Printf("Failed to send verification email to user %s: %v", user.ID, err)
		return newDeliveryError(err)
	}
	return nil
}

// duplicateError turns a unique violation into ALREADY_EXISTS codes on the colliding fields.
// When username and email are still free the collision was on the token and cause is returned.
func (s *AuthService) duplicateError(ctx context.Context, candidate validation.Candidate, cause error) error {
	res, err := s.validator.Validate(ctx, candidate, validation.Register)
	if err != nil {
		return fmt.Errorf("failed to validate registration: %w", err)
	}
	if res.Valid() {
		return cause
	}
	return newValidationError(res)
}

// mintToken generates a random token and hands it to store, retrying on collisions.
func (s *AuthService) mintToken(n int, store func(token string) error) (string, error) {
	var err error
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		var token string
		token, err = credentials.GenerateToken(n)
		if err != nil {
			return "", err
		}
		if err = store(token); err == nil {
			return token, nil
		}
		if !errors.Is(err, repositories.ErrDuplicate) {
			return "", err
		}
	}
	return "", err
}

func (s *AuthService) discard(kind string, err error) {
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		log.Printf("Failed to delete %s token: %v", kind, err)
	}
}

func (s *AuthService) observe(flow string, err error) {
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = StatusInternalServerError
		var svcErr *Error
		if errors.As(err, &svcErr) {
			outcome = svcErr.Code
		}
	}
	s.metrics.ObserveFlow(flow, outcome)
}
