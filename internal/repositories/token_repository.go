package repositories

import (
	"context"

	"potatoauth/internal/models"
)

// TokenRepository defines data access for verify, session and password reset tokens.
type TokenRepository interface {
	GetVerifyTokenByUser(ctx context.Context, userID string) (*models.EmailVerifyToken, error)
	CreateVerifyToken(ctx context.Context, token *models.EmailVerifyToken) error
	DeleteVerifyToken(ctx context.Context, token string) error
	// ConsumeVerifyToken deletes the token and marks its owner verified in one step.
	// Only one concurrent caller can succeed; the others get ErrNotFound.
	ConsumeVerifyToken(ctx context.Context, token string) (*models.User, error)

	CreateSession(ctx context.Context, session *models.SessionToken) error
	GetSession(ctx context.Context, token string) (*models.SessionToken, error)
	// DeleteSession removes the session only if it belongs to userID.
	DeleteSession(ctx context.Context, token, userID string) error

	GetResetToken(ctx context.Context, token string) (*models.PasswordResetToken, error)
	GetResetTokenByUser(ctx context.Context, userID string) (*models.PasswordResetToken, error)
	CreateResetToken(ctx context.Context, token *models.PasswordResetToken) error
	DeleteResetToken(ctx context.Context, token string) error
	// ResetPassword consumes the reset token and stores the new credentials of its owner.
	ResetPassword(ctx context.Context, token, passwordHash, passwordIdentifier string) (*models.User, error)
}
