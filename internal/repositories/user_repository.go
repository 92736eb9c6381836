package repositories

import (
	"context"
	"errors"

	"potatoauth/internal/models"
)

var (
	// ErrNotFound is returned when a lookup or a guarded delete matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write violates a unique index.
	ErrDuplicate = errors.New("record already exists")
)

// UserRepository defines the interface for user data access.
type UserRepository interface {
	// CreateWithVerifyToken inserts the user and its first verify token atomically.
	CreateWithVerifyToken(ctx context.Context, user *models.User, token *models.EmailVerifyToken) error
	// Delete removes the user together with every token it owns.
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// GetByUsernameOrEmail matches on the email when it is non-empty, otherwise on the username.
	GetByUsernameOrEmail(ctx context.Context, username, email string) (*models.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}
