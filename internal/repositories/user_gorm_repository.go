package repositories

import (
	"context"
	"fmt"

	"potatoauth/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMUserRepository is a GORM implementation of UserRepository.
type GORMUserRepository struct {
	db *gorm.DB
}

// NewGORMUserRepository creates a new instance of GORMUserRepository.
func NewGORMUserRepository(db *gorm.DB) *GORMUserRepository {
	return &GORMUserRepository{
		db: db,
	}
}

// CreateWithVerifyToken creates the user and its verify token in a single transaction.
func (r *GORMUserRepository) CreateWithVerifyToken(ctx context.Context, user *models.User, token *models.EmailVerifyToken) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		token.UserID = user.ID
		return tx.Omit("User").Create(token).Error
	})
	if err != nil {
		return fmt.Errorf("failed to create user: %w", translateError(err))
	}
	return nil
}

// Delete removes a user and its tokens.
func (r *GORMUserRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, owned := range []interface{}{&models.EmailVerifyToken{}, &models.SessionToken{}, &models.PasswordResetToken{}} {
			if err := tx.Where("user_id = ?", id).Delete(owned).Error; err != nil {
				return err
			}
		}
		res := tx.Where("id = ?", id).Delete(&models.User{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete user %s: %w", id, translateError(err))
	}
	return nil
}

// GetByID retrieves a user by their ID from the database.
func (r *GORMUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to get user by ID %s: %w", id, translateError(err))
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email from the database.
func (r *GORMUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		return nil, fmt.Errorf("failed to get user by email %s: %w", email, translateError(err))
	}
	return &user, nil
}

// GetByUsernameOrEmail retrieves the user by email when one is given, otherwise by username.
func (r *GORMUserRepository) GetByUsernameOrEmail(ctx context.Context, username, email string) (*models.User, error) {
	query := r.db.WithContext(ctx)
	switch {
	case email != "":
		query = query.Where("email = ?", email)
	case username != "":
		query = query.Where("username = ?", username)
	default:
		return nil, fmt.Errorf("no identifier given: %w", ErrNotFound)
	}

	var user models.User
	if err := query.First(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to get user by identifier: %w", translateError(err))
	}
	return &user, nil
}

// ExistsByUsername reports whether the username is taken.
func (r *GORMUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, "username = ?", username)
}

// ExistsByEmail reports whether the email is taken.
func (r *GORMUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "email = ?", email)
}

func (r *GORMUserRepository) exists(ctx context.Context, query string, value string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where(query, value).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to count users: %w", err)
	}
	return count > 0, nil
}
