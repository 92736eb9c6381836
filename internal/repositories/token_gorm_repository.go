package repositories

import (
	"context"
	"fmt"

	"potatoauth/internal/models"

	"gorm.io/gorm"
)

// GORMTokenRepository is a GORM implementation of TokenRepository.
type GORMTokenRepository struct {
	db *gorm.DB
}

// NewGORMTokenRepository creates a new instance of GORMTokenRepository.
func NewGORMTokenRepository(db *gorm.DB) *GORMTokenRepository {
	return &GORMTokenRepository{
		db: db,
	}
}

// GetVerifyTokenByUser returns the outstanding verify token of a user.
func (r *GORMTokenRepository) GetVerifyTokenByUser(ctx context.Context, userID string) (*models.EmailVerifyToken, error) {
	var token models.EmailVerifyToken
	if err := r.db.WithContext(ctx).First(&token, "user_id = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("failed to get verify token of user %s: %w", userID, translateError(err))
	}
	return &token, nil
}

// CreateVerifyToken stores a new verify token.
func (r *GORMTokenRepository) CreateVerifyToken(ctx context.Context, token *models.EmailVerifyToken) error {
	if err := r.db.WithContext(ctx).Omit("User").Create(token).Error; err != nil {
		return fmt.Errorf("failed to create verify token: %w", translateError(err))
	}
	return nil
}

// DeleteVerifyToken deletes a verify token by value.
func (r *GORMTokenRepository) DeleteVerifyToken(ctx context.Context, token string) error {
	return r.deleteByToken(ctx, &models.EmailVerifyToken{}, token)
}

// ConsumeVerifyToken deletes the verify token and flags its owner as verified.
// The delete is the invalidation point: if it removes nothing the token was already used.
func (r *GORMTokenRepository) ConsumeVerifyToken(ctx context.Context, token string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var verify models.EmailVerifyToken
		if err := tx.First(&verify, "token = ?", token).Error; err != nil {
			return err
		}
		res := tx.Where("token = ?", token).Delete(&models.EmailVerifyToken{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Model(&models.User{}).Where("id = ?", verify.UserID).Update("verified", true).Error; err != nil {
			return err
		}
		return tx.First(&user, "id = ?", verify.UserID).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to consume verify token: %w", translateError(err))
	}
	return &user, nil
}

// CreateSession stores a new login session.
func (r *GORMTokenRepository) CreateSession(ctx context.Context, session *models.SessionToken) error {
	if err := r.db.WithContext(ctx).Omit("User").Create(session).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", translateError(err))
	}
	return nil
}

// GetSession retrieves a session by its token value.
func (r *GORMTokenRepository) GetSession(ctx context.Context, token string) (*models.SessionToken, error) {
	var session models.SessionToken
	if err := r.db.WithContext(ctx).First(&session, "token = ?", token).Error; err != nil {
		return nil, fmt.Errorf("failed to get session: %w", translateError(err))
	}
	return &session, nil
}

// DeleteSession deletes the session if userID owns it.
func (r *GORMTokenRepository) DeleteSession(ctx context.Context, token, userID string) error {
	res := r.db.WithContext(ctx).Where("token = ? AND user_id = ?", token, userID).Delete(&models.SessionToken{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to delete session: %w", ErrNotFound)
	}
	return nil
}

// GetResetToken retrieves a password reset token with its owner.
func (r *GORMTokenRepository) GetResetToken(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	var reset models.PasswordResetToken
	if err := r.db.WithContext(ctx).Preload("User").First(&reset, "token = ?", token).Error; err != nil {
		return nil, fmt.Errorf("failed to get reset token: %w", translateError(err))
	}
	return &reset, nil
}

// GetResetTokenByUser returns the outstanding reset token of a user.
func (r *GORMTokenRepository) GetResetTokenByUser(ctx context.Context, userID string) (*models.PasswordResetToken, error) {
	var reset models.PasswordResetToken
	if err := r.db.WithContext(ctx).First(&reset, "user_id = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("failed to get reset token of user %s: %w", userID, translateError(err))
	}
	return &reset, nil
}

// CreateResetToken stores a new password reset token.
func (r *GORMTokenRepository) CreateResetToken(ctx context.Context, token *models.PasswordResetToken) error {
	if err := r.db.WithContext(ctx).Omit("User").Create(token).Error; err != nil {
		return fmt.Errorf("failed to create reset token: %w", translateError(err))
	}
	return nil
}

// DeleteResetToken deletes a reset token by value.
func (r *GORMTokenRepository) DeleteResetToken(ctx context.Context, token string) error {
	return r.deleteByToken(ctx, &models.PasswordResetToken{}, token)
}

// ResetPassword consumes the reset token and updates the owner's password hash and identifier.
func (r *GORMTokenRepository) ResetPassword(ctx context.Context, token, passwordHash, passwordIdentifier string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reset models.PasswordResetToken
		if err := tx.First(&reset, "token = ?", token).Error; err != nil {
			return err
		}
		res := tx.Where("token = ?", token).Delete(&models.PasswordResetToken{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		err := tx.Model(&models.User{}).Where("id = ?", reset.UserID).Updates(map[string]interface{}{
			"password_hash":       passwordHash,
			"password_identifier": passwordIdentifier,
		}).Error
		if err != nil {
			return err
		}
		return tx.First(&user, "id = ?", reset.UserID).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reset password: %w", translateError(err))
	}
	return &user, nil
}

func (r *GORMTokenRepository) deleteByToken(ctx context.Context, model interface{}, token string) error {
	res := r.db.WithContext(ctx).Where("token = ?", token).Delete(model)
	if res.Error != nil {
		return fmt.Errorf("failed to delete token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to delete token: %w", ErrNotFound)
	}
	return nil
}
