package models

import "time"

// EmailVerifyToken proves ownership of the email address of a still unverified user.
// A user has at most one outstanding verify token.
type EmailVerifyToken struct {
	Token     string    `json:"token" gorm:"primaryKey;type:varchar(32)"`
	UserID    string    `json:"user_id" gorm:"uniqueIndex;type:varchar(36);not null"`
	User      *User     `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionToken is created on every login and referenced by the refresh token.
// Deleting the row logs that session out.
type SessionToken struct {
	Token     string    `json:"token" gorm:"primaryKey;type:varchar(32)"`
	UserID    string    `json:"user_id" gorm:"index;type:varchar(36);not null"`
	User      *User     `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time `json:"created_at"`
}

// PasswordResetToken authorizes a single password change for a limited time.
type PasswordResetToken struct {
	Token     string    `json:"token" gorm:"primaryKey;type:varchar(32)"`
	UserID    string    `json:"user_id" gorm:"uniqueIndex;type:varchar(36);not null"`
	User      *User     `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the token is older than ttl at now.
func (t *PasswordResetToken) Expired(now time.Time, ttl time.Duration) bool {
	return !now.Before(t.CreatedAt.Add(ttl))
}

// AllModels lists every table managed by the application, in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&EmailVerifyToken{},
		&SessionToken{},
		&PasswordResetToken{},
	}
}
