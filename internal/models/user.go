package models

import "time"

// DefaultRole is assigned to every newly registered user.
const DefaultRole = "user"

// User represents an account holder.
type User struct {
	ID                 string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Username           string    `json:"username" gorm:"uniqueIndex;type:varchar(80);not null"`
	Email              string    `json:"email" gorm:"uniqueIndex;type:varchar(100);not null"`
	PasswordHash       string    `json:"-" gorm:"type:varchar(100);not null"` // No json tag for security
	PasswordIdentifier string    `json:"-" gorm:"type:varchar(100);not null"`
	Verified           bool      `json:"verified" gorm:"not null;default:false"`
	Role               string    `json:"role" gorm:"type:varchar(20);not null;default:user"`
	ImageURL           *string   `json:"image_url" gorm:"type:varchar(100)"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
