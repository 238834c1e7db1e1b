package models

import "time"

// Credential stores the sign-in secret of a principal. It lives outside the
// document collections so password hashes are never exposed to live queries.
type Credential struct {
	PrincipalID  string    `gorm:"size:64;primaryKey" json:"principal_id"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash []byte    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
