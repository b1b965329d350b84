package models

import (
	"time"
)

// User is a back-office operator. API keys are stored as a SHA256 lookup hash plus a bcrypt hash.
type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"unique;not null"`
	Email        string    `json:"email" gorm:"unique;not null"`
	Role         string    `json:"role" gorm:"default:'staff'"` // super_admin, admin, staff
	APIKeyLookup string    `json:"-" gorm:"uniqueIndex"`
	APIKeyHash   string    `json:"-"`
	IsActive     bool      `json:"is_active" gorm:"default:true"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type UserRole string

const (
	SuperAdmin UserRole = "super_admin"
	Admin      UserRole = "admin"
	Staff      UserRole = "staff"
)

func (u *User) IsAdmin() bool {
	return u.Role == string(Admin) || u.Role == string(SuperAdmin)
}
