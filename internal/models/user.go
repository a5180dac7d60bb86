package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

type UserRole string

const (
	RoleAdmin    UserRole = "ADMIN"
	RoleReviewer UserRole = "REVIEWER"
	RoleViewer   UserRole = "VIEWER"
)

// ParseUserRole maps a case-insensitive role name to its canonical value.
func ParseUserRole(s string) (UserRole, bool) {
	switch strings.ToUpper(s) {
	case string(RoleAdmin):
		return RoleAdmin, true
	case string(RoleReviewer):
		return RoleReviewer, true
	case string(RoleViewer):
		return RoleViewer, true
	}
	return "", false
}

type User struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Email     string         `json:"email" gorm:"uniqueIndex;not null"`
	Password  string         `json:"-" gorm:"not null"`
	FirstName string         `json:"firstName" gorm:"not null"`
	LastName  string         `json:"lastName" gorm:"not null"`
	Role      UserRole       `json:"role" gorm:"not null;default:'VIEWER'"`
	Avatar    *string        `json:"avatar"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (User) TableName() string {
	return "users"
}
