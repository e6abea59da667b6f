package models

import "time"

type Role string

const (
	RoleStudent Role = "student"
	RoleGuest   Role = "guest"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleGuest, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether the role may read other users' chat data.
func (r Role) IsStaff() bool {
	return r == RoleTeacher || r == RoleAdmin
}

type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	FullName     string    `gorm:"type:varchar(128);not null" json:"full_name"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	Role         Role      `gorm:"type:varchar(16);index;not null;default:student" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }
