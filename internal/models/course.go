package models

import "time"

type Course struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Code      string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	TeacherID uint64    `gorm:"index;not null" json:"teacher_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Course) TableName() string { return "courses" }
