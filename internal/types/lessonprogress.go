package types

import (
	"time"

	"github.com/google/uuid"
)

// LessonProgress is one row per user and CMS lesson. DurationInSeconds only
// ever grows while the row is incomplete; once IsCompleted flips true the
// row is terminal and no write path touches it again.
type LessonProgress struct {
	ID                uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID            uuid.UUID `gorm:"type:uuid;not null;index:idx_user_lesson,unique" json:"user_id"`
	User              *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	LessonID          uuid.UUID `gorm:"type:uuid;not null;index:idx_user_lesson,unique" json:"lesson_id"`
	DurationInSeconds int       `gorm:"column:duration_in_seconds;not null;default:0" json:"duration_in_seconds"`
	IsCompleted       bool      `gorm:"column:is_completed;not null;default:false" json:"is_completed"`
	CreatedAt         time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt         time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (LessonProgress) TableName() string { return "lesson_progress" }
