package types

import (
	"time"

	"github.com/google/uuid"
)

// QuizProgress exists only for passed quizzes. Failing submissions never
// persist anything, so a learner can retake a quiz any number of times.
type QuizProgress struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index:idx_user_quiz,unique" json:"user_id"`
	User        *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	QuizID      uuid.UUID `gorm:"type:uuid;not null;index:idx_user_quiz,unique" json:"quiz_id"`
	Score       int       `gorm:"column:score;not null" json:"score"`
	IsCompleted bool      `gorm:"column:is_completed;not null;default:false" json:"is_completed"`
	CreatedAt   time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (QuizProgress) TableName() string { return "quiz_progress" }
