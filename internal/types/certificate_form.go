package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// CertificateFormSubmission stores the optional per-course structured form
// a learner submits when claiming a certificate (e.g. a license number to
// print on it). The fields payload is validated against the course's
// certificate config before the issuance job will render with it.
type CertificateFormSubmission struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_user_course_form" json:"user_id"`
	User      *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	CourseID  uuid.UUID      `gorm:"type:uuid;not null;index:idx_user_course_form" json:"course_id"`
	Fields    datatypes.JSON `gorm:"column:fields;type:jsonb;not null" json:"fields"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (CertificateFormSubmission) TableName() string { return "certificate_form_submission" }
