package types

import (
	"time"

	"github.com/google/uuid"
)

// UserCourseEnrollment ties a user to a CMS course. IsCompleted means "a
// certificate was issued", which is deliberately distinct from the
// content-complete state the progression engine derives from lesson and
// quiz rows: a learner can be done with every lesson and quiz and still
// have an incomplete enrollment until they claim the certificate.
type UserCourseEnrollment struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index:idx_user_course,unique" json:"user_id"`
	User     *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	CourseID uuid.UUID `gorm:"type:uuid;not null;index:idx_user_course,unique" json:"course_id"`

	HasAccess   bool       `gorm:"column:has_access;not null;default:false" json:"has_access"`
	IsCompleted bool       `gorm:"column:is_completed;not null;default:false" json:"is_completed"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`

	CertificateNumber    string     `gorm:"column:certificate_number" json:"certificate_number,omitempty"`
	CertificateIssuedAt  *time.Time `gorm:"column:certificate_issued_at" json:"certificate_issued_at,omitempty"`
	CertificateBucketKey string     `gorm:"column:certificate_bucket_key" json:"certificate_bucket_key,omitempty"`
	CertificateURL       string     `gorm:"column:certificate_url" json:"certificate_url,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (UserCourseEnrollment) TableName() string { return "user_course_enrollment" }

// IsCertificateIssued reports whether the issuance job got as far as
// persisting an allocated number. Absence means "not yet issued", never
// "denied".
func (e *UserCourseEnrollment) IsCertificateIssued() bool {
	return e != nil && e.CertificateNumber != ""
}
