package types

import (
	"time"

	"github.com/google/uuid"
)

// CertificateAllocation is one pre-seeded certificate number in a shared
// per-course pool. Rows are claimed exactly once via an atomic
// find-first-unused-and-mark-used transaction; this table is the only
// contended state in the system that needs real mutual exclusion.
type CertificateAllocation struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CourseID  uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
	Number    string    `gorm:"column:number;uniqueIndex;not null" json:"number"`
	IsUsed    bool      `gorm:"column:is_used;not null;default:false" json:"is_used"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (CertificateAllocation) TableName() string { return "certificate_allocation" }
